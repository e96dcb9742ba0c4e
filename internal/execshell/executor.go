package execshell

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell command runner not configured"
	commandFailedTemplateConstant             = "%s exited with code %d%s"
	commandExecutionFailedTemplateConstant    = "%s could not be executed: %s"
	standardErrorSuffixTemplateConstant       = ": %s"
	externalToolGitNameConstant               = "git"
	externalToolGitHubCLINameConstant         = "gh"
	externalToolPreCommitNameConstant         = "pre-commit"
)

// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)

// CommandName identifies a supported external executable.
type CommandName string

// Supported external tools.
const (
	CommandGit       CommandName = CommandName(externalToolGitNameConstant)
	CommandGitHub    CommandName = CommandName(externalToolGitHubCLINameConstant)
	CommandPreCommit CommandName = CommandName(externalToolPreCommitNameConstant)
)

// CommandDetails describes one tool invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand combines a CommandName with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outputs of an executed command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands and reports their results.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command completing with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command including trimmed standard error output.
func (failedError CommandFailedError) Error() string {
	formatter := CommandMessageFormatter{}
	return fmt.Sprintf(commandFailedTemplateConstant, formatter.CommandLabel(failedError.Command), failedError.Result.ExitCode, formatter.StandardErrorSuffix(failedError.Result.StandardError))
}

// CommandExecutionError reports a command that could not be executed at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	formatter := CommandMessageFormatter{}
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, formatter.CommandLabel(executionError.Command), executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// ShellExecutor runs external tools with structured logging and lifecycle
// notifications for observers.
type ShellExecutor struct {
	logger    *zap.Logger
	runner    CommandRunner
	observer  CommandEventObserver
	formatter CommandMessageFormatter
}

// NewShellExecutor constructs a ShellExecutor publishing lifecycle events to
// the optional observers.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, observers ...CommandEventObserver) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	var observer CommandEventObserver = noopCommandEventObserver{}
	if len(observers) > 0 && observers[0] != nil {
		observer = observers[0]
	}

	return &ShellExecutor{logger: logger, runner: runner, observer: observer, formatter: CommandMessageFormatter{}}, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGitHubCLI runs the GitHub CLI with the provided details.
func (executor *ShellExecutor) ExecuteGitHubCLI(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.execute(executionContext, ShellCommand{Name: CommandGitHub, Details: details})
}

// ExecutePreCommit runs the pre-commit tool with the provided details.
func (executor *ShellExecutor) ExecutePreCommit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.execute(executionContext, ShellCommand{Name: CommandPreCommit, Details: details})
}

func (executor *ShellExecutor) execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logger.Debug(executor.formatter.BuildStartedMessage(command))
	executor.observer.CommandStarted(command)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.logger.Error(executor.formatter.BuildExecutionFailureMessage(command, runError))
		executor.observer.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observer.CommandCompleted(command, executionResult)
	if executionResult.ExitCode != 0 {
		executor.logger.Debug(executor.formatter.BuildFailureMessage(command, executionResult))
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Debug(executor.formatter.BuildSuccessMessage(command))
	return executionResult, nil
}
