package execshell

import (
	"fmt"
	"strings"
)

const (
	startedMessageTemplateConstant          = "Running %s"
	successMessageTemplateConstant          = "Completed %s"
	failureMessageTemplateConstant          = "%s failed with exit code %d%s"
	executionFailureMessageTemplate         = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	messageStandardErrorSuffixTemplate      = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyMessageSuffixConstant              = ""
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(startedMessageTemplateConstant, formatter.CommandLabel(command))
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return fmt.Sprintf(successMessageTemplateConstant, formatter.CommandLabel(command))
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return fmt.Sprintf(failureMessageTemplateConstant, formatter.CommandLabel(command), result.ExitCode, formatter.StandardErrorSuffix(result.StandardError))
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(executionFailureMessageTemplate, formatter.CommandLabel(command), failureMessage)
}

// CommandLabel renders the tool name, arguments, and working directory of a command.
func (formatter CommandMessageFormatter) CommandLabel(command ShellCommand) string {
	labelParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		labelParts = append(labelParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(labelParts, commandArgumentsJoinSeparatorConstant)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.workingDirectorySuffix(command))
}

// StandardErrorSuffix renders trimmed standard error output as a message suffix.
func (formatter CommandMessageFormatter) StandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyMessageSuffixConstant
	}
	return fmt.Sprintf(messageStandardErrorSuffixTemplate, trimmedStandardError)
}

func (formatter CommandMessageFormatter) workingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyMessageSuffixConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}
