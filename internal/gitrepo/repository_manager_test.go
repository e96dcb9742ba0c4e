package gitrepo_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchfleet/patchfleet/internal/execshell"
	"github.com/patchfleet/patchfleet/internal/gitrepo"
)

const stubRepositoryPath = "/tmp/repo"

type scriptedExecutor struct {
	gitCommands       [][]string
	preCommitRuns     int
	gitOutput         string
	gitFailure        error
	preCommitFailures int
}

func (executor *scriptedExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.gitCommands = append(executor.gitCommands, details.Arguments)
	if executor.gitFailure != nil {
		return execshell.ExecutionResult{}, executor.gitFailure
	}
	return execshell.ExecutionResult{StandardOutput: executor.gitOutput}, nil
}

func (executor *scriptedExecutor) ExecutePreCommit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.preCommitRuns++
	if executor.preCommitRuns <= executor.preCommitFailures {
		return execshell.ExecutionResult{}, errors.New("hooks failed")
	}
	return execshell.ExecutionResult{}, nil
}

func newManager(testInstance *testing.T, executor *scriptedExecutor) *gitrepo.RepositoryManager {
	testInstance.Helper()

	manager, constructionError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, constructionError)
	return manager
}

func (executor *scriptedExecutor) lastCommand() string {
	if len(executor.gitCommands) == 0 {
		return ""
	}
	return strings.Join(executor.gitCommands[len(executor.gitCommands)-1], " ")
}

func TestNewRepositoryManagerRequiresExecutor(testInstance *testing.T) {
	_, constructionError := gitrepo.NewRepositoryManager(nil)
	require.ErrorIs(testInstance, constructionError, gitrepo.ErrExecutorNotConfigured)
}

func TestCheckWorktreeStatusParsesPorcelainOutput(testInstance *testing.T) {
	testCases := []struct {
		name                string
		statusOutput        string
		expectedUncommitted bool
		expectedUntracked   bool
	}{
		{name: "cleanTree", statusOutput: ""},
		{name: "modifiedFile", statusOutput: " M internal/app.go\n", expectedUncommitted: true},
		{name: "untrackedFile", statusOutput: "?? scratch.txt\n", expectedUntracked: true},
		{name: "mixedEntries", statusOutput: " M internal/app.go\n?? scratch.txt\n", expectedUncommitted: true, expectedUntracked: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			executor := &scriptedExecutor{gitOutput: testCase.statusOutput}
			manager := newManager(subtest, executor)

			worktreeStatus, statusError := manager.CheckWorktreeStatus(context.Background(), stubRepositoryPath)
			require.NoError(subtest, statusError)
			require.Equal(subtest, testCase.expectedUncommitted, worktreeStatus.HasUncommittedChanges)
			require.Equal(subtest, testCase.expectedUntracked, worktreeStatus.HasUntrackedFiles)
			require.Equal(subtest, "status --porcelain", executor.lastCommand())
		})
	}
}

func TestGetCurrentBranchRejectsDetachedHead(testInstance *testing.T) {
	executor := &scriptedExecutor{gitOutput: "HEAD\n"}
	manager := newManager(testInstance, executor)

	_, branchError := manager.GetCurrentBranch(context.Background(), stubRepositoryPath)
	require.ErrorIs(testInstance, branchError, gitrepo.ErrDetachedHead)
}

func TestGetDefaultBranchStripsRemotePrefix(testInstance *testing.T) {
	executor := &scriptedExecutor{gitOutput: "origin/main\n"}
	manager := newManager(testInstance, executor)

	defaultBranch, branchError := manager.GetDefaultBranch(context.Background(), stubRepositoryPath)
	require.NoError(testInstance, branchError)
	require.Equal(testInstance, "main", defaultBranch)
}

func TestLocalBranchExistsTreatsNonZeroExitAsAbsent(testInstance *testing.T) {
	failedError := execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Result:  execshell.ExecutionResult{ExitCode: 1},
	}
	executor := &scriptedExecutor{gitFailure: failedError}
	manager := newManager(testInstance, executor)

	branchExists, existsError := manager.LocalBranchExists(context.Background(), stubRepositoryPath, "patchfleet/x")
	require.NoError(testInstance, existsError)
	require.False(testInstance, branchExists)
}

func TestLocalBranchExistsPropagatesExecutionFailures(testInstance *testing.T) {
	executionFailure := execshell.CommandExecutionError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Cause:   errors.New("binary missing"),
	}
	executor := &scriptedExecutor{gitFailure: executionFailure}
	manager := newManager(testInstance, executor)

	_, existsError := manager.LocalBranchExists(context.Background(), stubRepositoryPath, "patchfleet/x")
	require.Error(testInstance, existsError)
}

func TestRemoteBranchExistsChecksListingOutput(testInstance *testing.T) {
	executor := &scriptedExecutor{gitOutput: "abc123\trefs/heads/patchfleet/x\n"}
	manager := newManager(testInstance, executor)

	branchExists, existsError := manager.RemoteBranchExists(context.Background(), stubRepositoryPath, "patchfleet/x")
	require.NoError(testInstance, existsError)
	require.True(testInstance, branchExists)

	executor.gitOutput = ""
	branchExists, existsError = manager.RemoteBranchExists(context.Background(), stubRepositoryPath, "patchfleet/x")
	require.NoError(testInstance, existsError)
	require.False(testInstance, branchExists)
}

func TestCommitAllStagesBeforeCommitting(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	manager := newManager(testInstance, executor)

	commitError := manager.CommitAll(context.Background(), stubRepositoryPath, "apply change")
	require.NoError(testInstance, commitError)

	require.Len(testInstance, executor.gitCommands, 2)
	require.Equal(testInstance, []string{"add", "-A"}, executor.gitCommands[0])
	require.Equal(testInstance, []string{"commit", "-m", "apply change"}, executor.gitCommands[1])
}

func TestRunPreCommitChecksRetriesWithinBudget(testInstance *testing.T) {
	executor := &scriptedExecutor{preCommitFailures: 1}
	manager := newManager(testInstance, executor)

	checksError := manager.RunPreCommitChecks(context.Background(), stubRepositoryPath, 2)
	require.NoError(testInstance, checksError)
	require.Equal(testInstance, 2, executor.preCommitRuns)
}

func TestRunPreCommitChecksEscalatesAfterBudget(testInstance *testing.T) {
	executor := &scriptedExecutor{preCommitFailures: 5}
	manager := newManager(testInstance, executor)

	checksError := manager.RunPreCommitChecks(context.Background(), stubRepositoryPath, 2)
	require.Error(testInstance, checksError)

	var preCommitError gitrepo.PreCommitError
	require.ErrorAs(testInstance, checksError, &preCommitError)
	require.Equal(testInstance, 2, preCommitError.Attempts)
	require.Equal(testInstance, 2, executor.preCommitRuns)
}

func TestUndoLastCommitKeepsWorkingTree(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	manager := newManager(testInstance, executor)

	require.NoError(testInstance, manager.UndoLastCommit(context.Background(), stubRepositoryPath))
	require.Equal(testInstance, "reset --soft HEAD~1", executor.lastCommand())
}
