package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/patchfleet/patchfleet/internal/execshell"
	"github.com/patchfleet/patchfleet/internal/shared"
)

const (
	gitStatusSubcommandConstant         = "status"
	gitStatusPorcelainFlagConstant      = "--porcelain"
	gitStashSubcommandConstant          = "stash"
	gitStashPushSubcommandConstant      = "push"
	gitStashPopSubcommandConstant       = "pop"
	gitResetSubcommandConstant          = "reset"
	gitResetHardFlagConstant            = "--hard"
	gitResetSoftFlagConstant            = "--soft"
	gitRevParseSubcommandConstant       = "rev-parse"
	gitAbbrevRefFlagConstant            = "--abbrev-ref"
	gitVerifyFlagConstant               = "--verify"
	gitQuietFlagConstant                = "--quiet"
	gitHeadReferenceConstant            = "HEAD"
	gitPreviousCommitReferenceConstant  = "HEAD~1"
	gitSymbolicRefSubcommandConstant    = "symbolic-ref"
	gitShortFlagConstant                = "--short"
	gitOriginHeadReferenceConstant      = "refs/remotes/origin/HEAD"
	gitRemoteHeadPrefixConstant         = "origin/"
	gitLocalHeadsPrefixConstant         = "refs/heads/"
	gitCheckoutSubcommandConstant       = "checkout"
	gitCheckoutNewBranchFlagConstant    = "-b"
	gitBranchSubcommandConstant         = "branch"
	gitDeleteFlagConstant               = "--delete"
	gitForceFlagConstant                = "--force"
	gitLSRemoteSubcommandConstant       = "ls-remote"
	gitHeadsFlagConstant                = "--heads"
	gitPullSubcommandConstant           = "pull"
	gitFastForwardOnlyFlagConstant      = "--ff-only"
	gitAddSubcommandConstant            = "add"
	gitAddAllFlagConstant               = "-A"
	gitCommitSubcommandConstant         = "commit"
	gitMessageFlagConstant              = "-m"
	gitPushSubcommandConstant           = "push"
	gitSetUpstreamFlagConstant          = "--set-upstream"
	untrackedStatusPrefixConstant       = "??"
	preCommitRunSubcommandConstant      = "run"
	preCommitAllFilesFlagConstant       = "--all-files"
	terminalPromptEnvironmentName       = "GIT_TERMINAL_PROMPT"
	terminalPromptEnvironmentDisable    = "0"
	executorMissingMessageConstant      = "git executor not configured"
	detachedHeadLabelConstant           = "HEAD"
	detachedHeadMessageConstant         = "repository is in a detached HEAD state"
	defaultBranchResolveErrorTemplate   = "unable to resolve default branch: %w"
	preCommitRetryBudgetErrorTemplate   = "pre-commit validation failed after %d attempts: %v"
	minimumPreCommitAttemptsConstant    = 1
)

// GitExecutor is the subset of execshell.ShellExecutor required by the manager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecutePreCommit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ErrExecutorNotConfigured indicates the manager was constructed without an executor.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// ErrDetachedHead indicates the repository has no current branch.
var ErrDetachedHead = errors.New(detachedHeadMessageConstant)

// PreCommitError reports pre-commit validation failing after the retry budget was exhausted.
type PreCommitError struct {
	Attempts int
	Cause    error
}

// Error describes the exhausted validation budget.
func (preCommitError PreCommitError) Error() string {
	return fmt.Sprintf(preCommitRetryBudgetErrorTemplate, preCommitError.Attempts, preCommitError.Cause)
}

// Unwrap exposes the final validation failure.
func (preCommitError PreCommitError) Unwrap() error {
	return preCommitError.Cause
}

// RepositoryManager implements the version-control surface over git process
// invocations. Every method is a synchronous, blocking external call.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager around the provided executor.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// CheckWorktreeStatus inspects the working tree via git status --porcelain and
// reports uncommitted (staged or modified) and untracked entries separately.
func (manager *RepositoryManager) CheckWorktreeStatus(executionContext context.Context, repositoryPath string) (shared.WorktreeStatus, error) {
	executionResult, statusError := manager.executeGit(executionContext, repositoryPath, gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant)
	if statusError != nil {
		return shared.WorktreeStatus{}, statusError
	}

	worktreeStatus := shared.WorktreeStatus{}
	for _, statusLine := range strings.Split(executionResult.StandardOutput, "\n") {
		if len(strings.TrimSpace(statusLine)) == 0 {
			continue
		}
		if strings.HasPrefix(statusLine, untrackedStatusPrefixConstant) {
			worktreeStatus.HasUntrackedFiles = true
			continue
		}
		worktreeStatus.HasUncommittedChanges = true
	}

	return worktreeStatus, nil
}

// StashSave stashes modified and staged files.
func (manager *RepositoryManager) StashSave(executionContext context.Context, repositoryPath string) error {
	_, stashError := manager.executeGit(executionContext, repositoryPath, gitStashSubcommandConstant, gitStashPushSubcommandConstant)
	return stashError
}

// StashPop restores the most recently stashed files.
func (manager *RepositoryManager) StashPop(executionContext context.Context, repositoryPath string) error {
	_, stashError := manager.executeGit(executionContext, repositoryPath, gitStashSubcommandConstant, gitStashPopSubcommandConstant)
	return stashError
}

// HardReset resets the working tree and index to the provided reference.
func (manager *RepositoryManager) HardReset(executionContext context.Context, repositoryPath string, reference string) error {
	_, resetError := manager.executeGit(executionContext, repositoryPath, gitResetSubcommandConstant, gitResetHardFlagConstant, reference)
	return resetError
}

// GetCurrentBranch resolves the checked-out branch name.
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, revParseError := manager.executeGit(executionContext, repositoryPath, gitRevParseSubcommandConstant, gitAbbrevRefFlagConstant, gitHeadReferenceConstant)
	if revParseError != nil {
		return "", revParseError
	}

	branchName := strings.TrimSpace(executionResult.StandardOutput)
	if branchName == detachedHeadLabelConstant {
		return "", ErrDetachedHead
	}
	return branchName, nil
}

// GetDefaultBranch resolves the repository's HEAD default branch from the origin remote.
func (manager *RepositoryManager) GetDefaultBranch(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, symbolicRefError := manager.executeGit(executionContext, repositoryPath, gitSymbolicRefSubcommandConstant, gitShortFlagConstant, gitOriginHeadReferenceConstant)
	if symbolicRefError != nil {
		return "", fmt.Errorf(defaultBranchResolveErrorTemplate, symbolicRefError)
	}
	return strings.TrimPrefix(strings.TrimSpace(executionResult.StandardOutput), gitRemoteHeadPrefixConstant), nil
}

// GetHeadCommitHash resolves the current HEAD commit hash.
func (manager *RepositoryManager) GetHeadCommitHash(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, revParseError := manager.executeGit(executionContext, repositoryPath, gitRevParseSubcommandConstant, gitHeadReferenceConstant)
	if revParseError != nil {
		return "", revParseError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// CheckoutBranch switches the working tree to an existing branch.
func (manager *RepositoryManager) CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, checkoutError := manager.executeGit(executionContext, repositoryPath, gitCheckoutSubcommandConstant, branchName)
	return checkoutError
}

// CreateBranch creates a fresh branch at HEAD and switches to it.
func (manager *RepositoryManager) CreateBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, checkoutError := manager.executeGit(executionContext, repositoryPath, gitCheckoutSubcommandConstant, gitCheckoutNewBranchFlagConstant, branchName)
	return checkoutError
}

// DeleteLocalBranch force-deletes a local branch.
func (manager *RepositoryManager) DeleteLocalBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, deleteError := manager.executeGit(executionContext, repositoryPath, gitBranchSubcommandConstant, gitDeleteFlagConstant, gitForceFlagConstant, branchName)
	return deleteError
}

// DeleteRemoteBranch deletes a branch from the origin remote.
func (manager *RepositoryManager) DeleteRemoteBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, deleteError := manager.executeGit(executionContext, repositoryPath, gitPushSubcommandConstant, shared.OriginRemoteNameConstant, gitDeleteFlagConstant, branchName)
	return deleteError
}

// LocalBranchExists reports whether a local branch with the given name exists.
func (manager *RepositoryManager) LocalBranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	_, verifyError := manager.executeGit(executionContext, repositoryPath, gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, gitLocalHeadsPrefixConstant+branchName)
	if verifyError != nil {
		failedError := execshell.CommandFailedError{}
		if errors.As(verifyError, &failedError) {
			return false, nil
		}
		return false, verifyError
	}
	return true, nil
}

// RemoteBranchExists reports whether the origin remote advertises a branch with the given name.
func (manager *RepositoryManager) RemoteBranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	executionResult, listError := manager.executeGit(executionContext, repositoryPath, gitLSRemoteSubcommandConstant, gitHeadsFlagConstant, shared.OriginRemoteNameConstant, branchName)
	if listError != nil {
		return false, listError
	}
	return len(strings.TrimSpace(executionResult.StandardOutput)) > 0, nil
}

// Pull fast-forwards the current branch to its remote counterpart.
func (manager *RepositoryManager) Pull(executionContext context.Context, repositoryPath string) error {
	_, pullError := manager.executeGit(executionContext, repositoryPath, gitPullSubcommandConstant, gitFastForwardOnlyFlagConstant)
	return pullError
}

// CommitAll stages every change and commits with the provided message.
func (manager *RepositoryManager) CommitAll(executionContext context.Context, repositoryPath string, commitMessage string) error {
	if _, addError := manager.executeGit(executionContext, repositoryPath, gitAddSubcommandConstant, gitAddAllFlagConstant); addError != nil {
		return addError
	}
	_, commitError := manager.executeGit(executionContext, repositoryPath, gitCommitSubcommandConstant, gitMessageFlagConstant, commitMessage)
	return commitError
}

// UndoLastCommit removes the latest commit while keeping the working tree.
func (manager *RepositoryManager) UndoLastCommit(executionContext context.Context, repositoryPath string) error {
	_, resetError := manager.executeGit(executionContext, repositoryPath, gitResetSubcommandConstant, gitResetSoftFlagConstant, gitPreviousCommitReferenceConstant)
	return resetError
}

// Push publishes the branch to the origin remote with an upstream reference.
func (manager *RepositoryManager) Push(executionContext context.Context, repositoryPath string, branchName string) error {
	_, pushError := manager.executeGit(executionContext, repositoryPath, gitPushSubcommandConstant, gitSetUpstreamFlagConstant, shared.OriginRemoteNameConstant, branchName)
	return pushError
}

// RunPreCommitChecks runs pre-commit validation, retrying up to attemptBudget
// times. Exhausting the budget escalates to a PreCommitError.
func (manager *RepositoryManager) RunPreCommitChecks(executionContext context.Context, repositoryPath string, attemptBudget int) error {
	if attemptBudget < minimumPreCommitAttemptsConstant {
		attemptBudget = minimumPreCommitAttemptsConstant
	}

	var lastAttemptError error
	for attemptIndex := 0; attemptIndex < attemptBudget; attemptIndex++ {
		_, lastAttemptError = manager.executor.ExecutePreCommit(executionContext, execshell.CommandDetails{
			Arguments:        []string{preCommitRunSubcommandConstant, preCommitAllFilesFlagConstant},
			WorkingDirectory: repositoryPath,
		})
		if lastAttemptError == nil {
			return nil
		}
	}

	return PreCommitError{Attempts: attemptBudget, Cause: lastAttemptError}
}

func (manager *RepositoryManager) executeGit(executionContext context.Context, repositoryPath string, arguments ...string) (execshell.ExecutionResult, error) {
	return manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     repositoryPath,
		EnvironmentVariables: map[string]string{terminalPromptEnvironmentName: terminalPromptEnvironmentDisable},
	})
}
