package create

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/patchfleet/patchfleet/internal/change"
	"github.com/patchfleet/patchfleet/internal/diff"
	"github.com/patchfleet/patchfleet/internal/shared"
	"github.com/patchfleet/patchfleet/internal/transaction"
)

const (
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	forgeClientMissingMessageConstant       = "forge client not configured"
	changeSpecMissingMessageConstant        = "change specification not configured"
	fileDiffHeaderTemplateConstant          = "=== %s ===\n"
	pullRequestBodyTemplateConstant         = "Automated fleet change %s applied by patchfleet."
	preCommitAttemptBudgetConstant          = 2
	fileReadErrorTemplateConstant           = "unable to read %s: %w"
	fileWriteErrorTemplateConstant          = "unable to write %s: %w"
	fileRemoveErrorTemplateConstant         = "unable to remove %s: %w"
	undoPopStashLabelConstant               = "pop stashed changes"
	undoSwitchBackLabelTemplateConstant     = "switch back to branch %s"
	undoHardResetLabelConstant              = "hard reset working tree"
	undoUncommitLabelConstant               = "undo last commit"
	undoDeleteRemoteBranchLabelTemplate     = "delete remote branch %s"
	newFilePermissionsConstant              = 0o644
)

// ErrRepositoryManagerNotConfigured indicates the repository manager dependency was missing.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// ErrForgeClientNotConfigured indicates the forge client dependency was missing.
var ErrForgeClientNotConfigured = errors.New(forgeClientMissingMessageConstant)

// ErrChangeSpecNotConfigured indicates the target carried no change specification.
var ErrChangeSpecNotConfigured = errors.New(changeSpecMissingMessageConstant)

// Dependencies enumerates the collaborators required by the create saga.
type Dependencies struct {
	Logger            *zap.Logger
	RepositoryManager shared.RepositoryManager
	Forge             shared.ForgeClient
	Renderer          diff.Renderer
}

// Options configures one saga execution against a single repository. An
// empty CommitMessage selects dry-run behavior: every mutating step through
// edits and validation still runs so the rendered diff is accurate, then
// everything is rolled back.
type Options struct {
	Target         shared.RepoTarget
	RepositoryPath string
	CommitMessage  string
	ContextBuffer  int
}

// Result captures the observable outcome of one saga execution.
type Result struct {
	Target            shared.RepoTarget
	RenderedDiff      string
	PullRequestNumber int
	ChangedFileCount  int
	Skipped           bool
	DryRun            bool
}

// Service drives the transactional create saga for one repository at a time.
type Service struct {
	logger            *zap.Logger
	repositoryManager shared.RepositoryManager
	forge             shared.ForgeClient
	renderer          diff.Renderer
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if dependencies.Forge == nil {
		return nil, ErrForgeClientNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		logger:            logger,
		repositoryManager: dependencies.RepositoryManager,
		forge:             dependencies.Forge,
		renderer:          dependencies.Renderer,
	}, nil
}

// Execute runs the saga: preview, guards, compensable mutations, and pull
// request creation. Any step failure after mutation began rolls back every
// registered compensation before the triggering error is surfaced.
func (service *Service) Execute(executionContext context.Context, options Options) (Result, error) {
	if options.Target.Change == nil {
		return Result{}, ErrChangeSpecNotConfigured
	}

	branchName := options.Target.ChangeIdentifier
	locator := shared.RepoLocator{Path: options.RepositoryPath}

	_, previewChangedCount, previewError := service.computeDiff(options, false)
	if previewError != nil {
		return Result{}, previewError
	}
	if previewChangedCount == 0 {
		return Result{Target: options.Target, Skipped: true}, nil
	}

	worktreeStatus, statusError := service.repositoryManager.CheckWorktreeStatus(executionContext, options.RepositoryPath)
	if statusError != nil {
		return Result{}, StepError{Step: StepGuards, Cause: statusError}
	}
	if worktreeStatus.HasUntrackedFiles {
		return Result{}, ErrUntrackedFilesPresent
	}

	sagaTransaction := transaction.New(service.logger)
	failStep := func(step StepName, cause error) (Result, error) {
		sagaTransaction.Rollback()
		return Result{}, StepError{Step: step, Cause: cause}
	}

	if worktreeStatus.HasUncommittedChanges {
		if stashError := service.repositoryManager.StashSave(executionContext, options.RepositoryPath); stashError != nil {
			return failStep(StepStash, stashError)
		}
		sagaTransaction.Register(undoPopStashLabelConstant, func() error {
			return service.repositoryManager.StashPop(executionContext, options.RepositoryPath)
		})
	}

	currentBranch, currentBranchError := service.repositoryManager.GetCurrentBranch(executionContext, options.RepositoryPath)
	if currentBranchError != nil {
		return failStep(StepHeadBranchSync, currentBranchError)
	}
	defaultBranch, defaultBranchError := service.repositoryManager.GetDefaultBranch(executionContext, options.RepositoryPath)
	if defaultBranchError != nil {
		return failStep(StepHeadBranchSync, defaultBranchError)
	}
	if currentBranch != defaultBranch {
		if checkoutError := service.repositoryManager.CheckoutBranch(executionContext, options.RepositoryPath, defaultBranch); checkoutError != nil {
			return failStep(StepHeadBranchSync, checkoutError)
		}
		priorBranch := currentBranch
		sagaTransaction.Register(fmt.Sprintf(undoSwitchBackLabelTemplateConstant, priorBranch), func() error {
			return service.repositoryManager.CheckoutBranch(executionContext, options.RepositoryPath, priorBranch)
		})
	}

	if pullError := service.repositoryManager.Pull(executionContext, options.RepositoryPath); pullError != nil {
		return failStep(StepPull, pullError)
	}

	// Stale branch purge is accepted as a one-way step: a later failure
	// leaves the pre-existing branch and its pull request gone.
	if purgeError := service.purgeStaleBranches(executionContext, options.RepositoryPath, branchName); purgeError != nil {
		return failStep(StepStaleBranchPurge, purgeError)
	}

	if createBranchError := service.repositoryManager.CreateBranch(executionContext, options.RepositoryPath, branchName); createBranchError != nil {
		return failStep(StepNewBranchCheckout, createBranchError)
	}
	originBranch := defaultBranch
	sagaTransaction.Register(fmt.Sprintf(undoSwitchBackLabelTemplateConstant, originBranch), func() error {
		return service.repositoryManager.CheckoutBranch(executionContext, options.RepositoryPath, originBranch)
	})

	// Registered before the first file is touched so a failure partway
	// through the edit loop still resets every already written file.
	sagaTransaction.Register(undoHardResetLabelConstant, func() error {
		return service.repositoryManager.HardReset(executionContext, options.RepositoryPath, gitHeadReferenceConstant)
	})

	renderedDiff, changedFileCount, editsError := service.computeDiff(options, true)
	if editsError != nil {
		return failStep(StepApplyEdits, editsError)
	}
	if changedFileCount == 0 {
		sagaTransaction.Rollback()
		return Result{Target: options.Target, Skipped: true}, nil
	}

	if preCommitError := service.repositoryManager.RunPreCommitChecks(executionContext, options.RepositoryPath, preCommitAttemptBudgetConstant); preCommitError != nil {
		return failStep(StepPreCommit, preCommitError)
	}

	if len(strings.TrimSpace(options.CommitMessage)) == 0 {
		sagaTransaction.Rollback()
		return Result{Target: options.Target, RenderedDiff: renderedDiff, ChangedFileCount: changedFileCount, DryRun: true}, nil
	}

	if commitError := service.repositoryManager.CommitAll(executionContext, options.RepositoryPath, options.CommitMessage); commitError != nil {
		return failStep(StepCommit, commitError)
	}
	sagaTransaction.Register(undoUncommitLabelConstant, func() error {
		return service.repositoryManager.UndoLastCommit(executionContext, options.RepositoryPath)
	})

	if pushError := service.repositoryManager.Push(executionContext, options.RepositoryPath, branchName); pushError != nil {
		return failStep(StepPush, pushError)
	}
	sagaTransaction.Register(fmt.Sprintf(undoDeleteRemoteBranchLabelTemplate, branchName), func() error {
		return service.repositoryManager.DeleteRemoteBranch(executionContext, options.RepositoryPath, branchName)
	})

	// Closing a stale pull request is the second accepted one-way step.
	stalePullRequestNumber, findError := service.forge.FindOpenPullRequestNumber(executionContext, locator, branchName)
	if findError != nil {
		return failStep(StepStalePullRequest, findError)
	}
	if stalePullRequestNumber > 0 {
		if closeError := service.forge.ClosePullRequest(executionContext, locator, stalePullRequestNumber); closeError != nil {
			return failStep(StepStalePullRequest, closeError)
		}
	}

	pullRequestNumber, createError := service.forge.CreatePullRequest(executionContext, locator, shared.PullRequestDetails{
		Title:        options.CommitMessage,
		Body:         fmt.Sprintf(pullRequestBodyTemplateConstant, options.Target.ChangeIdentifier),
		SourceBranch: branchName,
		TargetBranch: defaultBranch,
	})
	if createError != nil {
		return failStep(StepCreatePullRequest, createError)
	}

	sagaTransaction.Commit()
	return Result{
		Target:            options.Target,
		RenderedDiff:      renderedDiff,
		PullRequestNumber: pullRequestNumber,
		ChangedFileCount:  changedFileCount,
	}, nil
}

const gitHeadReferenceConstant = "HEAD"

func (service *Service) purgeStaleBranches(executionContext context.Context, repositoryPath string, branchName string) error {
	localExists, localError := service.repositoryManager.LocalBranchExists(executionContext, repositoryPath, branchName)
	if localError != nil {
		return localError
	}
	if localExists {
		if deleteError := service.repositoryManager.DeleteLocalBranch(executionContext, repositoryPath, branchName); deleteError != nil {
			return deleteError
		}
	}

	remoteExists, remoteError := service.repositoryManager.RemoteBranchExists(executionContext, repositoryPath, branchName)
	if remoteError != nil {
		return remoteError
	}
	if remoteExists {
		if deleteError := service.repositoryManager.DeleteRemoteBranch(executionContext, repositoryPath, branchName); deleteError != nil {
			return deleteError
		}
	}

	return nil
}

// computeDiff applies the change specification to every matched file,
// rendering one annotated diff block per changed file. When applyEdits is
// false the working tree is left untouched, which makes the same routine
// serve as the saga's initial dry-run preview.
func (service *Service) computeDiff(options Options, applyEdits bool) (string, int, error) {
	changeSpec := *options.Target.Change

	targetFiles := options.Target.Files
	if changeSpec.Kind == change.KindAdd {
		targetFiles = []string{changeSpec.Path}
	}

	var diffBuilder strings.Builder
	changedFileCount := 0
	for _, relativePath := range targetFiles {
		absolutePath := filepath.Join(options.RepositoryPath, relativePath)

		originalContent, readError := readFileIfPresent(absolutePath)
		if readError != nil {
			return "", 0, fmt.Errorf(fileReadErrorTemplateConstant, relativePath, readError)
		}

		fileOutcome := changeSpec.ApplyToContent(originalContent)
		if !fileOutcome.Changed {
			continue
		}

		renderedFileDiff, renderError := service.renderer.RenderText(originalContent, fileOutcome.UpdatedContent, options.ContextBuffer)
		if renderError != nil {
			return "", 0, renderError
		}

		if applyEdits {
			if writeError := applyFileOutcome(absolutePath, fileOutcome); writeError != nil {
				return "", 0, writeError
			}
		}

		changedFileCount++
		diffBuilder.WriteString(fmt.Sprintf(fileDiffHeaderTemplateConstant, relativePath))
		diffBuilder.WriteString(renderedFileDiff)
	}

	return diffBuilder.String(), changedFileCount, nil
}

func readFileIfPresent(absolutePath string) (string, error) {
	contentBytes, readError := os.ReadFile(absolutePath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return "", nil
		}
		return "", readError
	}
	return string(contentBytes), nil
}

func applyFileOutcome(absolutePath string, fileOutcome change.FileOutcome) error {
	if fileOutcome.Remove {
		if removeError := os.Remove(absolutePath); removeError != nil {
			return fmt.Errorf(fileRemoveErrorTemplateConstant, absolutePath, removeError)
		}
		return nil
	}

	if writeError := os.WriteFile(absolutePath, []byte(fileOutcome.UpdatedContent), newFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(fileWriteErrorTemplateConstant, absolutePath, writeError)
	}
	return nil
}
