package review

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/patchfleet/patchfleet/internal/shared"
)

const (
	forgeClientMissingMessageConstant        = "forge client not configured"
	pullRequestDraftMessageTemplateConstant  = "pull request %d is a draft"
	pullRequestChecksMessageTemplateConstant = "pull request %d has pending or failing checks"
	pullRequestBlockedMessageTemplate        = "pull request %d is not mergeable"
	noOpenPullRequestMessageConstant         = "no open pull request for change branch"
)

// ErrForgeClientNotConfigured indicates the forge client dependency was missing.
var ErrForgeClientNotConfigured = errors.New(forgeClientMissingMessageConstant)

// ErrNoOpenPullRequest indicates the repository has no open pull request for
// the requested change branch.
var ErrNoOpenPullRequest = errors.New(noOpenPullRequestMessageConstant)

// DraftPullRequestError indicates an approve or merge attempt against a
// draft pull request.
type DraftPullRequestError struct {
	PullRequestNumber int
}

// Error describes the rejected draft pull request.
func (draftError DraftPullRequestError) Error() string {
	return fmt.Sprintf(pullRequestDraftMessageTemplateConstant, draftError.PullRequestNumber)
}

// ChecksPendingError indicates the pull request's status checks have not all
// succeeded.
type ChecksPendingError struct {
	PullRequestNumber int
}

// Error describes the pull request with unfinished checks.
func (checksError ChecksPendingError) Error() string {
	return fmt.Sprintf(pullRequestChecksMessageTemplateConstant, checksError.PullRequestNumber)
}

// NotMergeableError indicates the forge reports the pull request cannot be
// merged in its current state.
type NotMergeableError struct {
	PullRequestNumber int
}

// Error describes the blocked pull request.
func (mergeableError NotMergeableError) Error() string {
	return fmt.Sprintf(pullRequestBlockedMessageTemplate, mergeableError.PullRequestNumber)
}

// Dependencies enumerates the collaborators required by the review service.
type Dependencies struct {
	Logger *zap.Logger
	Forge  shared.ForgeClient
}

// ListOutcome reports the open pull request found for one repository.
type ListOutcome struct {
	RepositorySlug    string
	PullRequestNumber int
	Diff              string
	Status            shared.PullRequestStatus
}

// ApproveOutcome reports what the approve flow did for one repository.
type ApproveOutcome struct {
	RepositorySlug    string
	PullRequestNumber int
	Approved          bool
	Merged            bool
}

// DeleteOutcome reports what the delete flow removed for one repository.
// PullRequestNumber is 0 when no open pull request existed.
type DeleteOutcome struct {
	RepositorySlug    string
	PullRequestNumber int
	PullRequestClosed bool
	BranchDeleted     bool
}

// Service inspects and progresses the pull requests a change produced
// across a fleet, one repository per call.
type Service struct {
	logger *zap.Logger
	forge  shared.ForgeClient
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Forge == nil {
		return nil, ErrForgeClientNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{logger: logger, forge: dependencies.Forge}, nil
}

// List fetches the open pull request for the change branch along with its
// diff and review status. It returns ErrNoOpenPullRequest when the
// repository has none.
func (service *Service) List(executionContext context.Context, repositorySlug string, changeIdentifier string) (ListOutcome, error) {
	locator := shared.RepoLocator{Slug: repositorySlug}

	pullRequestNumber, findError := service.forge.FindOpenPullRequestNumber(executionContext, locator, changeIdentifier)
	if findError != nil {
		return ListOutcome{}, findError
	}
	if pullRequestNumber == 0 {
		return ListOutcome{}, ErrNoOpenPullRequest
	}

	pullRequestDiff, diffError := service.forge.FetchPullRequestDiff(executionContext, locator, pullRequestNumber)
	if diffError != nil {
		return ListOutcome{}, diffError
	}

	pullRequestStatus, statusError := service.forge.FetchPullRequestStatus(executionContext, locator, pullRequestNumber)
	if statusError != nil {
		return ListOutcome{}, statusError
	}

	return ListOutcome{
		RepositorySlug:    repositorySlug,
		PullRequestNumber: pullRequestNumber,
		Diff:              pullRequestDiff,
		Status:            pullRequestStatus,
	}, nil
}

// Approve approves and merges the change's open pull request. Draft pull
// requests, pending checks, and unmergeable states are rejected before any
// mutation. An already reviewed pull request skips re-approval and goes
// straight to the merge. Merge conflicts surface as shared.ErrMergeConflict
// so callers can distinguish them from other merge failures.
func (service *Service) Approve(executionContext context.Context, repositorySlug string, changeIdentifier string, adminOverride bool) (ApproveOutcome, error) {
	locator := shared.RepoLocator{Slug: repositorySlug}

	pullRequestNumber, findError := service.forge.FindOpenPullRequestNumber(executionContext, locator, changeIdentifier)
	if findError != nil {
		return ApproveOutcome{}, findError
	}
	if pullRequestNumber == 0 {
		return ApproveOutcome{}, ErrNoOpenPullRequest
	}

	pullRequestStatus, statusError := service.forge.FetchPullRequestStatus(executionContext, locator, pullRequestNumber)
	if statusError != nil {
		return ApproveOutcome{}, statusError
	}
	if pullRequestStatus.Draft {
		return ApproveOutcome{}, DraftPullRequestError{PullRequestNumber: pullRequestNumber}
	}
	if !pullRequestStatus.Checked && !adminOverride {
		return ApproveOutcome{}, ChecksPendingError{PullRequestNumber: pullRequestNumber}
	}
	if !pullRequestStatus.Mergeable {
		return ApproveOutcome{}, NotMergeableError{PullRequestNumber: pullRequestNumber}
	}

	outcome := ApproveOutcome{RepositorySlug: repositorySlug, PullRequestNumber: pullRequestNumber}
	if !pullRequestStatus.Reviewed {
		if approveError := service.forge.ApprovePullRequest(executionContext, locator, pullRequestNumber); approveError != nil {
			return ApproveOutcome{}, approveError
		}
		outcome.Approved = true
	}

	if mergeError := service.forge.MergePullRequest(executionContext, locator, pullRequestNumber, adminOverride); mergeError != nil {
		return outcome, mergeError
	}
	outcome.Merged = true

	return outcome, nil
}

// Delete closes the change's open pull request when one exists and deletes
// the remote change branch. The two removals are attempted independently:
// a missing pull request or a failed close never skips the branch deletion,
// and the outcome reports which removals actually happened.
func (service *Service) Delete(executionContext context.Context, repositorySlug string, changeIdentifier string) (DeleteOutcome, error) {
	locator := shared.RepoLocator{Slug: repositorySlug}
	outcome := DeleteOutcome{RepositorySlug: repositorySlug}

	pullRequestNumber, findError := service.forge.FindOpenPullRequestNumber(executionContext, locator, changeIdentifier)
	if findError != nil {
		return outcome, findError
	}

	var closeError error
	if pullRequestNumber > 0 {
		outcome.PullRequestNumber = pullRequestNumber
		closeError = service.forge.ClosePullRequest(executionContext, locator, pullRequestNumber)
		outcome.PullRequestClosed = closeError == nil
	}

	branchDeleteError := service.forge.DeleteRemoteBranch(executionContext, locator, changeIdentifier)
	outcome.BranchDeleted = branchDeleteError == nil

	return outcome, errors.Join(closeError, branchDeleteError)
}

// Purge closes every open pull request whose source branch carries the
// change identifier prefix and deletes the corresponding remote branches.
// It returns one message per removed artifact.
func (service *Service) Purge(executionContext context.Context, repositorySlug string) ([]string, error) {
	locator := shared.RepoLocator{Slug: repositorySlug}
	return service.forge.PurgeChangeArtifacts(executionContext, locator, shared.ChangeIdentifierPrefixConstant)
}
