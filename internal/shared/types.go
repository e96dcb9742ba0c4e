package shared

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/patchfleet/patchfleet/internal/change"
)

const (
	// ChangeIdentifierPrefixConstant is the fixed literal prefix carried by every normalized change identifier.
	ChangeIdentifierPrefixConstant = "patchfleet/"
	// OriginRemoteNameConstant identifies the default upstream remote.
	OriginRemoteNameConstant = "origin"

	changeIdentifierTimestampLayoutConstant = "20060102-150405"
	mergeConflictMessageConstant            = "pull request has merge conflicts"
)

// ErrMergeConflict distinguishes merge failures caused by conflicting
// changes from every other merge failure.
var ErrMergeConflict = errors.New(mergeConflictMessageConstant)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// NormalizeChangeIdentifier guarantees the returned identifier carries the
// fixed literal prefix exactly once.
func NormalizeChangeIdentifier(rawIdentifier string) string {
	trimmedIdentifier := strings.TrimSpace(rawIdentifier)
	if strings.HasPrefix(trimmedIdentifier, ChangeIdentifierPrefixConstant) {
		return trimmedIdentifier
	}
	return ChangeIdentifierPrefixConstant + trimmedIdentifier
}

// DefaultChangeIdentifier derives a change identifier from the current time.
func DefaultChangeIdentifier(clock Clock) string {
	if clock == nil {
		clock = SystemClock{}
	}
	return ChangeIdentifierPrefixConstant + clock.Now().Format(changeIdentifierTimestampLayoutConstant)
}

// RepoTarget is the immutable per-repository execution context for one fleet
// operation. It is created once per discovered repository at command start
// and never mutated afterwards; results are returned, not written back.
type RepoTarget struct {
	RepoSlug          string
	ChangeIdentifier  string
	Change            *change.Spec
	Files             []string
	PullRequestNumber int
}

// NewRepoTarget builds a RepoTarget with a normalized change identifier and
// a sorted, deduplicated file list.
func NewRepoTarget(repoSlug string, changeIdentifier string, changeSpec *change.Spec, files []string, pullRequestNumber int) RepoTarget {
	deduplicatedFiles := make([]string, 0, len(files))
	seenFiles := make(map[string]struct{}, len(files))
	for _, filePath := range files {
		if _, alreadySeen := seenFiles[filePath]; alreadySeen {
			continue
		}
		seenFiles[filePath] = struct{}{}
		deduplicatedFiles = append(deduplicatedFiles, filePath)
	}
	sort.Strings(deduplicatedFiles)

	return RepoTarget{
		RepoSlug:          repoSlug,
		ChangeIdentifier:  NormalizeChangeIdentifier(changeIdentifier),
		Change:            changeSpec,
		Files:             deduplicatedFiles,
		PullRequestNumber: pullRequestNumber,
	}
}

// WorktreeStatus summarizes the cleanliness of a repository working tree.
type WorktreeStatus struct {
	HasUncommittedChanges bool
	HasUntrackedFiles     bool
}

// PullRequestStatus is the read-only forge view consulted before approval.
type PullRequestStatus struct {
	Draft     bool
	Mergeable bool
	Checked   bool
	Reviewed  bool
}

// PullRequestDetails describes a pull request to create.
type PullRequestDetails struct {
	Title        string
	Body         string
	SourceBranch string
	TargetBranch string
}

// RepoLocator addresses a repository for forge operations: Slug selects a
// remote repository explicitly, Path runs the operation inside a local
// working copy. At least one must be set.
type RepoLocator struct {
	Slug string
	Path string
}

// RepositoryManager exposes the version-control capabilities the create saga
// mutates local and remote state through. Every call is a synchronous,
// blocking external operation.
type RepositoryManager interface {
	CheckWorktreeStatus(executionContext context.Context, repositoryPath string) (WorktreeStatus, error)
	StashSave(executionContext context.Context, repositoryPath string) error
	StashPop(executionContext context.Context, repositoryPath string) error
	HardReset(executionContext context.Context, repositoryPath string, reference string) error
	GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
	GetDefaultBranch(executionContext context.Context, repositoryPath string) (string, error)
	GetHeadCommitHash(executionContext context.Context, repositoryPath string) (string, error)
	CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error
	CreateBranch(executionContext context.Context, repositoryPath string, branchName string) error
	DeleteLocalBranch(executionContext context.Context, repositoryPath string, branchName string) error
	DeleteRemoteBranch(executionContext context.Context, repositoryPath string, branchName string) error
	LocalBranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error)
	RemoteBranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error)
	Pull(executionContext context.Context, repositoryPath string) error
	CommitAll(executionContext context.Context, repositoryPath string, commitMessage string) error
	UndoLastCommit(executionContext context.Context, repositoryPath string) error
	Push(executionContext context.Context, repositoryPath string, branchName string) error
	RunPreCommitChecks(executionContext context.Context, repositoryPath string, attemptBudget int) error
}

// ForgeClient exposes the code-forge capabilities consumed by the
// orchestrators. Implementations may shell out to a CLI, call REST
// endpoints, or serve deterministic fakes in tests.
type ForgeClient interface {
	ListOrganizationRepositories(executionContext context.Context, organization string) ([]string, error)
	FindOpenPullRequestNumber(executionContext context.Context, locator RepoLocator, branchName string) (int, error)
	FetchPullRequestDiff(executionContext context.Context, locator RepoLocator, pullRequestNumber int) (string, error)
	FetchPullRequestStatus(executionContext context.Context, locator RepoLocator, pullRequestNumber int) (PullRequestStatus, error)
	ApprovePullRequest(executionContext context.Context, locator RepoLocator, pullRequestNumber int) error
	MergePullRequest(executionContext context.Context, locator RepoLocator, pullRequestNumber int, adminOverride bool) error
	CreatePullRequest(executionContext context.Context, locator RepoLocator, details PullRequestDetails) (int, error)
	ClosePullRequest(executionContext context.Context, locator RepoLocator, pullRequestNumber int) error
	DeleteRemoteBranch(executionContext context.Context, locator RepoLocator, branchName string) error
	CloneRepository(executionContext context.Context, repository string, destinationPath string) error
	PurgeChangeArtifacts(executionContext context.Context, locator RepoLocator, changeIdentifierPrefix string) ([]string, error)
}

// RepositoryDiscoverer locates git repositories for fleet operations.
type RepositoryDiscoverer interface {
	DiscoverRepositories(rootPath string) ([]string, error)
}

// FileMatcher resolves a glob pattern to relative file paths inside one repository.
type FileMatcher interface {
	MatchFiles(repositoryPath string, globPattern string) ([]string, error)
}
