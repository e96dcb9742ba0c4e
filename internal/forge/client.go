package forge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/patchfleet/patchfleet/internal/execshell"
	"github.com/patchfleet/patchfleet/internal/shared"
)

const (
	repoSubcommandConstant                 = "repo"
	listSubcommandConstant                 = "list"
	cloneSubcommandConstant                = "clone"
	pullRequestSubcommandConstant          = "pr"
	diffSubcommandConstant                 = "diff"
	viewSubcommandConstant                 = "view"
	reviewSubcommandConstant               = "review"
	mergeSubcommandConstant                = "merge"
	createSubcommandConstant               = "create"
	closeSubcommandConstant                = "close"
	apiSubcommandConstant                  = "api"
	jsonFlagConstant                       = "--json"
	repoFlagConstant                       = "--repo"
	headFlagConstant                       = "--head"
	baseFlagConstant                       = "--base"
	stateFlagConstant                      = "--state"
	limitFlagConstant                      = "--limit"
	titleFlagConstant                      = "--title"
	bodyFlagConstant                       = "--body"
	approveFlagConstant                    = "--approve"
	squashFlagConstant                     = "--squash"
	adminFlagConstant                      = "--admin"
	methodFlagConstant                     = "-X"
	deleteMethodConstant                   = "DELETE"
	openPullRequestStateConstant           = "open"
	repositoryListLimitConstant            = 1000
	repositoryListJSONFieldsConstant       = "nameWithOwner"
	pullRequestNumberJSONFieldsConstant    = "number"
	pullRequestStatusJSONFieldsConstant    = "isDraft,mergeable,reviewDecision,statusCheckRollup"
	pullRequestPurgeJSONFieldsConstant     = "number,headRefName"
	mergeableStateConstant                 = "MERGEABLE"
	approvedReviewDecisionConstant         = "APPROVED"
	checkSuccessConclusionConstant         = "SUCCESS"
	checkNeutralConclusionConstant         = "NEUTRAL"
	checkSkippedConclusionConstant         = "SKIPPED"
	branchReferenceEndpointTemplate        = "repos/%s/git/refs/heads/%s"
	organizationFieldNameConstant          = "organization"
	locatorFieldNameConstant               = "repository"
	slugFieldNameConstant                  = "repository_slug"
	branchFieldNameConstant                = "branch_name"
	requiredValueMessageConstant           = "value required"
	executorNotConfiguredMessageConstant   = "forge cli executor not configured"
	operationErrorTemplateConstant         = "%s operation failed: %s"
	operationErrorWrapTemplateConstant     = "%s operation failed: %w"
	responseDecodingErrorTemplate          = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant      = "%s: %s"
	mergeConflictIndicatorConstant         = "not mergeable"
	mergeConflictAlternateIndicator        = "merge conflict"
	purgeClosedMessageTemplateConstant     = "closed pull request #%d for branch %s"
	purgeBranchDeletedMessageTemplate      = "deleted remote branch %s"
	pullRequestURLSeparatorConstant        = "/"
)

// OperationName describes a named forge workflow supported by the client.
type OperationName string

const (
	listRepositoriesOperationConstant  = OperationName("ListOrganizationRepositories")
	findPullRequestOperationConstant   = OperationName("FindOpenPullRequestNumber")
	fetchDiffOperationConstant         = OperationName("FetchPullRequestDiff")
	fetchStatusOperationConstant       = OperationName("FetchPullRequestStatus")
	approveOperationConstant           = OperationName("ApprovePullRequest")
	mergeOperationConstant             = OperationName("MergePullRequest")
	createOperationConstant            = OperationName("CreatePullRequest")
	closeOperationConstant             = OperationName("ClosePullRequest")
	deleteRemoteBranchOperationName    = OperationName("DeleteRemoteBranch")
	cloneRepositoryOperationConstant   = OperationName("CloneRepository")
	purgeArtifactsOperationConstant    = OperationName("PurgeChangeArtifacts")
)

// ErrExecutorNotConfigured indicates the client was constructed without an executor.
var ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for forge CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates JSON decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplate, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// ForgeCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type ForgeCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Client implements the forge surface through GitHub CLI invocations.
type Client struct {
	executor ForgeCommandExecutor
}

// NewClient constructs a forge client.
func NewClient(executor ForgeCommandExecutor) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Client{executor: executor}, nil
}

// ListOrganizationRepositories enumerates every repository slug in an organization.
func (client *Client) ListOrganizationRepositories(executionContext context.Context, organization string) ([]string, error) {
	trimmedOrganization := strings.TrimSpace(organization)
	if len(trimmedOrganization) == 0 {
		return nil, InvalidInputError{FieldName: organizationFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{
		Arguments: []string{
			repoSubcommandConstant,
			listSubcommandConstant,
			trimmedOrganization,
			limitFlagConstant,
			strconv.Itoa(repositoryListLimitConstant),
			jsonFlagConstant,
			repositoryListJSONFieldsConstant,
		},
	})
	if executionError != nil {
		return nil, OperationError{Operation: listRepositoriesOperationConstant, Cause: executionError}
	}

	var response []struct {
		NameWithOwner string `json:"nameWithOwner"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return nil, ResponseDecodingError{Operation: listRepositoriesOperationConstant, Cause: decodingError}
	}

	repositorySlugs := make([]string, 0, len(response))
	for _, repositoryEntry := range response {
		repositorySlugs = append(repositorySlugs, repositoryEntry.NameWithOwner)
	}
	return repositorySlugs, nil
}

// FindOpenPullRequestNumber resolves the open pull request targeting the
// given branch name, returning 0 when none exists.
func (client *Client) FindOpenPullRequestNumber(executionContext context.Context, locator shared.RepoLocator, branchName string) (int, error) {
	trimmedBranchName := strings.TrimSpace(branchName)
	if len(trimmedBranchName) == 0 {
		return 0, InvalidInputError{FieldName: branchFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{
		pullRequestSubcommandConstant,
		listSubcommandConstant,
		headFlagConstant,
		trimmedBranchName,
		stateFlagConstant,
		openPullRequestStateConstant,
		jsonFlagConstant,
		pullRequestNumberJSONFieldsConstant,
	}

	executionResult, executionError := client.execute(executionContext, locator, arguments)
	if executionError != nil {
		return 0, OperationError{Operation: findPullRequestOperationConstant, Cause: executionError}
	}

	var response []struct {
		Number int `json:"number"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return 0, ResponseDecodingError{Operation: findPullRequestOperationConstant, Cause: decodingError}
	}
	if len(response) == 0 {
		return 0, nil
	}
	return response[0].Number, nil
}

// FetchPullRequestDiff retrieves the unified-diff text of a pull request.
func (client *Client) FetchPullRequestDiff(executionContext context.Context, locator shared.RepoLocator, pullRequestNumber int) (string, error) {
	arguments := []string{pullRequestSubcommandConstant, diffSubcommandConstant, strconv.Itoa(pullRequestNumber)}
	executionResult, executionError := client.execute(executionContext, locator, arguments)
	if executionError != nil {
		return "", OperationError{Operation: fetchDiffOperationConstant, Cause: executionError}
	}
	return executionResult.StandardOutput, nil
}

// FetchPullRequestStatus retrieves the read-only status view consulted before approval.
func (client *Client) FetchPullRequestStatus(executionContext context.Context, locator shared.RepoLocator, pullRequestNumber int) (shared.PullRequestStatus, error) {
	arguments := []string{
		pullRequestSubcommandConstant,
		viewSubcommandConstant,
		strconv.Itoa(pullRequestNumber),
		jsonFlagConstant,
		pullRequestStatusJSONFieldsConstant,
	}

	executionResult, executionError := client.execute(executionContext, locator, arguments)
	if executionError != nil {
		return shared.PullRequestStatus{}, OperationError{Operation: fetchStatusOperationConstant, Cause: executionError}
	}

	var response struct {
		IsDraft           bool   `json:"isDraft"`
		Mergeable         string `json:"mergeable"`
		ReviewDecision    string `json:"reviewDecision"`
		StatusCheckRollup []struct {
			Conclusion string `json:"conclusion"`
		} `json:"statusCheckRollup"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return shared.PullRequestStatus{}, ResponseDecodingError{Operation: fetchStatusOperationConstant, Cause: decodingError}
	}

	checksPassed := true
	for _, checkEntry := range response.StatusCheckRollup {
		switch checkEntry.Conclusion {
		case checkSuccessConclusionConstant, checkNeutralConclusionConstant, checkSkippedConclusionConstant:
		default:
			checksPassed = false
		}
	}

	return shared.PullRequestStatus{
		Draft:     response.IsDraft,
		Mergeable: response.Mergeable == mergeableStateConstant,
		Checked:   checksPassed,
		Reviewed:  response.ReviewDecision == approvedReviewDecisionConstant,
	}, nil
}

// ApprovePullRequest submits an approving review.
func (client *Client) ApprovePullRequest(executionContext context.Context, locator shared.RepoLocator, pullRequestNumber int) error {
	arguments := []string{pullRequestSubcommandConstant, reviewSubcommandConstant, strconv.Itoa(pullRequestNumber), approveFlagConstant}
	if _, executionError := client.execute(executionContext, locator, arguments); executionError != nil {
		return OperationError{Operation: approveOperationConstant, Cause: executionError}
	}
	return nil
}

// MergePullRequest squash-merges a pull request, optionally with an admin
// override. Merge-conflict failures are surfaced as shared.ErrMergeConflict.
func (client *Client) MergePullRequest(executionContext context.Context, locator shared.RepoLocator, pullRequestNumber int, adminOverride bool) error {
	arguments := []string{pullRequestSubcommandConstant, mergeSubcommandConstant, strconv.Itoa(pullRequestNumber), squashFlagConstant}
	if adminOverride {
		arguments = append(arguments, adminFlagConstant)
	}

	_, executionError := client.execute(executionContext, locator, arguments)
	if executionError == nil {
		return nil
	}

	failedError := execshell.CommandFailedError{}
	if errors.As(executionError, &failedError) {
		loweredStandardError := strings.ToLower(failedError.Result.StandardError)
		if strings.Contains(loweredStandardError, mergeConflictIndicatorConstant) || strings.Contains(loweredStandardError, mergeConflictAlternateIndicator) {
			return fmt.Errorf(operationErrorWrapTemplateConstant, mergeOperationConstant, shared.ErrMergeConflict)
		}
	}
	return OperationError{Operation: mergeOperationConstant, Cause: executionError}
}

// CreatePullRequest opens a pull request and returns its number parsed from
// the URL the CLI prints.
func (client *Client) CreatePullRequest(executionContext context.Context, locator shared.RepoLocator, details shared.PullRequestDetails) (int, error) {
	arguments := []string{
		pullRequestSubcommandConstant,
		createSubcommandConstant,
		titleFlagConstant,
		details.Title,
		bodyFlagConstant,
		details.Body,
		headFlagConstant,
		details.SourceBranch,
		baseFlagConstant,
		details.TargetBranch,
	}

	executionResult, executionError := client.execute(executionContext, locator, arguments)
	if executionError != nil {
		return 0, OperationError{Operation: createOperationConstant, Cause: executionError}
	}

	pullRequestURL := strings.TrimSpace(executionResult.StandardOutput)
	urlSegments := strings.Split(pullRequestURL, pullRequestURLSeparatorConstant)
	parsedNumber, parseError := strconv.Atoi(urlSegments[len(urlSegments)-1])
	if parseError != nil {
		return 0, ResponseDecodingError{Operation: createOperationConstant, Cause: parseError}
	}
	return parsedNumber, nil
}

// ClosePullRequest closes an open pull request without merging it.
func (client *Client) ClosePullRequest(executionContext context.Context, locator shared.RepoLocator, pullRequestNumber int) error {
	arguments := []string{pullRequestSubcommandConstant, closeSubcommandConstant, strconv.Itoa(pullRequestNumber)}
	if _, executionError := client.execute(executionContext, locator, arguments); executionError != nil {
		return OperationError{Operation: closeOperationConstant, Cause: executionError}
	}
	return nil
}

// DeleteRemoteBranch removes a remote branch through the forge API. The
// locator must carry an explicit repository slug.
func (client *Client) DeleteRemoteBranch(executionContext context.Context, locator shared.RepoLocator, branchName string) error {
	trimmedSlug := strings.TrimSpace(locator.Slug)
	if len(trimmedSlug) == 0 {
		return InvalidInputError{FieldName: slugFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{
		apiSubcommandConstant,
		methodFlagConstant,
		deleteMethodConstant,
		fmt.Sprintf(branchReferenceEndpointTemplate, trimmedSlug, branchName),
	}
	if _, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{Arguments: arguments}); executionError != nil {
		return OperationError{Operation: deleteRemoteBranchOperationName, Cause: executionError}
	}
	return nil
}

// CloneRepository clones a repository slug into the destination path.
func (client *Client) CloneRepository(executionContext context.Context, repository string, destinationPath string) error {
	trimmedSlug := strings.TrimSpace(repository)
	if len(trimmedSlug) == 0 {
		return InvalidInputError{FieldName: slugFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{repoSubcommandConstant, cloneSubcommandConstant, trimmedSlug, destinationPath}
	if _, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{Arguments: arguments}); executionError != nil {
		return OperationError{Operation: cloneRepositoryOperationConstant, Cause: executionError}
	}
	return nil
}

// PurgeChangeArtifacts closes every open pull request whose head branch
// carries the change prefix and deletes those branches, reporting one
// message per completed cleanup action.
func (client *Client) PurgeChangeArtifacts(executionContext context.Context, locator shared.RepoLocator, changeIdentifierPrefix string) ([]string, error) {
	arguments := []string{
		pullRequestSubcommandConstant,
		listSubcommandConstant,
		stateFlagConstant,
		openPullRequestStateConstant,
		jsonFlagConstant,
		pullRequestPurgeJSONFieldsConstant,
	}

	executionResult, executionError := client.execute(executionContext, locator, arguments)
	if executionError != nil {
		return nil, OperationError{Operation: purgeArtifactsOperationConstant, Cause: executionError}
	}

	var response []struct {
		Number      int    `json:"number"`
		HeadRefName string `json:"headRefName"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return nil, ResponseDecodingError{Operation: purgeArtifactsOperationConstant, Cause: decodingError}
	}

	var cleanupMessages []string
	for _, pullRequestEntry := range response {
		if !strings.HasPrefix(pullRequestEntry.HeadRefName, changeIdentifierPrefix) {
			continue
		}
		if closeError := client.ClosePullRequest(executionContext, locator, pullRequestEntry.Number); closeError != nil {
			return cleanupMessages, closeError
		}
		cleanupMessages = append(cleanupMessages, fmt.Sprintf(purgeClosedMessageTemplateConstant, pullRequestEntry.Number, pullRequestEntry.HeadRefName))

		if deleteError := client.DeleteRemoteBranch(executionContext, locator, pullRequestEntry.HeadRefName); deleteError != nil {
			return cleanupMessages, deleteError
		}
		cleanupMessages = append(cleanupMessages, fmt.Sprintf(purgeBranchDeletedMessageTemplate, pullRequestEntry.HeadRefName))
	}

	return cleanupMessages, nil
}

func (client *Client) execute(executionContext context.Context, locator shared.RepoLocator, arguments []string) (execshell.ExecutionResult, error) {
	trimmedSlug := strings.TrimSpace(locator.Slug)
	trimmedPath := strings.TrimSpace(locator.Path)
	if len(trimmedSlug) == 0 && len(trimmedPath) == 0 {
		return execshell.ExecutionResult{}, InvalidInputError{FieldName: locatorFieldNameConstant, Message: requiredValueMessageConstant}
	}

	if len(trimmedSlug) > 0 {
		arguments = append(arguments, repoFlagConstant, trimmedSlug)
	}

	return client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: trimmedPath,
	})
}
