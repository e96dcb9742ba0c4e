package forge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchfleet/patchfleet/internal/execshell"
	"github.com/patchfleet/patchfleet/internal/forge"
	"github.com/patchfleet/patchfleet/internal/shared"
)

type scriptedForgeExecutor struct {
	recordedDetails []execshell.CommandDetails
	queuedResults   []execshell.ExecutionResult
	queuedErrors    []error
}

func (executor *scriptedForgeExecutor) ExecuteGitHubCLI(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedDetails = append(executor.recordedDetails, details)
	invocationIndex := len(executor.recordedDetails) - 1

	var executionError error
	if invocationIndex < len(executor.queuedErrors) {
		executionError = executor.queuedErrors[invocationIndex]
	}
	executionResult := execshell.ExecutionResult{}
	if invocationIndex < len(executor.queuedResults) {
		executionResult = executor.queuedResults[invocationIndex]
	}
	return executionResult, executionError
}

func TestNewClientRequiresExecutor(testInstance *testing.T) {
	client, constructionError := forge.NewClient(nil)
	require.ErrorIs(testInstance, constructionError, forge.ErrExecutorNotConfigured)
	require.Nil(testInstance, client)
}

func TestListOrganizationRepositories(testInstance *testing.T) {
	testCases := []struct {
		name              string
		organization      string
		standardOutput    string
		expectedSlugs     []string
		expectedErrorText string
	}{
		{
			name:           "decodes_repository_slugs",
			organization:   "example-org",
			standardOutput: `[{"nameWithOwner":"example-org/alpha"},{"nameWithOwner":"example-org/beta"}]`,
			expectedSlugs:  []string{"example-org/alpha", "example-org/beta"},
		},
		{
			name:           "empty_listing",
			organization:   "example-org",
			standardOutput: `[]`,
			expectedSlugs:  []string{},
		},
		{
			name:              "requires_organization",
			organization:      "   ",
			expectedErrorText: "organization: value required",
		},
		{
			name:              "surfaces_decoding_failure",
			organization:      "example-org",
			standardOutput:    "not json",
			expectedErrorText: "ListOrganizationRepositories response decoding failed",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			executor := &scriptedForgeExecutor{queuedResults: []execshell.ExecutionResult{{StandardOutput: testCase.standardOutput}}}
			client, constructionError := forge.NewClient(executor)
			require.NoError(subtest, constructionError)

			repositorySlugs, listError := client.ListOrganizationRepositories(context.Background(), testCase.organization)
			if len(testCase.expectedErrorText) > 0 {
				require.ErrorContains(subtest, listError, testCase.expectedErrorText)
				return
			}
			require.NoError(subtest, listError)
			require.Equal(subtest, testCase.expectedSlugs, repositorySlugs)
			require.Equal(subtest, []string{"repo", "list", "example-org", "--limit", "1000", "--json", "nameWithOwner"}, executor.recordedDetails[0].Arguments)
		})
	}
}

func TestFindOpenPullRequestNumber(testInstance *testing.T) {
	testCases := []struct {
		name           string
		standardOutput string
		expectedNumber int
	}{
		{name: "resolves_open_pull_request", standardOutput: `[{"number":42}]`, expectedNumber: 42},
		{name: "returns_zero_when_absent", standardOutput: `[]`, expectedNumber: 0},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			executor := &scriptedForgeExecutor{queuedResults: []execshell.ExecutionResult{{StandardOutput: testCase.standardOutput}}}
			client, constructionError := forge.NewClient(executor)
			require.NoError(subtest, constructionError)

			pullRequestNumber, findError := client.FindOpenPullRequestNumber(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, "patchfleet/20260101-000000")
			require.NoError(subtest, findError)
			require.Equal(subtest, testCase.expectedNumber, pullRequestNumber)
			require.Equal(subtest,
				[]string{"pr", "list", "--head", "patchfleet/20260101-000000", "--state", "open", "--json", "number", "--repo", "example-org/alpha"},
				executor.recordedDetails[0].Arguments)
		})
	}
}

func TestFindOpenPullRequestNumberRequiresBranchName(testInstance *testing.T) {
	client, constructionError := forge.NewClient(&scriptedForgeExecutor{})
	require.NoError(testInstance, constructionError)

	_, findError := client.FindOpenPullRequestNumber(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, "  ")
	invalidInput := forge.InvalidInputError{}
	require.ErrorAs(testInstance, findError, &invalidInput)
	require.Equal(testInstance, "branch_name", invalidInput.FieldName)
}

func TestExecuteRequiresRepositoryLocator(testInstance *testing.T) {
	client, constructionError := forge.NewClient(&scriptedForgeExecutor{})
	require.NoError(testInstance, constructionError)

	_, diffError := client.FetchPullRequestDiff(context.Background(), shared.RepoLocator{}, 7)
	require.ErrorContains(testInstance, diffError, "repository: value required")
}

func TestExecuteRunsInLocalWorkingCopy(testInstance *testing.T) {
	executor := &scriptedForgeExecutor{queuedResults: []execshell.ExecutionResult{{StandardOutput: "diff text"}}}
	client, constructionError := forge.NewClient(executor)
	require.NoError(testInstance, constructionError)

	diffText, diffError := client.FetchPullRequestDiff(context.Background(), shared.RepoLocator{Path: "/tmp/alpha"}, 7)
	require.NoError(testInstance, diffError)
	require.Equal(testInstance, "diff text", diffText)
	require.Equal(testInstance, "/tmp/alpha", executor.recordedDetails[0].WorkingDirectory)
	require.Equal(testInstance, []string{"pr", "diff", "7"}, executor.recordedDetails[0].Arguments)
}

func TestFetchPullRequestStatus(testInstance *testing.T) {
	testCases := []struct {
		name           string
		standardOutput string
		expectedStatus shared.PullRequestStatus
	}{
		{
			name:           "approved_mergeable_with_passing_checks",
			standardOutput: `{"isDraft":false,"mergeable":"MERGEABLE","reviewDecision":"APPROVED","statusCheckRollup":[{"conclusion":"SUCCESS"},{"conclusion":"SKIPPED"}]}`,
			expectedStatus: shared.PullRequestStatus{Draft: false, Mergeable: true, Checked: true, Reviewed: true},
		},
		{
			name:           "failing_check_marks_unchecked",
			standardOutput: `{"isDraft":false,"mergeable":"MERGEABLE","reviewDecision":"","statusCheckRollup":[{"conclusion":"SUCCESS"},{"conclusion":"FAILURE"}]}`,
			expectedStatus: shared.PullRequestStatus{Draft: false, Mergeable: true, Checked: false, Reviewed: false},
		},
		{
			name:           "draft_with_conflicting_state",
			standardOutput: `{"isDraft":true,"mergeable":"CONFLICTING","reviewDecision":"REVIEW_REQUIRED","statusCheckRollup":[]}`,
			expectedStatus: shared.PullRequestStatus{Draft: true, Mergeable: false, Checked: true, Reviewed: false},
		},
		{
			name:           "neutral_conclusions_pass",
			standardOutput: `{"isDraft":false,"mergeable":"MERGEABLE","reviewDecision":"APPROVED","statusCheckRollup":[{"conclusion":"NEUTRAL"}]}`,
			expectedStatus: shared.PullRequestStatus{Draft: false, Mergeable: true, Checked: true, Reviewed: true},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			executor := &scriptedForgeExecutor{queuedResults: []execshell.ExecutionResult{{StandardOutput: testCase.standardOutput}}}
			client, constructionError := forge.NewClient(executor)
			require.NoError(subtest, constructionError)

			pullRequestStatus, statusError := client.FetchPullRequestStatus(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, 42)
			require.NoError(subtest, statusError)
			require.Equal(subtest, testCase.expectedStatus, pullRequestStatus)
		})
	}
}

func TestMergePullRequest(testInstance *testing.T) {
	testCases := []struct {
		name              string
		adminOverride     bool
		executionError    error
		expectedArguments []string
		expectedError     error
	}{
		{
			name:              "squash_merge",
			expectedArguments: []string{"pr", "merge", "42", "--squash", "--repo", "example-org/alpha"},
		},
		{
			name:              "admin_override_appends_flag",
			adminOverride:     true,
			expectedArguments: []string{"pr", "merge", "42", "--squash", "--admin", "--repo", "example-org/alpha"},
		},
		{
			name: "merge_conflict_mapped_to_sentinel",
			executionError: execshell.CommandFailedError{
				Command: execshell.ShellCommand{Name: execshell.CommandGitHub},
				Result:  execshell.ExecutionResult{ExitCode: 1, StandardError: "Pull request #42 is not mergeable: the merge commit cannot be cleanly created."},
			},
			expectedError: shared.ErrMergeConflict,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			executor := &scriptedForgeExecutor{queuedErrors: []error{testCase.executionError}}
			client, constructionError := forge.NewClient(executor)
			require.NoError(subtest, constructionError)

			mergeError := client.MergePullRequest(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, 42, testCase.adminOverride)
			if testCase.expectedError != nil {
				require.ErrorIs(subtest, mergeError, testCase.expectedError)
				return
			}
			require.NoError(subtest, mergeError)
			require.Equal(subtest, testCase.expectedArguments, executor.recordedDetails[0].Arguments)
		})
	}
}

func TestMergePullRequestKeepsUnrelatedFailures(testInstance *testing.T) {
	executionError := execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGitHub},
		Result:  execshell.ExecutionResult{ExitCode: 1, StandardError: "API rate limit exceeded"},
	}
	executor := &scriptedForgeExecutor{queuedErrors: []error{executionError}}
	client, constructionError := forge.NewClient(executor)
	require.NoError(testInstance, constructionError)

	mergeError := client.MergePullRequest(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, 42, false)
	require.Error(testInstance, mergeError)
	require.False(testInstance, errors.Is(mergeError, shared.ErrMergeConflict))
	operationError := forge.OperationError{}
	require.ErrorAs(testInstance, mergeError, &operationError)
	require.Equal(testInstance, forge.OperationName("MergePullRequest"), operationError.Operation)
}

func TestCreatePullRequest(testInstance *testing.T) {
	testCases := []struct {
		name              string
		standardOutput    string
		expectedNumber    int
		expectedErrorText string
	}{
		{
			name:           "parses_number_from_url",
			standardOutput: "https://github.com/example-org/alpha/pull/108\n",
			expectedNumber: 108,
		},
		{
			name:              "rejects_unparseable_output",
			standardOutput:    "something went sideways",
			expectedErrorText: "CreatePullRequest response decoding failed",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			executor := &scriptedForgeExecutor{queuedResults: []execshell.ExecutionResult{{StandardOutput: testCase.standardOutput}}}
			client, constructionError := forge.NewClient(executor)
			require.NoError(subtest, constructionError)

			pullRequestNumber, createError := client.CreatePullRequest(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, shared.PullRequestDetails{
				Title:        "patchfleet/20260101-000000",
				Body:         "automated change",
				SourceBranch: "patchfleet/20260101-000000",
				TargetBranch: "main",
			})
			if len(testCase.expectedErrorText) > 0 {
				require.ErrorContains(subtest, createError, testCase.expectedErrorText)
				return
			}
			require.NoError(subtest, createError)
			require.Equal(subtest, testCase.expectedNumber, pullRequestNumber)
			require.Equal(subtest,
				[]string{
					"pr", "create",
					"--title", "patchfleet/20260101-000000",
					"--body", "automated change",
					"--head", "patchfleet/20260101-000000",
					"--base", "main",
					"--repo", "example-org/alpha",
				},
				executor.recordedDetails[0].Arguments)
		})
	}
}

func TestDeleteRemoteBranch(testInstance *testing.T) {
	executor := &scriptedForgeExecutor{}
	client, constructionError := forge.NewClient(executor)
	require.NoError(testInstance, constructionError)

	deletionError := client.DeleteRemoteBranch(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, "patchfleet/20260101-000000")
	require.NoError(testInstance, deletionError)
	require.Equal(testInstance,
		[]string{"api", "-X", "DELETE", "repos/example-org/alpha/git/refs/heads/patchfleet/20260101-000000"},
		executor.recordedDetails[0].Arguments)
}

func TestDeleteRemoteBranchRequiresSlug(testInstance *testing.T) {
	client, constructionError := forge.NewClient(&scriptedForgeExecutor{})
	require.NoError(testInstance, constructionError)

	deletionError := client.DeleteRemoteBranch(context.Background(), shared.RepoLocator{Path: "/tmp/alpha"}, "patchfleet/20260101-000000")
	require.ErrorContains(testInstance, deletionError, "repository_slug: value required")
}

func TestPurgeChangeArtifacts(testInstance *testing.T) {
	listingOutput := `[` +
		`{"number":7,"headRefName":"patchfleet/20260101-000000"},` +
		`{"number":8,"headRefName":"feature/manual-work"},` +
		`{"number":9,"headRefName":"patchfleet/20260201-000000"}` +
		`]`
	executor := &scriptedForgeExecutor{queuedResults: []execshell.ExecutionResult{{StandardOutput: listingOutput}}}
	client, constructionError := forge.NewClient(executor)
	require.NoError(testInstance, constructionError)

	cleanupMessages, purgeError := client.PurgeChangeArtifacts(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, "patchfleet/")
	require.NoError(testInstance, purgeError)
	require.Equal(testInstance,
		[]string{
			"closed pull request #7 for branch patchfleet/20260101-000000",
			"deleted remote branch patchfleet/20260101-000000",
			"closed pull request #9 for branch patchfleet/20260201-000000",
			"deleted remote branch patchfleet/20260201-000000",
		},
		cleanupMessages)
	require.Len(testInstance, executor.recordedDetails, 5)
	require.Equal(testInstance, []string{"pr", "close", "7", "--repo", "example-org/alpha"}, executor.recordedDetails[1].Arguments)
	require.Equal(testInstance, []string{"api", "-X", "DELETE", "repos/example-org/alpha/git/refs/heads/patchfleet/20260101-000000"}, executor.recordedDetails[2].Arguments)
}

func TestPurgeChangeArtifactsStopsOnCloseFailure(testInstance *testing.T) {
	listingOutput := `[{"number":7,"headRefName":"patchfleet/20260101-000000"}]`
	closeFailure := errors.New("close failed")
	executor := &scriptedForgeExecutor{
		queuedResults: []execshell.ExecutionResult{{StandardOutput: listingOutput}},
		queuedErrors:  []error{nil, closeFailure},
	}
	client, constructionError := forge.NewClient(executor)
	require.NoError(testInstance, constructionError)

	cleanupMessages, purgeError := client.PurgeChangeArtifacts(context.Background(), shared.RepoLocator{Slug: "example-org/alpha"}, "patchfleet/")
	require.ErrorIs(testInstance, purgeError, closeFailure)
	require.Empty(testInstance, cleanupMessages)
}

func TestCloneRepository(testInstance *testing.T) {
	executor := &scriptedForgeExecutor{}
	client, constructionError := forge.NewClient(executor)
	require.NoError(testInstance, constructionError)

	cloneError := client.CloneRepository(context.Background(), "example-org/alpha", "/tmp/alpha")
	require.NoError(testInstance, cloneError)
	require.Equal(testInstance, []string{"repo", "clone", "example-org/alpha", "/tmp/alpha"}, executor.recordedDetails[0].Arguments)
}
