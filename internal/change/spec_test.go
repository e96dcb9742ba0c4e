package change_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchfleet/patchfleet/internal/change"
)

func TestApplyToContent(testInstance *testing.T) {
	testCases := []struct {
		name            string
		spec            change.Spec
		originalContent string
		expectedOutcome change.FileOutcome
	}{
		{
			name:            "deleteMarksFileForRemoval",
			spec:            change.NewDeleteSpec(),
			originalContent: "anything\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "", Changed: true, Remove: true},
		},
		{
			name:            "addNormalizesToSingleTrailingNewline",
			spec:            change.NewAddSpec("notes.md", "line one\nline two\n\n\n"),
			originalContent: "",
			expectedOutcome: change.FileOutcome{UpdatedContent: "line one\nline two\n", Changed: true},
		},
		{
			name:            "addAppendsMissingTrailingNewline",
			spec:            change.NewAddSpec("notes.md", "line one"),
			originalContent: "",
			expectedOutcome: change.FileOutcome{UpdatedContent: "line one\n", Changed: true},
		},
		{
			name:            "addIdenticalContentIsUnchanged",
			spec:            change.NewAddSpec("notes.md", "line one\n"),
			originalContent: "line one\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "line one\n"},
		},
		{
			name:            "subReplacesEveryOccurrence",
			spec:            change.NewSubSpec("foo", "bar"),
			originalContent: "foo calls foo\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "bar calls bar\n", Changed: true},
		},
		{
			name:            "subWithoutMatchIsUnchanged",
			spec:            change.NewSubSpec("missing", "bar"),
			originalContent: "foo calls foo\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "foo calls foo\n"},
		},
		{
			name:            "subIdenticalReplacementIsUnchanged",
			spec:            change.NewSubSpec("foo", "foo"),
			originalContent: "foo\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "foo\n"},
		},
		{
			name:            "regexRewritesMatches",
			spec:            change.NewRegexSpec(`v\d+`, "v2"),
			originalContent: "release v1 and v3\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "release v2 and v2\n", Changed: true},
		},
		{
			name:            "regexCompileFailureIsSoftSkip",
			spec:            change.NewRegexSpec("(unclosed", "x"),
			originalContent: "content\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "content\n"},
		},
		{
			name:            "regexWithoutMatchIsUnchanged",
			spec:            change.NewRegexSpec(`z{5}`, "x"),
			originalContent: "content\n",
			expectedOutcome: change.FileOutcome{UpdatedContent: "content\n"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			outcome := testCase.spec.ApplyToContent(testCase.originalContent)
			require.Equal(subtest, testCase.expectedOutcome, outcome)
		})
	}
}

func TestKindString(testInstance *testing.T) {
	require.Equal(testInstance, "delete", change.KindDelete.String())
	require.Equal(testInstance, "add", change.KindAdd.String())
	require.Equal(testInstance, "sub", change.KindSub.String())
	require.Equal(testInstance, "regex", change.KindRegex.String())
}
