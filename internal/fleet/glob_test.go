package fleet_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchfleet/patchfleet/internal/fleet"
)

const matcherFilePermissions = 0o644

func populateRepository(testInstance *testing.T, relativePaths []string) string {
	testInstance.Helper()

	repositoryPath := testInstance.TempDir()
	for _, relativePath := range relativePaths {
		absolutePath := filepath.Join(repositoryPath, filepath.FromSlash(relativePath))
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
		require.NoError(testInstance, os.WriteFile(absolutePath, []byte("content\n"), matcherFilePermissions))
	}
	return repositoryPath
}

func TestMatchFiles(testInstance *testing.T) {
	repositoryFiles := []string{
		"README.md",
		"docs/guide.md",
		"src/main.go",
		".git/config",
		".git/objects/pack.md",
	}

	testCases := []struct {
		name          string
		globPattern   string
		expectedPaths []string
	}{
		{
			name:          "baseNamePatternMatchesRecursively",
			globPattern:   "*.md",
			expectedPaths: []string{"README.md", "docs/guide.md"},
		},
		{
			name:          "pathPatternMatchesFullRelativePath",
			globPattern:   "docs/*.md",
			expectedPaths: []string{"docs/guide.md"},
		},
		{
			name:          "noMatchesYieldsEmpty",
			globPattern:   "*.rs",
			expectedPaths: nil,
		},
	}

	repositoryPath := populateRepository(testInstance, repositoryFiles)
	matcher := fleet.NewFilesystemFileMatcher()

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			matchedPaths, matchError := matcher.MatchFiles(repositoryPath, testCase.globPattern)
			require.NoError(subtest, matchError)
			require.Equal(subtest, testCase.expectedPaths, matchedPaths)
		})
	}
}

func TestMatchFilesRejectsMalformedPattern(testInstance *testing.T) {
	repositoryPath := populateRepository(testInstance, []string{"README.md"})
	matcher := fleet.NewFilesystemFileMatcher()

	_, matchError := matcher.MatchFiles(repositoryPath, "[unclosed")
	require.Error(testInstance, matchError)
}
