package create

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRepositoryMarker(testInstance *testing.T, repositoryPath string) {
	testInstance.Helper()
	require.NoError(testInstance, os.MkdirAll(filepath.Join(repositoryPath, ".git"), 0o755))
}

func TestDeriveRepositorySlug(testInstance *testing.T) {
	testCases := []struct {
		name           string
		rootPath       string
		repositoryPath string
		expectedSlug   string
	}{
		{
			name:           "nested_repository",
			rootPath:       "/fleet",
			repositoryPath: "/fleet/team/alpha",
			expectedSlug:   "team/alpha",
		},
		{
			name:           "direct_child",
			rootPath:       "/fleet",
			repositoryPath: "/fleet/beta",
			expectedSlug:   "beta",
		},
		{
			name:           "root_is_repository",
			rootPath:       "/fleet/alpha",
			repositoryPath: "/fleet/alpha",
			expectedSlug:   "alpha",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			require.Equal(subtest, testCase.expectedSlug, deriveRepositorySlug(testCase.rootPath, testCase.repositoryPath))
		})
	}
}

func TestDiscoverRepositoriesFiltersOnRootRelativeSlugs(testInstance *testing.T) {
	rootPath := testInstance.TempDir()
	writeRepositoryMarker(testInstance, filepath.Join(rootPath, "team", "alpha"))
	writeRepositoryMarker(testInstance, filepath.Join(rootPath, "beta"))

	builder := &CommandBuilder{}

	repositories, discoveryError := builder.discoverRepositories(runOptions{
		roots:   []string{rootPath},
		filters: []string{"team"},
	})
	require.NoError(testInstance, discoveryError)
	require.Len(testInstance, repositories, 1)
	require.Equal(testInstance, "team/alpha", repositories[0].slug)
	require.Equal(testInstance, filepath.Join(rootPath, "team", "alpha"), repositories[0].path)
}

func TestDiscoverRepositoriesKeepsAllWithoutFilters(testInstance *testing.T) {
	rootPath := testInstance.TempDir()
	writeRepositoryMarker(testInstance, filepath.Join(rootPath, "team", "alpha"))
	writeRepositoryMarker(testInstance, filepath.Join(rootPath, "beta"))

	builder := &CommandBuilder{}

	repositories, discoveryError := builder.discoverRepositories(runOptions{roots: []string{rootPath}})
	require.NoError(testInstance, discoveryError)

	discoveredSlugs := make([]string, 0, len(repositories))
	for _, repository := range repositories {
		discoveredSlugs = append(discoveredSlugs, repository.slug)
	}
	require.ElementsMatch(testInstance, []string{"team/alpha", "beta"}, discoveredSlugs)
}
