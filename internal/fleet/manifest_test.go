package fleet_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchfleet/patchfleet/internal/fleet"
)

const manifestFilePermissions = 0o644

func writeManifestFile(testInstance *testing.T, manifestContent string) string {
	testInstance.Helper()

	manifestPath := filepath.Join(testInstance.TempDir(), "fleet.yaml")
	writeError := os.WriteFile(manifestPath, []byte(manifestContent), manifestFilePermissions)
	require.NoError(testInstance, writeError)
	return manifestPath
}

func TestLoadManifest(testInstance *testing.T) {
	testCases := []struct {
		name             string
		manifestContent  string
		expectedManifest fleet.Manifest
		expectError      bool
	}{
		{
			name: "loadsCompleteManifest",
			manifestContent: "roots:\n  - /srv/fleet\nfilters:\n  - service\npool_size: 4\n",
			expectedManifest: fleet.Manifest{
				Roots:    []string{"/srv/fleet"},
				Filters:  []string{"service"},
				PoolSize: 4,
			},
		},
		{
			name:            "defaultsPoolSizeToEight",
			manifestContent: "roots:\n  - /srv/fleet\n",
			expectedManifest: fleet.Manifest{
				Roots:    []string{"/srv/fleet"},
				PoolSize: 8,
			},
		},
		{
			name:            "rejectsMissingRoots",
			manifestContent: "filters:\n  - service\n",
			expectError:     true,
		},
		{
			name:            "rejectsNegativePoolSize",
			manifestContent: "roots:\n  - /srv/fleet\npool_size: -1\n",
			expectError:     true,
		},
		{
			name:            "rejectsMalformedYAML",
			manifestContent: "roots: [unclosed\n",
			expectError:     true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			manifestPath := writeManifestFile(subtest, testCase.manifestContent)

			manifest, loadError := fleet.LoadManifest(manifestPath)
			if testCase.expectError {
				require.Error(subtest, loadError)
				return
			}
			require.NoError(subtest, loadError)
			require.Equal(subtest, testCase.expectedManifest, manifest)
		})
	}
}

func TestLoadManifestRejectsEmptyPath(testInstance *testing.T) {
	_, loadError := fleet.LoadManifest("  ")
	require.Error(testInstance, loadError)
}

func TestFilterNames(testInstance *testing.T) {
	fleetNames := []string{"org/payments-service", "org/web-frontend", "org/Payments-API"}

	testCases := []struct {
		name          string
		filters       []string
		expectedNames []string
	}{
		{name: "emptyFiltersKeepEverything", filters: nil, expectedNames: fleetNames},
		{name: "substringMatches", filters: []string{"payments"}, expectedNames: []string{"org/payments-service"}},
		{name: "matchingIsCaseSensitive", filters: []string{"Payments"}, expectedNames: []string{"org/Payments-API"}},
		{name: "anyFilterSuffices", filters: []string{"frontend", "payments"}, expectedNames: []string{"org/payments-service", "org/web-frontend"}},
		{name: "noMatchYieldsEmpty", filters: []string{"absent"}, expectedNames: nil},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			require.Equal(subtest, testCase.expectedNames, fleet.FilterNames(fleetNames, testCase.filters))
		})
	}
}
