package fleet

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	manifestLoadErrorTemplateConstant    = "failed to load fleet manifest: %w"
	manifestParseErrorTemplateConstant   = "failed to parse fleet manifest: %w"
	manifestPathRequiredMessageConstant  = "fleet manifest path must be provided"
	manifestEmptyRootsMessageConstant    = "fleet manifest must define at least one root"
	manifestPoolSizeRangeMessageConstant = "fleet manifest pool_size must be positive"
	defaultPoolSizeConstant              = 8
)

// Manifest describes the fleet a run operates on: the filesystem roots to
// discover repositories under, substring filters narrowing the fleet, and
// the size of the worker pool.
type Manifest struct {
	Roots    []string `yaml:"roots"`
	Filters  []string `yaml:"filters"`
	PoolSize int      `yaml:"pool_size"`
}

// LoadManifest reads a fleet manifest from disk and performs basic
// validation. A missing pool_size falls back to the default of 8 workers.
func LoadManifest(filePath string) (Manifest, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Manifest{}, errors.New(manifestPathRequiredMessageConstant)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Manifest{}, fmt.Errorf(manifestLoadErrorTemplateConstant, readError)
	}

	var manifest Manifest
	if unmarshalError := yaml.Unmarshal(contentBytes, &manifest); unmarshalError != nil {
		return Manifest{}, fmt.Errorf(manifestParseErrorTemplateConstant, unmarshalError)
	}

	if len(manifest.Roots) == 0 {
		return Manifest{}, errors.New(manifestEmptyRootsMessageConstant)
	}
	if manifest.PoolSize == 0 {
		manifest.PoolSize = defaultPoolSizeConstant
	}
	if manifest.PoolSize < 0 {
		return Manifest{}, errors.New(manifestPoolSizeRangeMessageConstant)
	}

	return manifest, nil
}

// FilterNames returns the names containing at least one of the provided
// case-sensitive substring filters. Empty filters keep every name.
func FilterNames(names []string, filters []string) []string {
	if len(filters) == 0 {
		return names
	}

	var filteredNames []string
	for _, candidateName := range names {
		for _, filterSubstring := range filters {
			if strings.Contains(candidateName, filterSubstring) {
				filteredNames = append(filteredNames, candidateName)
				break
			}
		}
	}
	return filteredNames
}
