package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const gitMetadataDirectoryNameConstant = ".git"

// FilesystemRepositoryDiscoverer locates git working copies beneath a root
// directory on disk.
type FilesystemRepositoryDiscoverer struct{}

// NewFilesystemRepositoryDiscoverer constructs a discoverer backed by filepath.WalkDir.
func NewFilesystemRepositoryDiscoverer() *FilesystemRepositoryDiscoverer {
	return &FilesystemRepositoryDiscoverer{}
}

// DiscoverRepositories walks rootPath and returns every directory containing
// a .git entry, sorted lexicographically. Discovered repositories are not
// descended into, so working copies nested inside another repository are not
// reported.
func (discoverer *FilesystemRepositoryDiscoverer) DiscoverRepositories(rootPath string) ([]string, error) {
	var repositoryPaths []string

	walkError := filepath.WalkDir(rootPath, func(candidatePath string, directoryEntry fs.DirEntry, visitError error) error {
		if visitError != nil {
			return nil
		}
		if !directoryEntry.IsDir() {
			return nil
		}

		// A submodule checkout carries a .git file rather than a
		// directory, so any .git entry marks a working copy.
		metadataPath := filepath.Join(candidatePath, gitMetadataDirectoryNameConstant)
		if _, statError := os.Lstat(metadataPath); statError != nil {
			return nil
		}

		repositoryPaths = append(repositoryPaths, candidatePath)
		return filepath.SkipDir
	})
	if walkError != nil {
		return nil, walkError
	}

	sort.Strings(repositoryPaths)
	return repositoryPaths, nil
}
