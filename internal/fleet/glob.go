package fleet

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const (
	gitMetadataDirectoryNameConstant = ".git"
	patternSeparatorConstant         = "/"
)

// FilesystemFileMatcher resolves glob patterns against the files of a
// working copy.
type FilesystemFileMatcher struct{}

// NewFilesystemFileMatcher constructs a matcher backed by filepath.WalkDir.
func NewFilesystemFileMatcher() *FilesystemFileMatcher {
	return &FilesystemFileMatcher{}
}

// MatchFiles walks repositoryPath and returns the repository-relative paths
// of files matching globPattern, sorted lexicographically. A pattern without
// a path separator matches against file names anywhere in the tree; a
// pattern with separators matches against the full relative path. The .git
// directory is never entered.
func (matcher *FilesystemFileMatcher) MatchFiles(repositoryPath string, globPattern string) ([]string, error) {
	matchFullPath := strings.Contains(globPattern, patternSeparatorConstant)

	var matchedPaths []string
	walkError := filepath.WalkDir(repositoryPath, func(candidatePath string, directoryEntry fs.DirEntry, visitError error) error {
		if visitError != nil {
			return visitError
		}
		if directoryEntry.IsDir() {
			if directoryEntry.Name() == gitMetadataDirectoryNameConstant {
				return filepath.SkipDir
			}
			return nil
		}

		relativePath, relativeError := filepath.Rel(repositoryPath, candidatePath)
		if relativeError != nil {
			return relativeError
		}
		relativePath = filepath.ToSlash(relativePath)

		matchTarget := relativePath
		if !matchFullPath {
			matchTarget = path.Base(relativePath)
		}

		matched, matchError := path.Match(globPattern, matchTarget)
		if matchError != nil {
			return matchError
		}
		if matched {
			matchedPaths = append(matchedPaths, relativePath)
		}
		return nil
	})
	if walkError != nil {
		return nil, walkError
	}

	sort.Strings(matchedPaths)
	return matchedPaths, nil
}
