package diff

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	fileSeparatorPrefixConstant     = "diff --git "
	updatedFileMarkerPrefixConstant = "+++ "
	originalFileMarkerPrefix        = "--- "
	updatedFilePathPrefixConstant   = "b/"
	deletionLinePrefixConstant      = "-"
	insertionLinePrefixConstant     = "+"
	contextLinePrefixConstant       = " "
	devNullPathConstant             = "/dev/null"
)

// hunkHeaderPattern captures the declared original and updated start lines of a hunk.
var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// FilePatch is the per-file (filename, original, updated) triple recovered
// from a multi-file unified-diff blob.
type FilePatch struct {
	FileName     string
	OriginalText string
	UpdatedText  string
}

type reconstructionState struct {
	fileName           string
	fileOpen           bool
	originalLines      []string
	updatedLines       []string
	nextOriginalLine   int
	nextUpdatedLine    int
	reconstructedFiles []FilePatch
}

// Reconstruct recovers per-file before/after text from a forge-style
// unified-diff blob in a single pass. The algorithm is a best-effort
// approximation tuned to forge patch output, not a general unified-diff
// parser: gaps between hunks are backfilled with blank lines to keep both
// sides line-aligned, while unmodified content trailing a file's last hunk
// is never represented.
func Reconstruct(diffBlob string) []FilePatch {
	state := reconstructionState{nextOriginalLine: 1, nextUpdatedLine: 1}

	for _, blobLine := range strings.Split(diffBlob, lineTerminatorConstant) {
		switch {
		case strings.HasPrefix(blobLine, fileSeparatorPrefixConstant):
			state.flushOpenFile()
		case strings.HasPrefix(blobLine, updatedFileMarkerPrefixConstant):
			state.setFileName(strings.TrimPrefix(blobLine, updatedFileMarkerPrefixConstant))
		case strings.HasPrefix(blobLine, originalFileMarkerPrefix):
			// File-header marker, not content.
		case hunkHeaderPattern.MatchString(blobLine):
			state.applyHunkHeader(blobLine)
		case strings.HasPrefix(blobLine, contextLinePrefixConstant):
			content := blobLine[len(contextLinePrefixConstant):]
			state.originalLines = append(state.originalLines, content)
			state.updatedLines = append(state.updatedLines, content)
			state.nextOriginalLine++
			state.nextUpdatedLine++
		case strings.HasPrefix(blobLine, deletionLinePrefixConstant):
			state.originalLines = append(state.originalLines, blobLine[len(deletionLinePrefixConstant):])
			state.nextOriginalLine++
		case strings.HasPrefix(blobLine, insertionLinePrefixConstant):
			state.updatedLines = append(state.updatedLines, blobLine[len(insertionLinePrefixConstant):])
			state.nextUpdatedLine++
		}
	}

	state.flushOpenFile()
	return state.reconstructedFiles
}

func (state *reconstructionState) setFileName(markerPath string) {
	trimmedPath := strings.TrimSpace(markerPath)
	trimmedPath = strings.TrimPrefix(trimmedPath, updatedFilePathPrefixConstant)
	if trimmedPath == devNullPathConstant {
		return
	}
	state.fileName = trimmedPath
	state.fileOpen = true
}

func (state *reconstructionState) applyHunkHeader(headerLine string) {
	headerMatch := hunkHeaderPattern.FindStringSubmatch(headerLine)
	declaredOriginalStart, _ := strconv.Atoi(headerMatch[1])
	declaredUpdatedStart, _ := strconv.Atoi(headerMatch[2])

	for state.nextOriginalLine < declaredOriginalStart {
		state.originalLines = append(state.originalLines, "")
		state.nextOriginalLine++
	}
	for state.nextUpdatedLine < declaredUpdatedStart {
		state.updatedLines = append(state.updatedLines, "")
		state.nextUpdatedLine++
	}
}

func (state *reconstructionState) flushOpenFile() {
	if state.fileOpen {
		state.reconstructedFiles = append(state.reconstructedFiles, FilePatch{
			FileName:     state.fileName,
			OriginalText: strings.Join(state.originalLines, lineTerminatorConstant),
			UpdatedText:  strings.Join(state.updatedLines, lineTerminatorConstant),
		})
	}

	state.fileName = ""
	state.fileOpen = false
	state.originalLines = nil
	state.updatedLines = nil
	state.nextOriginalLine = 1
	state.nextUpdatedLine = 1
}
