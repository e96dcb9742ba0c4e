package diff_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchfleet/patchfleet/internal/diff"
)

const singleHunkDiffBlob = `diff --git a/f.txt b/f.txt
--- a/f.txt
+++ b/f.txt
@@ -1,3 +1,3 @@
 a
-b
+X
 c`

const multiFileDiffBlob = `diff --git a/first.txt b/first.txt
--- a/first.txt
+++ b/first.txt
@@ -1,1 +1,1 @@
-old
+new
diff --git a/second.txt b/second.txt
--- a/second.txt
+++ b/second.txt
@@ -1,1 +1,2 @@
 keep
+added`

const gappedHunkDiffBlob = `diff --git a/g.txt b/g.txt
--- a/g.txt
+++ b/g.txt
@@ -3,2 +3,2 @@
 ctx
-old
+new`

const deletedFileDiffBlob = `diff --git a/gone.txt b/gone.txt
--- a/gone.txt
+++ /dev/null
@@ -1,1 +0,0 @@
-contents`

func TestReconstructSingleHunk(testInstance *testing.T) {
	filePatches := diff.Reconstruct(singleHunkDiffBlob)

	require.Len(testInstance, filePatches, 1)
	require.Equal(testInstance, "f.txt", filePatches[0].FileName)
	require.Equal(testInstance, "a\nb\nc", filePatches[0].OriginalText)
	require.Equal(testInstance, "a\nX\nc", filePatches[0].UpdatedText)
}

func TestReconstructSplitsFilesAtSeparators(testInstance *testing.T) {
	filePatches := diff.Reconstruct(multiFileDiffBlob)

	require.Len(testInstance, filePatches, 2)
	require.Equal(testInstance, "first.txt", filePatches[0].FileName)
	require.Equal(testInstance, "old", filePatches[0].OriginalText)
	require.Equal(testInstance, "new", filePatches[0].UpdatedText)
	require.Equal(testInstance, "second.txt", filePatches[1].FileName)
	require.Equal(testInstance, "keep", filePatches[1].OriginalText)
	require.Equal(testInstance, "keep\nadded", filePatches[1].UpdatedText)
}

func TestReconstructPadsGapBeforeHunkStart(testInstance *testing.T) {
	filePatches := diff.Reconstruct(gappedHunkDiffBlob)

	require.Len(testInstance, filePatches, 1)
	require.Equal(testInstance, "\n\nctx\nold", filePatches[0].OriginalText)
	require.Equal(testInstance, "\n\nctx\nnew", filePatches[0].UpdatedText)
}

func TestReconstructIgnoresDevNullTarget(testInstance *testing.T) {
	filePatches := diff.Reconstruct(deletedFileDiffBlob)
	require.Empty(testInstance, filePatches)
}

func TestReconstructEmptyBlobYieldsNoFiles(testInstance *testing.T) {
	require.Empty(testInstance, diff.Reconstruct(""))
}

// Re-rendering a reconstructed patch reproduces the change lines of the
// original hunk, making reconstruct a best-effort left inverse of render.
func TestReconstructThenRenderRecoversChangeLines(testInstance *testing.T) {
	filePatches := diff.Reconstruct(singleHunkDiffBlob)
	require.Len(testInstance, filePatches, 1)

	renderedLines, renderError := diff.Render(filePatches[0].OriginalText, filePatches[0].UpdatedText, 1)
	require.NoError(testInstance, renderError)

	var deletionContents []string
	var insertionContents []string
	for _, renderedLine := range renderedLines {
		switch renderedLine.Kind {
		case diff.LineKindDeletion:
			deletionContents = append(deletionContents, renderedLine.Content)
		case diff.LineKindInsertion:
			insertionContents = append(insertionContents, renderedLine.Content)
		}
	}
	require.Equal(testInstance, []string{"b"}, deletionContents)
	require.Equal(testInstance, []string{"X"}, insertionContents)
}
