// Package diff renders annotated, line-numbered diffs between text pairs and
// reconstructs per-file before/after text from forge-style unified-diff blobs.
//
// Rendering and reconstruction are pure functions; terminal styling is an
// optional layer applied by Renderer on top of the annotation contract.
package diff
