// Package fleet coordinates a change across many repositories: loading the
// fleet manifest, matching files inside each working copy, filtering the
// fleet, and running per-repository tasks on a bounded worker pool with
// uninterleaved output.
package fleet
