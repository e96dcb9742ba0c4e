// Package change defines the closed set of file transformations patchfleet
// can apply uniformly across a fleet of repositories.
package change
