// Package shared defines the per-repository execution context and the
// collaborator interfaces the patchfleet core depends on.
package shared
