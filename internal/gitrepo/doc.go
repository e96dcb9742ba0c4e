// Package gitrepo implements the version-control surface the orchestrators
// depend on, backed by git process invocations through execshell.
package gitrepo
