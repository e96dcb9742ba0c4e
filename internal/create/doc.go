// Package create implements the transactional change saga for a single
// repository: preview, worktree guards, compensable mutations, validation,
// and pull request creation. Compensations accumulate in a transaction and
// run in reverse order when any step fails.
package create
