// Package forge implements the code-forge surface over the GitHub CLI:
// repository listing, pull request lifecycle, and branch cleanup.
package forge
