// Package discovery locates git working copies beneath filesystem roots.
package discovery
