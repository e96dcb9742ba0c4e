// Package ui adapts command lifecycle events into human-readable console output.
package ui
