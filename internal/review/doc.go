// Package review inspects and progresses the pull requests a fleet change
// produced: listing them with their diffs and statuses, approving and
// merging them under guard conditions, and deleting or purging the change's
// remote artifacts.
package review
