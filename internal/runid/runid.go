// Package runid mints identifiers for runs, jobs and watcher events.
package runid

import "github.com/google/uuid"

// New returns a fresh random identifier, e.g. for a RunRequest or FileJob.
func New() string {
	return uuid.NewString()
}

// Short returns the first 8 hex characters of a new identifier, handy for
// log lines and directory names where a full UUID is unwieldy.
func Short() string {
	return uuid.NewString()[:8]
}
