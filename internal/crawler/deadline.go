package crawler

import "time"

// Deadline replaces the source implementation's thread-local start
// time (spec.md §9 DESIGN NOTES) with an explicit value threaded
// through the per-directory walker. One Deadline is created per host
// worker. The rsync category probe does not take a Deadline: its
// per-directory comparison loop runs to completion without checking it.
type Deadline struct {
	start   time.Time
	timeout time.Duration
}

// NewDeadline starts a deadline that expires after timeout has
// elapsed.
func NewDeadline(timeout time.Duration) Deadline {
	return Deadline{start: time.Now(), timeout: timeout}
}

// Check reports ErrTimeout once the deadline has elapsed. Called at
// every directory boundary of the per-directory walk, never inside a
// single probe request, so a
// slow-but-live HEAD or LIST is never killed mid-flight.
func (d Deadline) Check() error {
	if time.Since(d.start) > d.timeout {
		return ErrTimeout
	}
	return nil
}

// Elapsed reports the time since the deadline started, for logging.
func (d Deadline) Elapsed() time.Duration {
	return time.Since(d.start)
}
