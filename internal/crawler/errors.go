// Package crawler implements the per-host mirror verification engine:
// HostState, the rsync/HTTP/FTP probes, MethodSelector, DirectoryWalker,
// ParentPropagator, ResultSync and DeadlineGuard.
package crawler

import "github.com/cockroachdb/errors"

// Sentinel errors forming the taxonomy that replaces the source
// implementation's exception classes (TryLater, ForbiddenExpected,
// TimeoutException, HTTPUnknown, HTTP500). errors.Is/errors.As classify
// these at the walker and worker boundaries instead of a class
// hierarchy.
var (
	// ErrTimeout means the per-host DeadlineGuard fired. It unwinds the
	// worker and is never handled at the directory boundary.
	ErrTimeout = errors.New("crawler: per-host deadline exceeded")

	// ErrHTTP500 means the remote returned a 5xx status. Unhandled at
	// the directory level, it marks the host not-up-to-date.
	ErrHTTP500 = errors.New("crawler: http 5xx response")

	// ErrHTTPUnknown means a HEAD probe could not be classified: a
	// transport failure surviving one retry, an unparseable status, or
	// a redirect chain exceeding the cap.
	ErrHTTPUnknown = errors.New("crawler: http probe outcome unknown")

	// ErrFTPUnknownReply means the FTP server returned a reply code
	// this crawler's vocabulary does not recognize (spec §4.4's "any
	// other code" case). It propagates and marks the host
	// not-up-to-date, unlike the other FTP signals which resolve
	// locally.
	ErrFTPUnknownReply = errors.New("crawler: unrecognized ftp reply code")
)

// TryLaterError signals a transient remote condition: the same
// directory should be retried after Delay. The walker owns the backoff
// schedule; probes only report that a retry is warranted.
type TryLaterError struct {
	Delay int // seconds; informational, walker computes its own schedule
}

func (e *TryLaterError) Error() string { return "crawler: try later" }

// ForbiddenExpectedError means the remote refused access to a
// directory already known to be unreadable in the catalog. It is not
// counted against the host; the walker treats it as verdict unknown.
type ForbiddenExpectedError struct{}

func (e *ForbiddenExpectedError) Error() string { return "crawler: forbidden, expected" }

// IsTryLater reports whether err (or any error it wraps) signals a
// try-later condition.
func IsTryLater(err error) bool {
	var tl *TryLaterError
	return errors.As(err, &tl)
}

// IsForbiddenExpected reports whether err (or any error it wraps)
// signals a forbidden-expected condition.
func IsForbiddenExpected(err error) bool {
	var fe *ForbiddenExpectedError
	return errors.As(err, &fe)
}
