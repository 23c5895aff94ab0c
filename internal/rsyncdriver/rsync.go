// Package rsyncdriver provides the crawler's rsync category probe with
// a listing of one rsync module, shelled out to the system rsync
// binary the way spec.md §6's run_rsync contract describes.
package rsyncdriver

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
)

// Entry is one line of an rsync listing, in the "mode size date time
// name" field order rsync itself emits.
type Entry struct {
	Mode string
	Size string
	Date string
	Time string
	Name string
}

// IsSymlink reports whether the entry's mode indicates a symlink,
// exempting it from the size comparison in the rsync category probe
// (original_source/utility/crawler.py's try_per_category).
func (e Entry) IsSymlink() bool {
	return strings.HasPrefix(e.Mode, "l")
}

// Runner invokes rsync against a module URL and returns its listing.
// The default implementation is RsyncRunner; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, url string, extraArgs ...string) (exitCode int, entries []Entry, err error)
}

// RsyncRunner shells out to the rsync binary found on PATH.
type RsyncRunner struct {
	// Path overrides the binary name, mainly for tests. Empty means "rsync".
	Path string
}

// Run lists url (an rsync:// module or directory, which must list its
// own contents rather than be copied) the same way
// run_rsync(url, '--no-motd') did: one invocation of
// `rsync <extraArgs...> <url>` (the caller passes --no-motd in
// extraArgs), parsed line by line into
// Entry values. An exit code of 10 means the remote refused the
// connection; any other non-zero code is still returned (the caller
// decides whether a non-empty listing alongside it is still usable,
// per spec.md §4.2).
func (r RsyncRunner) Run(ctx context.Context, url string, extraArgs ...string) (int, []Entry, error) {
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	bin := r.Path
	if bin == "" {
		bin = "rsync"
	}
	args := append(append([]string{}, extraArgs...), url)
	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, nil, errors.Wrap(err, "rsyncdriver: stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return 0, nil, errors.Wrap(err, "rsyncdriver: start rsync")
	}

	var entries []Entry
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if e, ok := parseLine(scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	exitCode := 0
	var exitError *exec.ExitError
	if errors.As(waitErr, &exitError) {
		exitCode = exitError.ExitCode()
	} else if waitErr != nil {
		return 0, nil, errors.Wrap(waitErr, "rsyncdriver: run rsync")
	}
	if scanErr != nil {
		return exitCode, entries, errors.Wrap(scanErr, "rsyncdriver: read rsync output")
	}
	return exitCode, entries, nil
}

// parseLine splits one rsync listing line into its five
// whitespace-separated fields. Lines with fewer than five fields are
// not valid entries and are skipped, as the original crawler's
// IndexError handler did.
func parseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Entry{}, false
	}
	return Entry{
		Mode: fields[0],
		Size: fields[1],
		Date: fields[2],
		Time: fields[3],
		Name: fields[4],
	}, true
}
