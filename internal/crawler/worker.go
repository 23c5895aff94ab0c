package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mirrorwatch/crawler/internal/catalog"
	"github.com/mirrorwatch/crawler/internal/notify"
	"github.com/mirrorwatch/crawler/internal/rsyncdriver"
)

// Exit codes for one host worker, per spec.md §6's CLI surface.
const (
	ExitSuccess            = 0
	ExitHostFailure        = 1
	ExitTimeout            = 2
	ExitUnhandledException = 3
)

// WorkerConfig bundles the collaborators one host crawl needs.
type WorkerConfig struct {
	Store          catalog.Store
	Runner         rsyncdriver.Runner
	Notifier       notify.Notifier
	IncludePrivate bool
	Categories     []string // empty means "all categories"
	Timeout        time.Duration
	LogDir         string
	Canary         bool
}

// CrawlHost implements original_source/utility/crawler.py's per_host:
// selects the host-categories to scan, walks each, and — on clean
// completion — commits the accumulated verdicts. It returns the exit
// code spec.md §6 assigns to the outcome; the caller (crawlAll in
// cmd/crawler/main.go) aggregates these across hosts.
func CrawlHost(ctx context.Context, cfg WorkerConfig, hostID int64) int {
	started := time.Now()
	rc := ExitSuccess
	defer func() {
		observeHostCrawlDuration(exitReasonLabel(rc), time.Since(started))
	}()

	host, err := cfg.Store.Host(ctx, hostID)
	if err != nil {
		slog.Error("failed to load host", "host_id", hostID, "error", err)
		rc = ExitUnhandledException
		return rc
	}

	if host.Private && !cfg.IncludePrivate {
		rc = ExitHostFailure
		return rc
	}

	toScan := selectHostCategories(host, cfg.Categories)
	if len(toScan) == 0 {
		countHostNotUpToDate("no_categories_found")
		_ = MarkNotUpToDate(ctx, cfg.Store, cfg.Notifier, host.ID, host.Name,
			"No host category directories found.  Check that your Host Category URLs are correct.",
			logPath(cfg.LogDir, host.ID), nil)
		rc = ExitHostFailure
		return rc
	}

	hs := NewHostState()
	defer hs.Close()
	deadline := NewDeadline(cfg.Timeout)
	verdicts := catalog.VerdictMap{}

	for _, hc := range toScan {
		slog.Info("scanning category", "category", hc.Category.Name, "host", host.Name)

		err := WalkHostCategory(ctx, hs, deadline, cfg.Runner, cfg.Store.DirectoryByName, hc, verdicts, WalkOptions{Canary: cfg.Canary})
		if err == nil {
			continue
		}
		if errors.Is(err, ErrTimeout) {
			rc = ExitTimeout
			return rc
		}

		// A category-scoped rsync failure (ErrRsyncCategoryFailed) never
		// reaches here: WalkHostCategory logs and absorbs it so the
		// crawl continues to the next category. Anything that does
		// reach here is a genuinely unhandled exception.
		exc := &notify.ExceptionInfo{Kind: "crawler", Value: err.Error(), Stack: fmt.Sprintf("%+v", err)}
		countHostNotUpToDate("unhandled_exception")
		if markErr := MarkNotUpToDate(ctx, cfg.Store, cfg.Notifier, host.ID, host.Name,
			"Unhandled exception raised.  This is a bug in the mirror crawler.",
			logPath(cfg.LogDir, host.ID), exc); markErr != nil {
			slog.Error("failed to mark host not up to date", "host", host.Name, "error", markErr)
		}
		rc = ExitHostFailure
		break
	}

	if rc != ExitSuccess {
		return rc
	}

	if len(verdicts) == 0 {
		// Every category was walked without error, but none produced a
		// single verdict — spec.md §4.2's closing sentence: mark the
		// host not-up-to-date the same way an empty category selection
		// does, rather than silently reporting success.
		countHostNotUpToDate("no_categories_found")
		_ = MarkNotUpToDate(ctx, cfg.Store, cfg.Notifier, host.ID, host.Name,
			"No host category directories found.  Check that your Host Category URLs are correct.",
			logPath(cfg.LogDir, host.ID), nil)
		rc = ExitHostFailure
		return rc
	}

	if _, err := SyncResults(ctx, cfg.Store, host.ID, verdicts, time.Now().UTC()); err != nil {
		slog.Error("failed to sync results", "host", host.Name, "error", err)
		rc = ExitUnhandledException
		return rc
	}
	return rc
}

// exitReasonLabel turns an exit code into the metric label
// observeHostCrawlDuration groups by.
func exitReasonLabel(rc int) string {
	switch rc {
	case ExitSuccess:
		return "success"
	case ExitHostFailure:
		return "host_failure"
	case ExitTimeout:
		return "timeout"
	default:
		return "unhandled_exception"
	}
}

// selectHostCategories implements spec.md §6's --category filter: an
// empty Categories list scans everything; otherwise only host
// categories whose category name is listed.
func selectHostCategories(host *catalog.Host, categories []string) []*catalog.HostCategory {
	if len(categories) == 0 {
		return host.Categories
	}
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	var out []*catalog.HostCategory
	for _, hc := range host.Categories {
		if hc.Category != nil && want[hc.Category.Name] {
			out = append(out, hc)
		}
	}
	return out
}

func logPath(dir string, hostID int64) string {
	if dir == "" {
		return ""
	}
	return dir + "/" + strconv.FormatInt(hostID, 10) + ".log"
}
