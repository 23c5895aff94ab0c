package crawler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mirrorwatch/crawler/internal/catalog"
	"github.com/mirrorwatch/crawler/internal/rsyncdriver"
)

const maxBackoff = 8 * time.Second

// WalkOptions configures one DirectoryWalker pass over a host's
// categories.
type WalkOptions struct {
	Canary bool // reserved; refused at startup per spec.md §9, kept for the filter below
}

// WalkHostCategory implements spec.md §4.6 for one HostCategory: it
// attempts the rsync category probe first, and falls back to a
// per-directory FTP/HTTP walk only when no rsync URL was advertised at
// all. Verdicts are accumulated into verdicts; ParentPropagator is
// invoked on every positive per-directory result.
//
// A category-scoped rsync failure (ErrRsyncCategoryFailed) never
// escapes this function — it is logged and the category is considered
// done, matching original_source/utility/crawler.py's per_host: a
// definitive (true or false) try_per_category result always ends the
// category, success or not, without aborting the host or touching its
// exit code. Only an unrecognized error propagates to the caller.
func WalkHostCategory(
	ctx context.Context,
	hs *HostState,
	deadline Deadline,
	runner rsyncdriver.Runner,
	resolve DirectoryResolver,
	hc *catalog.HostCategory,
	verdicts catalog.VerdictMap,
	opts WalkOptions,
) error {
	if hc.AlwaysUpToDate {
		return nil
	}

	categoryURL, ok := SelectMethod(hc.URLs, "")
	if !ok {
		return nil
	}

	if scheme, _ := categoryURL.Scheme(); scheme == catalog.SchemeRsync {
		propagate := func(d *catalog.Directory) {
			if err := PropagateParents(ctx, resolve, verdicts, hc, d); err != nil {
				slog.Warn("parent propagation failed", "directory", d.Name, "error", err)
			}
		}
		err := ProbeCategoryRsync(ctx, runner, categoryURL.URL, hc, verdicts, propagate)
		if err != nil {
			if errors.Is(err, ErrRsyncCategoryFailed) {
				slog.Warn("rsync category probe failed, skipping category", "category", hc.Category.Name, "error", err)
				return nil
			}
			return err
		}
		return nil
	}

	// No rsync URL: re-select excluding rsync (there wasn't one to
	// begin with, so this is just categoryURL itself) and walk
	// directories one at a time.
	topName := hc.Category.TopDir.Name
	prefixLen := len(topName) + 1

	backoff := time.Second
	for _, d := range hc.Directories {
		for {
			if err := deadline.Check(); err != nil {
				return err
			}
			if !d.Readable {
				break
			}
			if opts.Canary && !strings.HasSuffix(d.Name, "/repodata") && !strings.HasSuffix(d.Name, "/iso") {
				break
			}

			dirName := ""
			if len(d.Name) > prefixLen {
				dirName = d.Name[prefixLen:]
			}
			dirURL := categoryURL.URL
			if dirName != "" {
				dirURL = dirURL + "/" + dirName
			}

			verdict, err := probeDirectory(ctx, hs, categoryURL, dirURL, d)
			if err != nil {
				if IsTryLater(err) {
					slog.Warn("server load exceeded, trying later", "delay_seconds", backoff.Seconds())
					if scheme, _ := categoryURL.Scheme(); scheme == catalog.SchemeHTTP && !hs.KeepalivesAvailable {
						slog.Warn("host does not have HTTP keep-alives enabled")
					}
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
						return ctx.Err()
					}
					if backoff < maxBackoff {
						backoff *= 2
						if backoff > maxBackoff {
							backoff = maxBackoff
						}
					}
					continue // retry the same directory
				}
				return errors.Wrap(err, "crawler: unhandled exception raised")
			}

			key := catalog.VerdictKey{HostCategory: hc, Directory: d}
			if v, known := verdict.Bool(); known {
				verdicts[key] = verdict
				if v {
					slog.Info(dirURL)
					if err := PropagateParents(ctx, resolve, verdicts, hc, d); err != nil {
						slog.Warn("parent propagation failed", "directory", d.Name, "error", err)
					}
				} else {
					slog.Warn("not up to date", "directory", d.Name)
				}
			}
			break
		}
	}

	if scheme, _ := categoryURL.Scheme(); scheme == catalog.SchemeHTTP && !hs.KeepalivesAvailable {
		slog.Warn("host does not have HTTP keep-alives enabled")
	}
	return nil
}

// probeDirectory dispatches to the FTP or HTTP probe based on the
// selected category URL's scheme. A host-category only ever carries
// one chosen URL per crawl, so there is no cross-scheme fallback to
// perform within a single directory.
func probeDirectory(ctx context.Context, hs *HostState, categoryURL catalog.HostCategoryURL, dirURL string, d *catalog.Directory) (catalog.Verdict, error) {
	scheme, _ := categoryURL.Scheme()
	switch scheme {
	case catalog.SchemeFTP:
		return ProbeDirectoryFTP(hs, dirURL, d)
	case catalog.SchemeHTTP:
		return ProbeDirectoryHTTP(ctx, hs, dirURL, d)
	default:
		return catalog.VerdictUnknown, nil
	}
}
