package crawler

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mirrorwatch/crawler/internal/catalog"
	"github.com/mirrorwatch/crawler/internal/rsyncdriver"
)

// ErrRsyncCategoryFailed means the rsync category probe could not
// produce any usable listing at all (the run itself errored, exit code
// 10, or an empty listing) — spec.md §4.2's "hard failure for this
// category" case. It is scoped to the one category: the walker logs it
// and moves on to the next category without touching the host's exit
// code. The host is only marked not-up-to-date, per §4.2's closing
// sentence, if the crawl ends having produced no verdicts at all
// across every category (see worker.go's CrawlHost).
var ErrRsyncCategoryFailed = errors.New("crawler: rsync category probe failed")

type rsyncFile struct {
	mode string
	size string
}

// ProbeCategoryRsync implements spec.md §4.2: one rsync listing covers
// the whole category, compared directly against every Directory's
// expected files without a further per-directory round trip.
// On a positive verdict for d, propagate is invoked to mark d's
// ancestors up-to-date-by-inheritance (ParentPropagator, §8's
// ancestor invariant). A returned error is always ErrRsyncCategoryFailed
// and is scoped to this one category — the caller logs it and moves on,
// per spec.md §4.6 step 2 ("if it concludes definitively... move to
// next category").
func ProbeCategoryRsync(
	ctx context.Context,
	runner rsyncdriver.Runner,
	categoryURL string,
	hc *catalog.HostCategory,
	verdicts catalog.VerdictMap,
	propagate func(d *catalog.Directory),
) error {
	exitCode, entries, err := runner.Run(ctx, categoryURL, "--no-motd")
	if err != nil {
		return errors.Mark(errors.Wrap(err, "crawler: run rsync"), ErrRsyncCategoryFailed)
	}
	if exitCode == 10 {
		return errors.Wrap(ErrRsyncCategoryFailed, "connection refused, check the rsync module")
	}

	listing := make(map[string]rsyncFile, len(entries))
	for _, e := range entries {
		listing[e.Name] = rsyncFile{mode: e.Mode, size: e.Size}
	}
	if len(listing) == 0 {
		return errors.Wrap(ErrRsyncCategoryFailed, "empty rsync listing")
	}

	topName := hc.Category.TopDir.Name
	prefixLen := len(topName)

	wrote := 0
	for _, d := range hc.Directories {
		key := catalog.VerdictKey{HostCategory: hc, Directory: d}

		if !d.Readable {
			verdicts[key] = catalog.VerdictUnknown
			continue
		}

		name := d.Name
		if len(name) > prefixLen {
			name = strings.TrimPrefix(name[prefixLen:], "/")
		} else {
			name = ""
		}

		allFiles := true
		for filename := range d.Files {
			var relKey string
			if name == "" {
				relKey = filename
			} else {
				relKey = path.Join(name, filename)
			}
			remote, ok := listing[relKey]
			if !ok {
				allFiles = false
				break
			}
			if remote.size != d.Files[filename].Size && !strings.HasPrefix(remote.mode, "l") {
				allFiles = false
				break
			}
		}

		if allFiles {
			verdicts[key] = catalog.VerdictUpToDate
			propagate(d)
		} else {
			verdicts[key] = catalog.VerdictStale
		}
		wrote++
	}

	if wrote == 0 {
		// Every directory in this category was unreadable, or the
		// category carries none at all. Not a category-scoped failure
		// by itself — only the host-wide absence of any verdict across
		// every category triggers §4.2's mark-not-up-to-date rule.
		slog.Debug("rsync category probe produced no verdicts", "category", hc.Category.Name)
	}
	return nil
}
