package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mirrorwatch/crawler/internal/catalog"
	"github.com/mirrorwatch/crawler/internal/notify"
)

// SyncResults commits verdicts for host via store.SaveHostCategoryDirs
// (spec.md §4.7's sync_hcds), logs the resulting counters the way
// report_stats did, and bumps the prometheus counters in metrics.go.
func SyncResults(ctx context.Context, store catalog.Store, hostID int64, verdicts catalog.VerdictMap, now time.Time) (catalog.Stats, error) {
	stats, err := store.SaveHostCategoryDirs(ctx, hostID, verdicts, now)
	if err != nil {
		return catalog.Stats{}, err
	}
	observeStats(stats)
	slog.Info("crawl stats",
		"total_directories", stats.NumKeys,
		"up_to_date", stats.UpToDate,
		"not_up_to_date", stats.NotUpToDate,
		"unchanged", stats.Unchanged,
		"unknown", stats.Unknown,
		"new_dir", stats.NewDir,
		"deleted_on_master", stats.DeletedOnMaster,
		"unreadable", stats.Unreadable,
	)
	return stats, nil
}

// MarkNotUpToDate implements spec.md §4.7's failure-reporting path:
// flags the host in the catalog, logs a warning, and best-effort
// notifies the administrator. It does not update the host's
// last-crawled time. A notification failure is logged and swallowed,
// matching send_email's own bare except.
func MarkNotUpToDate(ctx context.Context, store catalog.Store, notifier notify.Notifier, hostID int64, hostName, reason, logPath string, exc *notify.ExceptionInfo) error {
	if err := store.SetHostNotUpToDate(ctx, hostID); err != nil {
		return err
	}
	slog.Warn("host marked not up to date", "host", hostName, "reason", reason)
	if exc != nil {
		slog.Debug("triggering exception", "kind", exc.Kind, "value", exc.Value)
	}

	msg := notify.Message{
		HostName:  hostName,
		Reason:    "Host marked not up2date: " + reason,
		LogPath:   logPath,
		Exception: exc,
	}
	if err := notifier.Notify(ctx, msg); err != nil {
		slog.Warn("error sending notification email", "host", hostName, "error", err)
	}
	return nil
}
