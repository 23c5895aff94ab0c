package catalog

import (
	"context"
	"time"
)

// Store is the Go expression of spec.md §6's catalog store contract.
// The crawler borrows one Store per host-worker and commits through it
// exactly once, at the end of a successful crawl.
type Store interface {
	// Mirrors returns every host in the catalog; private controls
	// whether hosts marked private are included.
	Mirrors(ctx context.Context, private bool) ([]*Host, error)

	// Host returns one host by id.
	Host(ctx context.Context, id int64) (*Host, error)

	// HostCategoriesByHostAndCategory returns the HostCategory rows
	// binding hostID to the named category (normally zero or one, but
	// the contract allows more).
	HostCategoriesByHostAndCategory(ctx context.Context, hostID int64, category string) ([]*HostCategory, error)

	// HostCategoryDir looks up an existing verdict record by its
	// natural key. Returns nil, nil if none exists.
	HostCategoryDir(ctx context.Context, hostCategoryID int64, path string) (*HostCategoryDir, error)

	// DirectoryByName resolves a full path to its Directory. Returns
	// nil, nil if the master has no such directory.
	DirectoryByName(ctx context.Context, name string) (*Directory, error)

	// SetHostNotUpToDate marks a host as failed, per spec.md §4.7's
	// "mark_not_up2date".
	SetHostNotUpToDate(ctx context.Context, hostID int64) error

	// SaveHostCategoryDirs commits the accumulated VerdictMap for one
	// host, implementing spec.md §4.7's sync_hcds/report_stats in one
	// transaction, and stamps the host's last-crawled time. Entries
	// with VerdictUnknown are not written (they only count toward
	// Stats.Unknown).
	SaveHostCategoryDirs(ctx context.Context, hostID int64, verdicts VerdictMap, now time.Time) (Stats, error)

	// Close releases any resources the Store holds open.
	Close() error
}
