// Package catalog holds the data model and persistence contract for the
// mirror-management catalog: hosts, the categories they claim to carry,
// and the per-directory verdicts the crawler records about them.
//
// The crawler never owns this data; it borrows a Store for the
// duration of one host's crawl and commits through it exactly once.
package catalog

import (
	"strings"
	"time"
)

// Scheme identifies the transport a HostCategoryURL advertises.
type Scheme string

const (
	SchemeRsync Scheme = "rsync"
	SchemeHTTP  Scheme = "http"
	SchemeFTP   Scheme = "ftp"
)

// ParseScheme extracts the Scheme a raw URL advertises, by prefix, the
// way the original crawler dispatched on "rsync:"/"http:"/"ftp:"
// string prefixes. An unrecognized prefix returns ok=false.
func ParseScheme(rawURL string) (Scheme, bool) {
	switch {
	case strings.HasPrefix(rawURL, "rsync:"):
		return SchemeRsync, true
	case strings.HasPrefix(rawURL, "http:"), strings.HasPrefix(rawURL, "https:"):
		return SchemeHTTP, true
	case strings.HasPrefix(rawURL, "ftp:"):
		return SchemeFTP, true
	default:
		return "", false
	}
}

// FileSize is the expected size, in bytes, of one file the master
// repository carries.
type FileSize struct {
	Size string // kept as the catalog's native string form; compared verbatim
}

// FileDetails records a known hash for one filename in a Directory.
// Only used for the repository index file (§4.3's repomd.xml check).
type FileDetails struct {
	Filename string
	SHA256   string
}

// Directory is one node of the master repository's directory tree.
type Directory struct {
	ID       int64
	Name     string // full path under the catalog root
	Readable bool
	// Files is nil when contents are unknown, non-nil (possibly empty)
	// when it is the authoritative expected content listing.
	Files       map[string]FileSize
	FileDetails []FileDetails
}

// Category is a named corpus rooted at a topdir. Immutable during a crawl.
type Category struct {
	ID     int64
	Name   string
	TopDir *Directory
}

// HostCategoryURL is one candidate URL a host advertises for a category.
type HostCategoryURL struct {
	URL string
}

// Scheme reports which transport this URL uses.
func (u HostCategoryURL) Scheme() (Scheme, bool) {
	return ParseScheme(u.URL)
}

// HostCategory binds one Host to one Category.
type HostCategory struct {
	ID             int64
	HostID         int64
	Category       *Category
	AlwaysUpToDate bool
	URLs           []HostCategoryURL
	// Directories is the catalog-returned, stable iteration order for
	// this host-category's directory set (spec.md §5 ordering guarantee).
	Directories []*Directory
}

// Host is one mirror server.
type Host struct {
	ID              int64
	Name            string
	Private         bool
	UserActive      bool
	AdminActive     bool
	SiteUserActive  bool
	SiteAdminActive bool
	LastCrawled     time.Time
	Categories      []*HostCategory
}

// Eligible reports whether the host should be considered for a crawl at
// all, mirroring the activation-flag conjunction in the original
// crawler's host filter.
func (h *Host) Eligible(includePrivate bool) bool {
	if h.Private && !includePrivate {
		return false
	}
	active := h.UserActive && h.AdminActive && h.SiteUserActive && h.SiteAdminActive
	return active
}

// Verdict is the tri-state outcome of probing one directory.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictStale
	VerdictUpToDate
)

// Bool reports the verdict's boolean form, with ok=false for VerdictUnknown.
func (v Verdict) Bool() (value bool, ok bool) {
	switch v {
	case VerdictUpToDate:
		return true, true
	case VerdictStale:
		return false, true
	default:
		return false, false
	}
}

// HostCategoryDir is the persisted verdict record for one
// (HostCategory, path) pair.
type HostCategoryDir struct {
	ID             int64
	HostCategoryID int64
	Path           string
	Directory      *Directory // may be nil if the master has deleted it
	UpToDate       Verdict
}

// RelativePath strips the "<topdir.Name>/" prefix from a Directory's
// full name, producing the HCD's relative path (spec.md §3 invariant).
func RelativePath(topDirName string, d *Directory) string {
	prefix := topDirName + "/"
	if strings.HasPrefix(d.Name, prefix) {
		return d.Name[len(prefix):]
	}
	return d.Name
}

// VerdictKey identifies one (HostCategory, Directory) pair in a VerdictMap.
type VerdictKey struct {
	HostCategory *HostCategory
	Directory    *Directory
}

// VerdictMap is the transient, per-host accumulation of probe outcomes.
type VerdictMap map[VerdictKey]Verdict

// Stats mirrors the counters the original crawler's report_stats/sync_hcds
// reported, pre-initialized to zero per spec.md §9's open question.
type Stats struct {
	NumKeys         int
	UpToDate        int
	NotUpToDate     int
	Unchanged       int
	Unknown         int
	NewDir          int
	DeletedOnMaster int
	Unreadable      int
}
