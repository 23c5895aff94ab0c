package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// MemoryStore is an in-process Store backed by plain maps. It exists
// for unit-testing the crawler engine without standing up SQLite, and
// implements spec.md §4.7's sync_hcds bookkeeping (lookup/create/update/
// deleted-on-master) without SQL. Its deleted-on-master sweep differs
// from SQLiteStore's in two details: it counts (and rewrites) only rows
// not already stale, and it counts every row whose directory is
// unreadable, including rows this crawl just wrote.
type MemoryStore struct {
	mu sync.Mutex

	hosts       map[int64]*Host
	directories map[string]*Directory
	hcds        map[int64]map[string]*HostCategoryDir // hostCategoryID -> path -> hcd
	nextHCDID   int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hosts:       make(map[int64]*Host),
		directories: make(map[string]*Directory),
		hcds:        make(map[int64]map[string]*HostCategoryDir),
	}
}

// AddHost registers a host (and indexes its directories) for later lookup.
func (m *MemoryStore) AddHost(h *Host) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[h.ID] = h
	for _, hc := range h.Categories {
		if hc.Category != nil && hc.Category.TopDir != nil {
			m.directories[hc.Category.TopDir.Name] = hc.Category.TopDir
		}
		for _, d := range hc.Directories {
			m.directories[d.Name] = d
		}
	}
}

// SeedHCD preloads an existing verdict row, as if a previous crawl had
// already written it.
func (m *MemoryStore) SeedHCD(hcd *HostCategoryDir) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hcds[hcd.HostCategoryID] == nil {
		m.hcds[hcd.HostCategoryID] = make(map[string]*HostCategoryDir)
	}
	if hcd.ID == 0 {
		m.nextHCDID++
		hcd.ID = m.nextHCDID
	}
	m.hcds[hcd.HostCategoryID][hcd.Path] = hcd
}

func (m *MemoryStore) Mirrors(_ context.Context, private bool) ([]*Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Host
	for _, h := range m.hosts {
		if h.Private && !private {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Host(_ context.Context, id int64) (*Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[id]
	if !ok {
		return nil, errors.Newf("catalog: no such host %d", id)
	}
	return h, nil
}

func (m *MemoryStore) HostCategoriesByHostAndCategory(_ context.Context, hostID int64, category string) ([]*HostCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[hostID]
	if !ok {
		return nil, errors.Newf("catalog: no such host %d", hostID)
	}
	var out []*HostCategory
	for _, hc := range h.Categories {
		if hc.Category != nil && hc.Category.Name == category {
			out = append(out, hc)
		}
	}
	return out, nil
}

func (m *MemoryStore) HostCategoryDir(_ context.Context, hostCategoryID int64, path string) (*HostCategoryDir, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPath := m.hcds[hostCategoryID]
	if byPath == nil {
		return nil, nil
	}
	return byPath[path], nil
}

func (m *MemoryStore) DirectoryByName(_ context.Context, name string) (*Directory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directories[name], nil
}

func (m *MemoryStore) SetHostNotUpToDate(_ context.Context, hostID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[hostID]
	if !ok {
		return errors.Newf("catalog: no such host %d", hostID)
	}
	for _, hc := range h.Categories {
		byPath := m.hcds[hc.ID]
		for _, hcd := range byPath {
			hcd.UpToDate = VerdictStale
		}
	}
	return nil
}

// SaveHostCategoryDirs implements the same lookup/create/update/
// deleted-on-master algorithm as spec.md §4.7, grounded directly on
// original_source/utility/crawler.py's sync_hcds.
func (m *MemoryStore) SaveHostCategoryDirs(_ context.Context, hostID int64, verdicts VerdictMap, now time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	host, ok := m.hosts[hostID]
	if !ok {
		return Stats{}, errors.Newf("catalog: no such host %d", hostID)
	}

	stats := Stats{}
	type keyed struct {
		key VerdictKey
		v   Verdict
	}
	ordered := make([]keyed, 0, len(verdicts))
	for k, v := range verdicts {
		ordered = append(ordered, keyed{k, v})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].key.Directory.Name < ordered[j].key.Directory.Name
	})
	stats.NumKeys = len(ordered)

	current := make(map[*HostCategoryDir]bool)

	for _, kv := range ordered {
		hc, d, v := kv.key.HostCategory, kv.key.Directory, kv.v
		val, ok := v.Bool()
		if !ok {
			stats.Unknown++
			continue
		}

		path := RelativePath(hc.Category.TopDir.Name, d)
		byPath := m.hcds[hc.ID]
		if byPath == nil {
			byPath = make(map[string]*HostCategoryDir)
			m.hcds[hc.ID] = byPath
		}

		hcd, exists := byPath[path]
		if !exists {
			if !val {
				// Never create rows for negative verdicts.
				continue
			}
			m.nextHCDID++
			hcd = &HostCategoryDir{
				ID:             m.nextHCDID,
				HostCategoryID: hc.ID,
				Path:           path,
				Directory:      d,
			}
			byPath[path] = hcd
			stats.NewDir++
		}

		if hcd.Directory == nil {
			hcd.Directory = d
		}

		newVerdict := VerdictStale
		if val {
			newVerdict = VerdictUpToDate
		}
		if hcd.UpToDate != newVerdict {
			hcd.UpToDate = newVerdict
			if !val {
				stats.NotUpToDate++
			} else {
				stats.UpToDate++
			}
		} else {
			stats.Unchanged++
		}

		current[hcd] = true
	}

	for _, hc := range host.Categories {
		for _, hcd := range m.hcds[hc.ID] {
			if hcd.Directory != nil && !hcd.Directory.Readable {
				stats.Unreadable++
				continue
			}
			if !current[hcd] {
				if v, ok := hcd.UpToDate.Bool(); !ok || v {
					hcd.UpToDate = VerdictStale
					stats.DeletedOnMaster++
				}
			}
		}
	}

	host.LastCrawled = now
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }
