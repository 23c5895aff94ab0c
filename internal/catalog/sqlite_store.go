package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3"
	_ "modernc.org/sqlite"
)

// schema is applied once at Open time. It is intentionally small: this
// is a reference persistence layer for the crawler's own contract, not
// a reimplementation of the full mirror-management schema.
const schema = `
CREATE TABLE IF NOT EXISTS host (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	private INTEGER NOT NULL DEFAULT 0,
	user_active INTEGER NOT NULL DEFAULT 1,
	admin_active INTEGER NOT NULL DEFAULT 1,
	site_user_active INTEGER NOT NULL DEFAULT 1,
	site_admin_active INTEGER NOT NULL DEFAULT 1,
	last_crawled TIMESTAMP
);
CREATE TABLE IF NOT EXISTS directory (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	readable INTEGER NOT NULL DEFAULT 1,
	files TEXT -- JSON map[string]{size}; NULL means unknown
);
CREATE TABLE IF NOT EXISTS category (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	topdir_id INTEGER NOT NULL REFERENCES directory(id)
);
CREATE TABLE IF NOT EXISTS host_category (
	id INTEGER PRIMARY KEY,
	host_id INTEGER NOT NULL REFERENCES host(id),
	category_id INTEGER NOT NULL REFERENCES category(id),
	always_up2date INTEGER NOT NULL DEFAULT 0,
	urls TEXT NOT NULL DEFAULT '[]' -- JSON []string
);
CREATE TABLE IF NOT EXISTS host_category_dir (
	id INTEGER PRIMARY KEY,
	host_category_id INTEGER NOT NULL REFERENCES host_category(id),
	path TEXT NOT NULL,
	directory_id INTEGER REFERENCES directory(id),
	up2date INTEGER, -- NULL=unknown, 0=false, 1=true
	UNIQUE(host_category_id, path)
);
`

// SQLiteStore is a reference Store backed by a single SQLite file,
// opened through the pure-Go modernc.org/sqlite driver and queried via
// github.com/doug-martin/goqu/v8 query-building, following the same
// driver/builder pairing used elsewhere in this codebase's reference
// material (warpdl's sqlite usage, claircore's goqu-built SQL).
type SQLiteStore struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
}

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed catalog
// at path and applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: open sqlite")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "catalog: apply schema")
	}
	return &SQLiteStore{db: db, dialect: goqu.Dialect("sqlite3")}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type filesJSON map[string]FileSize

func (s *SQLiteStore) loadDirectory(ctx context.Context, id int64) (*Directory, error) {
	q, args, err := s.dialect.From("directory").
		Select("id", "name", "readable", "files").
		Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build directory query")
	}
	row := s.db.QueryRowContext(ctx, q, args...)
	var d Directory
	var readable int
	var filesText sql.NullString
	if err := row.Scan(&d.ID, &d.Name, &readable, &filesText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "catalog: scan directory")
	}
	d.Readable = readable != 0
	if filesText.Valid {
		var fj filesJSON
		if err := json.Unmarshal([]byte(filesText.String), &fj); err != nil {
			return nil, errors.Wrap(err, "catalog: decode directory.files")
		}
		d.Files = map[string]FileSize(fj)
	}
	return &d, nil
}

func (s *SQLiteStore) DirectoryByName(ctx context.Context, name string) (*Directory, error) {
	q, args, err := s.dialect.From("directory").Select("id").Where(goqu.Ex{"name": name}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build query")
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "catalog: scan directory id")
	}
	return s.loadDirectory(ctx, id)
}

func (s *SQLiteStore) loadCategory(ctx context.Context, id int64) (*Category, error) {
	q, args, err := s.dialect.From("category").Select("id", "name", "topdir_id").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build category query")
	}
	var c Category
	var topdirID int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&c.ID, &c.Name, &topdirID); err != nil {
		return nil, errors.Wrap(err, "catalog: scan category")
	}
	topdir, err := s.loadDirectory(ctx, topdirID)
	if err != nil {
		return nil, err
	}
	c.TopDir = topdir
	return &c, nil
}

func (s *SQLiteStore) loadHostCategory(ctx context.Context, id int64) (*HostCategory, error) {
	q, args, err := s.dialect.From("host_category").
		Select("id", "host_id", "category_id", "always_up2date", "urls").
		Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build host_category query")
	}
	var hc HostCategory
	var categoryID int64
	var alwaysUp int
	var urlsText string
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&hc.ID, &hc.HostID, &categoryID, &alwaysUp, &urlsText); err != nil {
		return nil, errors.Wrap(err, "catalog: scan host_category")
	}
	hc.AlwaysUpToDate = alwaysUp != 0
	var rawURLs []string
	if err := json.Unmarshal([]byte(urlsText), &rawURLs); err != nil {
		return nil, errors.Wrap(err, "catalog: decode host_category.urls")
	}
	for _, u := range rawURLs {
		hc.URLs = append(hc.URLs, HostCategoryURL{URL: u})
	}
	cat, err := s.loadCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	hc.Category = cat

	dq, dargs, err := s.dialect.From("directory").
		Select("id").
		Where(goqu.Ex{"name": goqu.Op{"like": cat.TopDir.Name + "/%"}}).
		Order(goqu.I("name").Asc()).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build directories query")
	}
	rows, err := s.db.QueryContext(ctx, dq, dargs...)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: query directories")
	}
	defer rows.Close()
	for rows.Next() {
		var dirID int64
		if err := rows.Scan(&dirID); err != nil {
			return nil, errors.Wrap(err, "catalog: scan directory id")
		}
		d, err := s.loadDirectory(ctx, dirID)
		if err != nil {
			return nil, err
		}
		hc.Directories = append(hc.Directories, d)
	}
	return &hc, rows.Err()
}

func (s *SQLiteStore) loadHost(ctx context.Context, id int64) (*Host, error) {
	q, args, err := s.dialect.From("host").
		Select("id", "name", "private", "user_active", "admin_active", "site_user_active", "site_admin_active", "last_crawled").
		Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build host query")
	}
	var h Host
	var private, userActive, adminActive, siteUser, siteAdmin int
	var lastCrawled sql.NullTime
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&h.ID, &h.Name, &private, &userActive, &adminActive, &siteUser, &siteAdmin, &lastCrawled,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf("catalog: no such host %d", id)
		}
		return nil, errors.Wrap(err, "catalog: scan host")
	}
	h.Private = private != 0
	h.UserActive = userActive != 0
	h.AdminActive = adminActive != 0
	h.SiteUserActive = siteUser != 0
	h.SiteAdminActive = siteAdmin != 0
	if lastCrawled.Valid {
		h.LastCrawled = lastCrawled.Time
	}

	hcq, hcargs, err := s.dialect.From("host_category").Select("id").Where(goqu.Ex{"host_id": id}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build host_category list query")
	}
	rows, err := s.db.QueryContext(ctx, hcq, hcargs...)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: query host categories")
	}
	defer rows.Close()
	var hcIDs []int64
	for rows.Next() {
		var hcid int64
		if err := rows.Scan(&hcid); err != nil {
			return nil, errors.Wrap(err, "catalog: scan host_category id")
		}
		hcIDs = append(hcIDs, hcid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, hcid := range hcIDs {
		hc, err := s.loadHostCategory(ctx, hcid)
		if err != nil {
			return nil, err
		}
		h.Categories = append(h.Categories, hc)
	}
	return &h, nil
}

func (s *SQLiteStore) Host(ctx context.Context, id int64) (*Host, error) {
	return s.loadHost(ctx, id)
}

func (s *SQLiteStore) Mirrors(ctx context.Context, private bool) ([]*Host, error) {
	query := s.dialect.From("host").Select("id").Order(goqu.I("id").Asc())
	if !private {
		query = query.Where(goqu.Ex{"private": 0})
	}
	q, args, err := query.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build mirrors query")
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: query mirrors")
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "catalog: scan host id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var hosts []*Host
	for _, id := range ids {
		h, err := s.loadHost(ctx, id)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func (s *SQLiteStore) HostCategoriesByHostAndCategory(ctx context.Context, hostID int64, category string) ([]*HostCategory, error) {
	q, args, err := s.dialect.From("host_category").
		Join(goqu.T("category"), goqu.On(goqu.Ex{"host_category.category_id": goqu.I("category.id")})).
		Select("host_category.id").
		Where(goqu.Ex{"host_category.host_id": hostID, "category.name": category}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build query")
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: query host categories")
	}
	defer rows.Close()
	var out []*HostCategory
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "catalog: scan id")
		}
		hc, err := s.loadHostCategory(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) HostCategoryDir(ctx context.Context, hostCategoryID int64, path string) (*HostCategoryDir, error) {
	q, args, err := s.dialect.From("host_category_dir").
		Select("id", "directory_id", "up2date").
		Where(goqu.Ex{"host_category_id": hostCategoryID, "path": path}).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: build query")
	}
	var id int64
	var dirID sql.NullInt64
	var up2date sql.NullBool
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&id, &dirID, &up2date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "catalog: scan host_category_dir")
	}
	hcd := &HostCategoryDir{ID: id, HostCategoryID: hostCategoryID, Path: path}
	if up2date.Valid {
		if up2date.Bool {
			hcd.UpToDate = VerdictUpToDate
		} else {
			hcd.UpToDate = VerdictStale
		}
	}
	if dirID.Valid {
		d, err := s.loadDirectory(ctx, dirID.Int64)
		if err != nil {
			return nil, err
		}
		hcd.Directory = d
	}
	return hcd, nil
}

func (s *SQLiteStore) SetHostNotUpToDate(ctx context.Context, hostID int64) error {
	q, args, err := s.dialect.Update("host_category_dir").
		Set(goqu.Record{"up2date": 0}).
		Where(goqu.Ex{
			"host_category_id": s.dialect.From("host_category").Select("id").Where(goqu.Ex{"host_id": hostID}),
		}).ToSQL()
	if err != nil {
		return errors.Wrap(err, "catalog: build update")
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "catalog: set host not up to date")
}

// SaveHostCategoryDirs implements spec.md §4.7's sync_hcds in one
// transaction: lookup-or-create, update, then sweep deleted-on-master
// rows for directories no longer present in the live verdict map.
func (s *SQLiteStore) SaveHostCategoryDirs(ctx context.Context, hostID int64, verdicts VerdictMap, now time.Time) (Stats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, errors.Wrap(err, "catalog: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

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

	current := map[int64]bool{}

	for _, kv := range ordered {
		hc, d, v := kv.key.HostCategory, kv.key.Directory, kv.v
		val, ok := v.Bool()
		if !ok {
			stats.Unknown++
			continue
		}
		path := RelativePath(hc.Category.TopDir.Name, d)

		var hcdID int64
		var dirID sql.NullInt64
		var upToDate sql.NullBool
		selQ, selArgs, err := s.dialect.From("host_category_dir").
			Select("id", "directory_id", "up2date").
			Where(goqu.Ex{"host_category_id": hc.ID, "path": path}).ToSQL()
		if err != nil {
			return Stats{}, errors.Wrap(err, "catalog: build select")
		}
		err = tx.QueryRowContext(ctx, selQ, selArgs...).Scan(&hcdID, &dirID, &upToDate)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Stats{}, errors.Wrap(err, "catalog: select host_category_dir")
		}

		if !exists {
			if !val {
				continue
			}
			insQ, insArgs, err := s.dialect.Insert("host_category_dir").Rows(goqu.Record{
				"host_category_id": hc.ID,
				"path":             path,
				"directory_id":     d.ID,
				"up2date":          val,
			}).ToSQL()
			if err != nil {
				return Stats{}, errors.Wrap(err, "catalog: build insert")
			}
			if _, err := tx.ExecContext(ctx, insQ, insArgs...); err != nil {
				return Stats{}, errors.Wrap(err, "catalog: insert host_category_dir")
			}
			stats.NewDir++
			stats.UpToDate++
			// Re-select to get the assigned id for the current-set mark.
			if err := tx.QueryRowContext(ctx, selQ, selArgs...).Scan(&hcdID, &dirID, &upToDate); err != nil {
				return Stats{}, errors.Wrap(err, "catalog: reselect inserted row")
			}
			current[hcdID] = true
			continue
		}

		needsDirBind := !dirID.Valid
		changed := !upToDate.Valid || upToDate.Bool != val
		if needsDirBind || changed {
			updQ, updArgs, err := s.dialect.Update("host_category_dir").
				Set(goqu.Record{"directory_id": d.ID, "up2date": val}).
				Where(goqu.Ex{"id": hcdID}).ToSQL()
			if err != nil {
				return Stats{}, errors.Wrap(err, "catalog: build update")
			}
			if _, err := tx.ExecContext(ctx, updQ, updArgs...); err != nil {
				return Stats{}, errors.Wrap(err, "catalog: update host_category_dir")
			}
		}
		if changed {
			if val {
				stats.UpToDate++
			} else {
				stats.NotUpToDate++
			}
		} else {
			stats.Unchanged++
		}
		current[hcdID] = true
	}

	// Deleted-on-master sweep, restricted to this host's categories.
	hcRows, err := tx.QueryContext(ctx, `
		SELECT hcd.id, hcd.directory_id
		FROM host_category_dir hcd
		JOIN host_category hc ON hc.id = hcd.host_category_id
		WHERE hc.host_id = ?`, hostID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "catalog: query existing hcds")
	}
	type row struct {
		id    int64
		dirID sql.NullInt64
	}
	var rowsToCheck []row
	for hcRows.Next() {
		var r row
		if err := hcRows.Scan(&r.id, &r.dirID); err != nil {
			hcRows.Close()
			return Stats{}, errors.Wrap(err, "catalog: scan existing hcd")
		}
		rowsToCheck = append(rowsToCheck, r)
	}
	hcRows.Close()
	if err := hcRows.Err(); err != nil {
		return Stats{}, err
	}

	for _, r := range rowsToCheck {
		if current[r.id] {
			continue
		}
		if r.dirID.Valid {
			d, err := s.loadDirectory(ctx, r.dirID.Int64)
			if err != nil {
				return Stats{}, err
			}
			if d != nil && !d.Readable {
				stats.Unreadable++
				continue
			}
		}
		updQ, updArgs, err := s.dialect.Update("host_category_dir").
			Set(goqu.Record{"up2date": false}).
			Where(goqu.Ex{"id": r.id}).ToSQL()
		if err != nil {
			return Stats{}, errors.Wrap(err, "catalog: build deleted-on-master update")
		}
		if _, err := tx.ExecContext(ctx, updQ, updArgs...); err != nil {
			return Stats{}, errors.Wrap(err, "catalog: mark deleted-on-master")
		}
		stats.DeletedOnMaster++
	}

	upQ, upArgs, err := s.dialect.Update("host").
		Set(goqu.Record{"last_crawled": now.UTC()}).
		Where(goqu.Ex{"id": hostID}).ToSQL()
	if err != nil {
		return Stats{}, errors.Wrap(err, "catalog: build host stamp")
	}
	if _, err := tx.ExecContext(ctx, upQ, upArgs...); err != nil {
		return Stats{}, errors.Wrap(err, "catalog: stamp last_crawled")
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, errors.Wrap(err, "catalog: commit")
	}
	return stats, nil
}
