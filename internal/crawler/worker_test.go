package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/mirrorwatch/crawler/internal/catalog"
	"github.com/mirrorwatch/crawler/internal/notify"
	"github.com/mirrorwatch/crawler/internal/rsyncdriver"
)

type fakeRunner struct {
	exitCode int
	entries  []rsyncdriver.Entry
	err      error
}

func (f fakeRunner) Run(_ context.Context, _ string, _ ...string) (int, []rsyncdriver.Entry, error) {
	return f.exitCode, f.entries, f.err
}

func TestCrawlHost_RsyncSuccess(t *testing.T) {
	store := catalog.NewMemoryStore()
	topdir := &catalog.Directory{ID: 1, Name: "fedora/linux", Readable: true}
	cat := &catalog.Category{ID: 1, Name: "Fedora Linux", TopDir: topdir}
	d := &catalog.Directory{ID: 2, Name: "fedora/linux/releases/39", Readable: true, Files: map[string]catalog.FileSize{
		"repomd.xml": {Size: "100"},
	}}
	hc := &catalog.HostCategory{
		ID:          10,
		Category:    cat,
		URLs:        []catalog.HostCategoryURL{{URL: "rsync://mirror.example.org/fedora/linux"}},
		Directories: []*catalog.Directory{d},
	}
	host := &catalog.Host{
		ID: 1, Name: "mirror.example.org",
		UserActive: true, AdminActive: true, SiteUserActive: true, SiteAdminActive: true,
		Categories: []*catalog.HostCategory{hc},
	}
	store.AddHost(host)

	runner := fakeRunner{entries: []rsyncdriver.Entry{
		{Mode: "-rw-r--r--", Size: "100", Date: "2024/01/01", Time: "00:00:00", Name: "releases/39/repomd.xml"},
	}}

	cfg := WorkerConfig{
		Store:    store,
		Runner:   runner,
		Notifier: notify.NopNotifier{},
		Timeout:  time.Minute,
	}
	rc := CrawlHost(context.Background(), cfg, host.ID)
	if rc != ExitSuccess {
		t.Fatalf("CrawlHost rc = %d, want %d", rc, ExitSuccess)
	}

	hcd, err := store.HostCategoryDir(context.Background(), hc.ID, "releases/39")
	if err != nil {
		t.Fatalf("HostCategoryDir: %v", err)
	}
	if hcd == nil || hcd.UpToDate != catalog.VerdictUpToDate {
		t.Errorf("expected releases/39 marked up to date, got %+v", hcd)
	}
}

// keyedRunner dispatches to a per-URL fakeRunner, letting a test give
// two host-categories on the same host independent rsync outcomes.
type keyedRunner map[string]fakeRunner

func (k keyedRunner) Run(ctx context.Context, url string, extraArgs ...string) (int, []rsyncdriver.Entry, error) {
	return k[url].Run(ctx, url, extraArgs...)
}

// TestCrawlHost_RsyncCategoryFailure_NoVerdictsMarksNotUpToDate covers
// the one-category case of spec.md §4.2's closing sentence: a rsync
// category hard failure (here, exit code 10) is category-scoped and
// does not itself abort the host (see ErrRsyncCategoryFailed's doc
// comment in rsync_probe.go). But since this host has only the one
// category, the crawl ends having produced no verdicts at all, which
// is what actually triggers the not-up-to-date mark here.
func TestCrawlHost_RsyncCategoryFailure_NoVerdictsMarksNotUpToDate(t *testing.T) {
	store := catalog.NewMemoryStore()
	topdir := &catalog.Directory{ID: 1, Name: "fedora/linux", Readable: true}
	cat := &catalog.Category{ID: 1, Name: "Fedora Linux", TopDir: topdir}
	hc := &catalog.HostCategory{
		ID:          10,
		Category:    cat,
		URLs:        []catalog.HostCategoryURL{{URL: "rsync://mirror.example.org/fedora/linux"}},
		Directories: nil,
	}
	host := &catalog.Host{
		ID: 1, Name: "mirror.example.org",
		UserActive: true, AdminActive: true, SiteUserActive: true, SiteAdminActive: true,
		Categories: []*catalog.HostCategory{hc},
	}
	store.AddHost(host)

	runner := fakeRunner{exitCode: 10}
	cfg := WorkerConfig{
		Store:    store,
		Runner:   runner,
		Notifier: notify.NopNotifier{},
		Timeout:  time.Minute,
	}
	rc := CrawlHost(context.Background(), cfg, host.ID)
	if rc != ExitHostFailure {
		t.Fatalf("CrawlHost rc = %d, want %d", rc, ExitHostFailure)
	}
}

// TestCrawlHost_OneRsyncCategoryFails_AnotherSucceeds covers spec.md
// §4.6 step 2: a rsync category hard failure only skips that one
// category. A sibling category that does produce a verdict must still
// be synced, and the host must not be marked not-up-to-date or exit
// with a failure code on account of its failing sibling.
func TestCrawlHost_OneRsyncCategoryFails_AnotherSucceeds(t *testing.T) {
	store := catalog.NewMemoryStore()

	failTopdir := &catalog.Directory{ID: 1, Name: "epel", Readable: true}
	failCat := &catalog.Category{ID: 1, Name: "EPEL", TopDir: failTopdir}
	failHC := &catalog.HostCategory{
		ID:          10,
		Category:    failCat,
		URLs:        []catalog.HostCategoryURL{{URL: "rsync://mirror.example.org/epel"}},
		Directories: nil,
	}

	okTopdir := &catalog.Directory{ID: 2, Name: "fedora/linux", Readable: true}
	okCat := &catalog.Category{ID: 2, Name: "Fedora Linux", TopDir: okTopdir}
	d := &catalog.Directory{ID: 3, Name: "fedora/linux/releases/39", Readable: true, Files: map[string]catalog.FileSize{
		"repomd.xml": {Size: "100"},
	}}
	okHC := &catalog.HostCategory{
		ID:          11,
		Category:    okCat,
		URLs:        []catalog.HostCategoryURL{{URL: "rsync://mirror.example.org/fedora/linux"}},
		Directories: []*catalog.Directory{d},
	}

	host := &catalog.Host{
		ID: 1, Name: "mirror.example.org",
		UserActive: true, AdminActive: true, SiteUserActive: true, SiteAdminActive: true,
		Categories: []*catalog.HostCategory{failHC, okHC},
	}
	store.AddHost(host)

	runner := keyedRunner{
		"rsync://mirror.example.org/epel":        fakeRunner{exitCode: 10},
		"rsync://mirror.example.org/fedora/linux": fakeRunner{entries: []rsyncdriver.Entry{
			{Mode: "-rw-r--r--", Size: "100", Date: "2024/01/01", Time: "00:00:00", Name: "releases/39/repomd.xml"},
		}},
	}
	cfg := WorkerConfig{
		Store:    store,
		Runner:   runner,
		Notifier: notify.NopNotifier{},
		Timeout:  time.Minute,
	}
	rc := CrawlHost(context.Background(), cfg, host.ID)
	if rc != ExitSuccess {
		t.Fatalf("CrawlHost rc = %d, want %d", rc, ExitSuccess)
	}

	hcd, err := store.HostCategoryDir(context.Background(), okHC.ID, "releases/39")
	if err != nil {
		t.Fatalf("HostCategoryDir: %v", err)
	}
	if hcd == nil || hcd.UpToDate != catalog.VerdictUpToDate {
		t.Errorf("expected releases/39 marked up to date despite sibling category's rsync failure, got %+v", hcd)
	}
}

func TestCrawlHost_PrivateHostSkippedWithoutIncludePrivate(t *testing.T) {
	store := catalog.NewMemoryStore()
	host := &catalog.Host{
		ID: 1, Name: "private.example.org", Private: true,
		UserActive: true, AdminActive: true, SiteUserActive: true, SiteAdminActive: true,
	}
	store.AddHost(host)

	cfg := WorkerConfig{Store: store, Runner: fakeRunner{}, Notifier: notify.NopNotifier{}, Timeout: time.Minute}
	rc := CrawlHost(context.Background(), cfg, host.ID)
	if rc != ExitHostFailure {
		t.Fatalf("CrawlHost rc = %d, want %d", rc, ExitHostFailure)
	}
}

func TestSelectHostCategories_FiltersByName(t *testing.T) {
	fedora := &catalog.HostCategory{Category: &catalog.Category{Name: "Fedora Linux"}}
	epel := &catalog.HostCategory{Category: &catalog.Category{Name: "EPEL"}}
	host := &catalog.Host{Categories: []*catalog.HostCategory{fedora, epel}}

	all := selectHostCategories(host, nil)
	if len(all) != 2 {
		t.Fatalf("expected all categories with no filter, got %d", len(all))
	}

	filtered := selectHostCategories(host, []string{"EPEL"})
	if len(filtered) != 1 || filtered[0].Category.Name != "EPEL" {
		t.Fatalf("expected only EPEL, got %+v", filtered)
	}
}
