package crawler

import (
	"context"
	"testing"

	"github.com/mirrorwatch/crawler/internal/catalog"
)

func TestPropagateParents_MarksAncestorsTrueUpToButExcludingTopdir(t *testing.T) {
	topdir := &catalog.Directory{Name: "fedora/linux"}
	releases := &catalog.Directory{Name: "fedora/linux/releases"}
	thirtyNine := &catalog.Directory{Name: "fedora/linux/releases/39"}
	everything := &catalog.Directory{Name: "fedora/linux/releases/39/Everything"}

	byName := map[string]*catalog.Directory{
		topdir.Name:     topdir,
		releases.Name:   releases,
		thirtyNine.Name: thirtyNine,
	}
	resolve := func(_ context.Context, name string) (*catalog.Directory, error) {
		return byName[name], nil
	}

	cat := &catalog.Category{Name: "Fedora Linux", TopDir: topdir}
	hc := &catalog.HostCategory{ID: 1, Category: cat}

	verdicts := catalog.VerdictMap{}
	if err := PropagateParents(context.Background(), resolve, verdicts, hc, everything); err != nil {
		t.Fatalf("PropagateParents: %v", err)
	}

	for _, d := range []*catalog.Directory{thirtyNine, releases} {
		v, ok := verdicts[catalog.VerdictKey{HostCategory: hc, Directory: d}]
		if !ok || v != catalog.VerdictUpToDate {
			t.Errorf("expected %s marked up-to-date, got %v, ok=%v", d.Name, v, ok)
		}
	}
	if _, ok := verdicts[catalog.VerdictKey{HostCategory: hc, Directory: topdir}]; ok {
		t.Error("topdir itself should never be written by ParentPropagator")
	}
}

func TestPropagateParents_DoesNotOverwriteExistingVerdict(t *testing.T) {
	topdir := &catalog.Directory{Name: "fedora/linux"}
	releases := &catalog.Directory{Name: "fedora/linux/releases"}
	thirtyNine := &catalog.Directory{Name: "fedora/linux/releases/39"}

	byName := map[string]*catalog.Directory{
		topdir.Name:   topdir,
		releases.Name: releases,
	}
	resolve := func(_ context.Context, name string) (*catalog.Directory, error) {
		return byName[name], nil
	}

	cat := &catalog.Category{Name: "Fedora Linux", TopDir: topdir}
	hc := &catalog.HostCategory{ID: 1, Category: cat}

	verdicts := catalog.VerdictMap{
		{HostCategory: hc, Directory: releases}: catalog.VerdictStale,
	}
	if err := PropagateParents(context.Background(), resolve, verdicts, hc, thirtyNine); err != nil {
		t.Fatalf("PropagateParents: %v", err)
	}
	if v := verdicts[catalog.VerdictKey{HostCategory: hc, Directory: releases}]; v != catalog.VerdictStale {
		t.Errorf("expected existing stale verdict preserved, got %v", v)
	}
}
