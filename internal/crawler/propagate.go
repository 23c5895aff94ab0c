package crawler

import (
	"context"
	"strings"

	"github.com/mirrorwatch/crawler/internal/catalog"
)

// DirectoryResolver looks a directory up by its full path, returning
// nil if none exists — the shape of catalog.Store.DirectoryByName.
type DirectoryResolver func(ctx context.Context, name string) (*catalog.Directory, error)

// PropagateParents implements ParentPropagator (spec.md §2 item 5 and
// §8's ancestor invariant): for every ancestor of d under hc's
// category, up to but excluding the category's topdir, ensures
// verdicts holds (hc, ancestor) = true unless a verdict is already
// recorded there.
//
// This departs from original_source/utility/crawler.py's add_parents,
// which set ancestors to unknown (not true) and which included topdir
// itself before stopping — both are corrected here per spec.md §8's
// explicit invariant wording.
func PropagateParents(ctx context.Context, resolve DirectoryResolver, verdicts catalog.VerdictMap, hc *catalog.HostCategory, d *catalog.Directory) error {
	topdir := hc.Category.TopDir
	current := d

	for {
		parentName := parentDirName(current.Name)
		if parentName == "" || parentName == topdir.Name {
			return nil
		}
		parentDir, err := resolve(ctx, parentName)
		if err != nil {
			return err
		}
		if parentDir == nil {
			return nil
		}

		key := catalog.VerdictKey{HostCategory: hc, Directory: parentDir}
		if _, exists := verdicts[key]; !exists {
			verdicts[key] = catalog.VerdictUpToDate
		}

		if parentDir.Name == topdir.Name {
			return nil
		}
		current = parentDir
	}
}

// parentDirName returns the parent path of name, or "" at the root.
func parentDirName(name string) string {
	idx := strings.LastIndex(name, "/")
	if idx <= 0 {
		return ""
	}
	return name[:idx]
}
