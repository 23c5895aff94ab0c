package crawler

import "github.com/mirrorwatch/crawler/internal/catalog"

// SelectMethod implements spec.md §4.5: rsync > http > ftp preference
// over a host-category's advertised URLs, with an override on retry.
//
// When previous was an rsync URL, the rsync attempt was definitive and
// nothing is retried: SelectMethod returns ok=false. Otherwise it
// returns the first http URL, else the first ftp URL, else ok=false.
func SelectMethod(urls []catalog.HostCategoryURL, previous string) (catalog.HostCategoryURL, bool) {
	if prevScheme, ok := catalog.ParseScheme(previous); ok && prevScheme == catalog.SchemeRsync {
		return catalog.HostCategoryURL{}, false
	}

	for _, u := range urls {
		if s, ok := u.Scheme(); ok && s == catalog.SchemeRsync {
			return u, true
		}
	}

	for _, u := range urls {
		if s, ok := u.Scheme(); ok && s == catalog.SchemeHTTP {
			return u, true
		}
	}
	for _, u := range urls {
		if s, ok := u.Scheme(); ok && s == catalog.SchemeFTP {
			return u, true
		}
	}
	return catalog.HostCategoryURL{}, false
}
