package crawler

import (
	"testing"

	"github.com/mirrorwatch/crawler/internal/catalog"
)

func urls(raw ...string) []catalog.HostCategoryURL {
	out := make([]catalog.HostCategoryURL, len(raw))
	for i, u := range raw {
		out[i] = catalog.HostCategoryURL{URL: u}
	}
	return out
}

func TestSelectMethod_PrefersRsync(t *testing.T) {
	u, ok := SelectMethod(urls("http://a/", "rsync://a/", "ftp://a/"), "")
	if !ok || u.URL != "rsync://a/" {
		t.Fatalf("got %+v, %v, want rsync://a/, true", u, ok)
	}
}

func TestSelectMethod_FallsBackToHTTP(t *testing.T) {
	u, ok := SelectMethod(urls("ftp://a/", "http://a/"), "")
	if !ok || u.URL != "http://a/" {
		t.Fatalf("got %+v, %v, want http://a/, true", u, ok)
	}
}

func TestSelectMethod_FallsBackToFTP(t *testing.T) {
	u, ok := SelectMethod(urls("ftp://a/"), "")
	if !ok || u.URL != "ftp://a/" {
		t.Fatalf("got %+v, %v, want ftp://a/, true", u, ok)
	}
}

func TestSelectMethod_NoFallbackAfterRsync(t *testing.T) {
	_, ok := SelectMethod(urls("http://a/", "rsync://a/", "ftp://a/"), "rsync://a/")
	if ok {
		t.Fatal("expected no fallback after a definitive rsync attempt")
	}
}

func TestSelectMethod_NoURLs(t *testing.T) {
	_, ok := SelectMethod(nil, "")
	if ok {
		t.Fatal("expected ok=false with no candidate URLs")
	}
}
