package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/mirrorwatch/crawler/internal/catalog"
)

const userAgent = "mirrormanager-crawler/0.1 (+http://fedorahosted.org/mirrormanager)"

const maxRedirects = 10

// ProbeDirectoryHTTP implements spec.md §4.3: a HEAD per expected file
// under dirURL, with a short-circuit on the first stale file and a
// SHA-256 cross-check for repomd.xml. It mirrors
// original_source/utility/crawler.py's try_per_file: forbidden-expected
// and HTTP-unknown resolve locally to catalog.VerdictUnknown, try-later
// is returned so the walker can back off and retry, and an HTTP-500 (or
// any other unrecognized probe error) bubbles up so the walker/worker
// can mark the host not-up-to-date.
func ProbeDirectoryHTTP(ctx context.Context, hs *HostState, dirURL string, d *catalog.Directory) (catalog.Verdict, error) {
	if d.Files == nil {
		return catalog.VerdictUnknown, nil
	}

	names := make([]string, 0, len(d.Files))
	for name := range d.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	sawResult := false
	for _, filename := range names {
		fileURL := dirURL + "/" + filename
		verdict, err := checkHead(ctx, hs, fileURL, d.Files[filename], 0, d.Readable, 0)
		if err != nil {
			if IsTryLater(err) {
				return catalog.VerdictUnknown, err
			}
			if IsForbiddenExpected(err) || errors.Is(err, ErrHTTPUnknown) {
				return catalog.VerdictUnknown, nil
			}
			// ErrHTTP500 and anything else unrecognized bubbles as
			// unhandled, per spec's error-propagation table.
			return catalog.VerdictUnknown, err
		}
		if v, ok := verdict.Bool(); ok {
			if !v {
				return catalog.VerdictStale, nil
			}
			sawResult = true
		}

		if filename == "repomd.xml" {
			match, err := compareSHA256(ctx, d, filename, fileURL)
			if err == nil && !match {
				return catalog.VerdictStale, nil
			}
		}
	}

	if !sawResult {
		return catalog.VerdictUnknown, nil
	}
	return catalog.VerdictUpToDate, nil
}

// checkHead performs one HEAD request, following redirects and
// retrying once on a transport failure, per spec.md §4.3.
func checkHead(ctx context.Context, hs *HostState, rawURL string, filedata catalog.FileSize, recursion int, readable bool, retry int) (catalog.Verdict, error) {
	client, err := hs.httpClient(rawURL)
	if err != nil {
		return catalog.VerdictUnknown, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return catalog.VerdictUnknown, nil
	}
	req.Header.Set("Connection", "Keep-Alive")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if retry == 0 {
			hs.closeHTTP(rawURL)
			return checkHead(ctx, hs, rawURL, filedata, recursion, readable, 1)
		}
		return catalog.VerdictUnknown, ErrHTTPUnknown
	}
	defer resp.Body.Close()

	ok := reusable(resp)
	hs.markReusable(rawURL, ok)

	status := resp.StatusCode
	contentLength := resp.Header.Get("Content-Length")

	switch {
	case status >= 200 && status < 300:
		if contentLength == "" || contentLength == filedata.Size {
			return catalog.VerdictUpToDate, nil
		}
		return catalog.VerdictStale, nil

	case status >= 300 && status < 400:
		return handleRedirect(ctx, hs, rawURL, resp.Header.Get("Location"), filedata, recursion, readable)

	case status == http.StatusForbidden:
		if readable {
			return catalog.VerdictStale, nil
		}
		return catalog.VerdictUnknown, &ForbiddenExpectedError{}

	case status == http.StatusNotFound, status == http.StatusGone:
		return catalog.VerdictStale, nil

	case status >= 400 && status < 500:
		return catalog.VerdictUnknown, nil

	case status >= 500:
		return catalog.VerdictUnknown, ErrHTTP500
	}

	return catalog.VerdictUnknown, ErrHTTPUnknown
}

// handleRedirect re-anchors a relative Location and recurses, capping
// the chain at maxRedirects per spec.md §4.3.
func handleRedirect(ctx context.Context, hs *HostState, rawURL, location string, filedata catalog.FileSize, recursion int, readable bool) (catalog.Verdict, error) {
	if recursion >= maxRedirects {
		return catalog.VerdictUnknown, ErrHTTPUnknown
	}
	if location != "" && location[0] == '/' {
		u, err := url.Parse(rawURL)
		if err != nil {
			return catalog.VerdictUnknown, ErrHTTPUnknown
		}
		location = fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, location)
	}
	return checkHead(ctx, hs, location, filedata, recursion+1, readable, 0)
}

// compareSHA256 fetches graburl's body and compares its SHA-256 digest
// against any FileDetails recorded for filename in d. Fetch or hash
// errors are swallowed, leaving the HEAD-derived verdict in place, per
// spec.md §4.3. Absent a stored hash for filename, the comparison
// defaults to "no match" — original_source/utility/crawler.py's
// compare_sha256 starts from found = False and only flips to True on
// an actual match, so "nothing recorded" is a mismatch, not a pass.
func compareSHA256(ctx context.Context, d *catalog.Directory, filename, graburl string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graburl, nil)
	if err != nil {
		return false, errors.Wrap(err, "crawler: build repomd fetch")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "crawler: fetch repomd")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.Wrap(err, "crawler: read repomd body")
	}
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	for _, fd := range d.FileDetails {
		if fd.Filename == filename && fd.SHA256 != "" {
			return fd.SHA256 == digest, nil
		}
	}
	return false, nil
}
