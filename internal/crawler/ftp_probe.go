package crawler

import (
	"net/textproto"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jlaffaye/ftp"

	"github.com/mirrorwatch/crawler/internal/catalog"
)

// ProbeDirectoryFTP implements spec.md §4.4: one LIST on dirURL,
// compared against d's expected files. Error classification follows
// original_source/utility/crawler.py's get_ftp_dir/check_ftp_file
// reply-code table, read off *textproto.Error via errors.As since
// github.com/jlaffaye/ftp surfaces FTP errors that way rather than
// through ftplib's error_perm/error_temp split.
func ProbeDirectoryFTP(hs *HostState, dirURL string, d *catalog.Directory) (catalog.Verdict, error) {
	if d.Files == nil {
		return catalog.VerdictUnknown, nil
	}

	entries, err := listFTPDir(hs, dirURL, d.Readable, 0)
	if err != nil {
		if IsForbiddenExpected(err) {
			return catalog.VerdictUnknown, nil
		}
		return catalog.VerdictUnknown, err
	}
	if entries == nil {
		// Directory absent on the remote (550/450): empty listing, stale.
		return catalog.VerdictStale, nil
	}
	return compareFTPListing(entries, d.Files), nil
}

// compareFTPListing is the pure comparison at the heart of
// ProbeDirectoryFTP, split out so the file-matching rule can be
// exercised without a live FTP connection.
func compareFTPListing(entries []*ftp.Entry, files map[string]catalog.FileSize) catalog.Verdict {
	byName := make(map[string]*ftp.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	for filename, expected := range files {
		entry, ok := byName[filename]
		if !ok {
			return catalog.VerdictStale
		}
		if strconv.FormatUint(entry.Size, 10) != expected.Size {
			return catalog.VerdictStale
		}
	}
	return catalog.VerdictUpToDate
}

// listFTPDir lists path on the host's pooled FTP connection, retrying
// once on a 530/EOF/socket condition, matching get_ftp_dir's depth-one
// reconnection (spec.md §4.4: "depth > 1 ⇒ try-later").
func listFTPDir(hs *HostState, dirURL string, readable bool, depth int) ([]*ftp.Entry, error) {
	if depth > 1 {
		return nil, &TryLaterError{Delay: 1}
	}

	conn, err := hs.ftpConn(dirURL)
	if err != nil {
		hs.closeFTP(dirURL)
		return listFTPDir(hs, dirURL, readable, depth+1)
	}

	path := ftpPath(dirURL)
	entries, err := conn.List(path)
	if err == nil {
		return entries, nil
	}

	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		// EOF / socket-level failure: reconnect and retry once.
		hs.closeFTP(dirURL)
		return listFTPDir(hs, dirURL, readable, depth+1)
	}

	listing, reconnect, err := classifyFTPReply(tpErr, readable)
	if reconnect {
		hs.closeFTP(dirURL)
		return listFTPDir(hs, dirURL, readable, depth+1)
	}
	return listing, err
}

// classifyFTPReply maps one LIST reply code to a listFTPDir outcome,
// split out from listFTPDir so the reply-code table can be exercised
// directly with synthetic *textproto.Error values rather than a live
// connection. reconnect=true means the caller should close the pooled
// connection and retry (530's one-shot reconnection, spec.md §4.4).
func classifyFTPReply(tpErr *textproto.Error, readable bool) (listing []*ftp.Entry, reconnect bool, err error) {
	switch {
	case tpErr.Code == 550 || tpErr.Code == 450:
		return nil, false, nil
	case tpErr.Code == 553:
		if readable {
			return nil, false, nil
		}
		return nil, false, &ForbiddenExpectedError{}
	case tpErr.Code == 530:
		return nil, true, nil
	case tpErr.Code == 500:
		return nil, false, &TryLaterError{Delay: 1}
	case tpErr.Code == 421 || tpErr.Code == 425:
		return nil, false, &TryLaterError{Delay: 1}
	default:
		return nil, false, ErrFTPUnknownReply
	}
}

func ftpPath(dirURL string) string {
	const scheme = "ftp://"
	rest := strings.TrimPrefix(dirURL, scheme)
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[i:]
	}
	return "/"
}
