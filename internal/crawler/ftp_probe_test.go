package crawler

import (
	"net/textproto"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jlaffaye/ftp"

	"github.com/mirrorwatch/crawler/internal/catalog"
)

func TestClassifyFTPReply_NotFoundCodesAreEmptyListing(t *testing.T) {
	for _, code := range []int{550, 450} {
		listing, reconnect, err := classifyFTPReply(&textproto.Error{Code: code}, true)
		if err != nil || reconnect || listing != nil {
			t.Errorf("code %d: got (%v, %v, %v), want (nil, false, nil)", code, listing, reconnect, err)
		}
	}
}

func TestClassifyFTPReply_553ReadableIsEmptyListing(t *testing.T) {
	listing, reconnect, err := classifyFTPReply(&textproto.Error{Code: 553}, true)
	if err != nil || reconnect || listing != nil {
		t.Errorf("got (%v, %v, %v), want (nil, false, nil)", listing, reconnect, err)
	}
}

func TestClassifyFTPReply_553UnreadableIsForbiddenExpected(t *testing.T) {
	_, reconnect, err := classifyFTPReply(&textproto.Error{Code: 553}, false)
	if reconnect {
		t.Error("553 unreadable should not trigger a reconnect")
	}
	if !IsForbiddenExpected(err) {
		t.Fatalf("err = %v, want a ForbiddenExpectedError", err)
	}
}

func TestClassifyFTPReply_530TriggersReconnect(t *testing.T) {
	listing, reconnect, err := classifyFTPReply(&textproto.Error{Code: 530}, true)
	if err != nil || listing != nil {
		t.Errorf("got (%v, _, %v), want (nil, _, nil)", listing, err)
	}
	if !reconnect {
		t.Error("530 should request a reconnect")
	}
}

func TestClassifyFTPReply_TryLaterCodes(t *testing.T) {
	for _, code := range []int{500, 421, 425} {
		_, reconnect, err := classifyFTPReply(&textproto.Error{Code: code}, true)
		if reconnect {
			t.Errorf("code %d should not request a reconnect", code)
		}
		if !IsTryLater(err) {
			t.Fatalf("code %d: err = %v, want a TryLaterError", code, err)
		}
	}
}

func TestClassifyFTPReply_UnrecognizedCodeIsUnknown(t *testing.T) {
	_, reconnect, err := classifyFTPReply(&textproto.Error{Code: 999}, true)
	if reconnect {
		t.Error("unrecognized code should not request a reconnect")
	}
	if !errors.Is(err, ErrFTPUnknownReply) {
		t.Fatalf("err = %v, want ErrFTPUnknownReply", err)
	}
}

func TestCompareFTPListing_AllMatch(t *testing.T) {
	entries := []*ftp.Entry{
		{Name: "repomd.xml", Size: 100},
		{Name: "extra-file", Size: 1},
	}
	files := map[string]catalog.FileSize{"repomd.xml": {Size: "100"}}

	v := compareFTPListing(entries, files)
	if v != catalog.VerdictUpToDate {
		t.Errorf("verdict = %v, want VerdictUpToDate", v)
	}
}

func TestCompareFTPListing_MissingFileIsStale(t *testing.T) {
	entries := []*ftp.Entry{{Name: "other-file", Size: 100}}
	files := map[string]catalog.FileSize{"repomd.xml": {Size: "100"}}

	v := compareFTPListing(entries, files)
	if v != catalog.VerdictStale {
		t.Errorf("verdict = %v, want VerdictStale", v)
	}
}

func TestCompareFTPListing_SizeMismatchIsStale(t *testing.T) {
	entries := []*ftp.Entry{{Name: "repomd.xml", Size: 999}}
	files := map[string]catalog.FileSize{"repomd.xml": {Size: "100"}}

	v := compareFTPListing(entries, files)
	if v != catalog.VerdictStale {
		t.Errorf("verdict = %v, want VerdictStale", v)
	}
}

func TestProbeDirectoryFTP_NilFilesIsUnknown(t *testing.T) {
	hs := NewHostState()
	defer hs.Close()

	v, err := ProbeDirectoryFTP(hs, "ftp://example.org/fedora/linux/releases/39", &catalog.Directory{})
	if err != nil {
		t.Fatalf("ProbeDirectoryFTP: %v", err)
	}
	if v != catalog.VerdictUnknown {
		t.Errorf("verdict = %v, want VerdictUnknown", v)
	}
}
