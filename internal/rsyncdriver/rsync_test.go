package rsyncdriver

import "testing"

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		want Entry
		ok   bool
	}{
		{
			line: "-rw-r--r--       1234 2024/01/02 03:04:05 repodata/repomd.xml",
			want: Entry{Mode: "-rw-r--r--", Size: "1234", Date: "2024/01/02", Time: "03:04:05", Name: "repodata/repomd.xml"},
			ok:   true,
		},
		{
			line: "lrwxrwxrwx          9 2024/01/02 03:04:05 latest -> 39",
			want: Entry{Mode: "lrwxrwxrwx", Size: "9", Date: "2024/01/02", Time: "03:04:05", Name: "latest"},
			ok:   true,
		},
		{line: "garbage line", ok: false},
		{line: "", ok: false},
	}
	for _, c := range cases {
		got, ok := parseLine(c.line)
		if ok != c.ok {
			t.Fatalf("parseLine(%q) ok = %v, want %v", c.line, ok, c.ok)
		}
		if ok && got != c.want {
			t.Errorf("parseLine(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestEntryIsSymlink(t *testing.T) {
	if !(Entry{Mode: "lrwxrwxrwx"}).IsSymlink() {
		t.Error("expected lrwxrwxrwx to be a symlink")
	}
	if (Entry{Mode: "-rw-r--r--"}).IsSymlink() {
		t.Error("expected -rw-r--r-- to not be a symlink")
	}
}
