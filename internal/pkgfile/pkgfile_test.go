package pkgfile

import (
	"bytes"
	"io"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFileInfoRoundTrip(t *testing.T) {
	cases := []FileInfo{
		{Type: TypeDir},
		{Type: TypeFile, Hash: "", Mtime: 0, Size: 100},
		{Type: TypeFile, Hash: "a1b2", Volatile: true, Size: 100},
		{Type: TypeLink, Target: "foo/bar"},
		{Type: TypeLink, Target: "foo/bar", Volatile: true},
	}
	for _, want := range cases {
		s := want.String()
		got, err := ParseFileInfo(s)
		if err != nil {
			t.Fatalf("ParseFileInfo(%q): %v", s, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip %q mismatch (-want +got):\n%s", s, diff)
		}
	}
}

func TestFileInfoExactEncoding(t *testing.T) {
	tests := []struct {
		fi   FileInfo
		want string
	}{
		{FileInfo{Type: TypeFile, Size: 100}, "f::0:100"},
		{FileInfo{Type: TypeDir}, "d"},
		{FileInfo{Type: TypeLink, Target: "foo/bar"}, "s:foo/bar:"},
		{FileInfo{Type: TypeLink, Target: "foo/bar", Volatile: true}, "s:v:foo/bar:"},
	}
	for _, tc := range tests {
		if got := tc.fi.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestValidPackageName(t *testing.T) {
	valid := []string{"foo", "foo-bar", "a1", "a-b-c"}
	invalid := []string{"", "1foo", "foo-", "foo--bar", "-foo", "foo_bar"}
	for _, n := range valid {
		if !IsValidPackageName(n) {
			t.Errorf("IsValidPackageName(%q) = false, want true", n)
		}
	}
	for _, n := range invalid {
		if IsValidPackageName(n) {
			t.Errorf("IsValidPackageName(%q) = true, want false", n)
		}
	}
}

func TestValidVersion(t *testing.T) {
	valid := []string{"1.2.3", "1", "1.2.3-alpha", "1.2.3+build", "2024.01.01"}
	invalid := []string{"", "a.2.3", "1.2.3-", "1.2.3--1", "1.2.3++1", "1.2.3-+1", "1.2.3+-1", "1..2", "1.-2", "1.+2", "1.2.3bpmfoo"}
	for _, v := range valid {
		if !IsValidVersion(v) {
			t.Errorf("IsValidVersion(%q) = false, want true", v)
		}
	}
	for _, v := range invalid {
		if IsValidVersion(v) {
			t.Errorf("IsValidVersion(%q) = true, want false", v)
		}
	}
}

func TestSplitParts(t *testing.T) {
	tests := []struct {
		filename             string
		name, version, arch string
		ok                   bool
	}{
		{"foo_1.2.3.bpm", "foo", "1.2.3", "", true},
		{"foo_1.2.3_amd64.bpm", "foo", "1.2.3", "amd64", true},
		{"foo.tar.gz", "", "", "", false},
	}
	for _, tc := range tests {
		name, version, arch, ok := SplitParts(tc.filename)
		if ok != tc.ok || name != tc.name || version != tc.version || arch != tc.arch {
			t.Errorf("SplitParts(%q) = (%q,%q,%q,%v), want (%q,%q,%q,%v)",
				tc.filename, name, version, arch, ok, tc.name, tc.version, tc.arch, tc.ok)
		}
	}
}

func newTestEntry(path, content string) Entry {
	b := []byte(content)
	return Entry{
		Path: path,
		Type: TypeFile,
		Size: uint64(len(b)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		},
	}
}

func TestBuildVerifyListFiles(t *testing.T) {
	entries := []Entry{
		newTestEntry("a.txt", "hi"),
		{Path: "link", Type: TypeLink, Target: "a.txt"},
	}
	buf := new(bytes.Buffer)
	meta, err := Build(buf, BuildInput{Name: "foo", Version: "1.2.3", Entries: entries})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if meta.DataHash == "" {
		t.Fatal("expected non-empty data hash")
	}

	data := buf.Bytes()
	pkg, err := Open(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := pkg.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	got := pkg.ListFiles()
	sort.Strings(got)
	want := []string{"a.txt", "link"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListFiles mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	buf := new(bytes.Buffer)
	_, err := Build(buf, BuildInput{Name: "foo", Version: "1.2.3", Entries: []Entry{newTestEntry("a.txt", "hi")}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data := bytes.Clone(buf.Bytes())
	// Flip a byte somewhere past the header region to corrupt data.tar.zst
	// content without invalidating the outer tar's own structure.
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] != 0 {
			data[i] ^= 0xFF
			break
		}
	}

	pkg, err := Open(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
	if err != nil {
		// A corrupted tar/zstd stream may fail to even open; that still
		// demonstrates detection of corruption, just earlier than Verify.
		return
	}
	if err := pkg.Verify(); err == nil {
		t.Fatal("expected Verify to detect corruption")
	}
}

func TestCheckFilenameConsistency(t *testing.T) {
	meta := &MetaData{Name: "foo", Version: "1.2.3"}
	if err := CheckFilenameConsistency("foo_1.2.3.bpm", meta); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckFilenameConsistency("bar_1.2.3.bpm", meta); err == nil {
		t.Error("expected name mismatch error")
	}
	if err := CheckFilenameConsistency("foo_1.2.4.bpm", meta); err == nil {
		t.Error("expected version mismatch error")
	}
}
