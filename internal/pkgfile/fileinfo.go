package pkgfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FileType distinguishes the three kinds of entry a package can install.
type FileType int

const (
	TypeDir FileType = iota
	TypeFile
	TypeLink
)

// FileInfo is the per-installed-file record kept in MetaData.Files and in
// InstallDB records. See spec.md §3.
type FileInfo struct {
	Type     FileType
	Target   string // symlink target; only set when Type == TypeLink
	Hash     string // hex digest; absent for directories
	Mtime    uint64 // seconds since epoch; only set for regular files
	Size     uint64 // only set for regular files
	Volatile bool   // excluded from content verification unless requested
}

// String renders the compact colon-delimited encoding described in
// spec.md §3 and §9:
//
//	"d"                       — directory
//	"f[:v]:hash:mtime:size"   — regular file, a ":v" segment marks volatile
//	"s[:v]:target:hash"       — symlink, a ":v" segment marks volatile
func (fi FileInfo) String() string {
	switch fi.Type {
	case TypeDir:
		return "d"
	case TypeFile:
		if fi.Volatile {
			return fmt.Sprintf("f:v:%s:%d:%d", fi.Hash, fi.Mtime, fi.Size)
		}
		return fmt.Sprintf("f:%s:%d:%d", fi.Hash, fi.Mtime, fi.Size)
	case TypeLink:
		if fi.Volatile {
			return fmt.Sprintf("s:v:%s:%s", fi.Target, fi.Hash)
		}
		return fmt.Sprintf("s:%s:%s", fi.Target, fi.Hash)
	default:
		return "d"
	}
}

// ParseFileInfo decodes the compact colon-delimited encoding produced by
// FileInfo.String.
func ParseFileInfo(s string) (FileInfo, error) {
	parts := strings.Split(s, ":")
	if len(parts) == 0 {
		return FileInfo{}, fmt.Errorf("empty FileInfo string")
	}
	typeChar := parts[0]
	rest := parts[1:]
	volatile := len(rest) > 0 && rest[0] == "v"
	if volatile {
		rest = rest[1:]
	}

	switch typeChar {
	case "d":
		return FileInfo{Type: TypeDir}, nil
	case "f":
		var hash string
		var mtime, size uint64
		if len(rest) > 0 {
			hash = rest[0]
		}
		if len(rest) > 1 && rest[1] != "" {
			v, err := strconv.ParseUint(rest[1], 10, 64)
			if err != nil {
				return FileInfo{}, fmt.Errorf("parse mtime in %q: %w", s, err)
			}
			mtime = v
		}
		if len(rest) > 2 && rest[2] != "" {
			v, err := strconv.ParseUint(rest[2], 10, 64)
			if err != nil {
				return FileInfo{}, fmt.Errorf("parse size in %q: %w", s, err)
			}
			size = v
		}
		return FileInfo{Type: TypeFile, Hash: hash, Mtime: mtime, Size: size, Volatile: volatile}, nil
	case "s":
		var target, hash string
		if len(rest) > 0 {
			target = rest[0]
		}
		if len(rest) > 1 {
			hash = rest[1]
		}
		return FileInfo{Type: TypeLink, Target: target, Hash: hash, Volatile: volatile}, nil
	default:
		return FileInfo{}, fmt.Errorf("unrecognized FileInfo type %q in %q", typeChar, s)
	}
}

// FileMap is an insertion-ordered path->FileInfo map. JSON marshaling
// preserves insertion order, matching the "ordered map" requirement of
// spec.md §3/§9 (FileInfo compact encoding "must preserve the ordered map
// iteration order when writing").
type FileMap struct {
	keys   []string
	values map[string]FileInfo
}

// Set inserts or updates the FileInfo for path, preserving first-insertion
// position.
func (fm *FileMap) Set(path string, fi FileInfo) {
	if fm.values == nil {
		fm.values = map[string]FileInfo{}
	}
	if _, ok := fm.values[path]; !ok {
		fm.keys = append(fm.keys, path)
	}
	fm.values[path] = fi
}

// Get returns the FileInfo for path and whether it was present.
func (fm *FileMap) Get(path string) (FileInfo, bool) {
	if fm == nil || fm.values == nil {
		return FileInfo{}, false
	}
	fi, ok := fm.values[path]
	return fi, ok
}

// Delete removes path, if present.
func (fm *FileMap) Delete(path string) {
	if fm == nil || fm.values == nil {
		return
	}
	if _, ok := fm.values[path]; !ok {
		return
	}
	delete(fm.values, path)
	for i, k := range fm.keys {
		if k == path {
			fm.keys = append(fm.keys[:i], fm.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (fm *FileMap) Len() int {
	if fm == nil {
		return 0
	}
	return len(fm.keys)
}

// Paths returns the paths in insertion order.
func (fm *FileMap) Paths() []string {
	if fm == nil {
		return nil
	}
	return fm.keys
}

// MarshalJSON encodes each FileInfo using its compact string form, keyed by
// path, in insertion order, per the external schema in spec.md §6
// ("files is an object path->FileInfoString").
func (fm FileMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range fm.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(fm.values[k].String())
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the path->FileInfoString object form, preserving
// the order keys appear in the JSON token stream.
func (fm *FileMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	out := FileMap{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", keyTok)
		}
		var raw string
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		fi, err := ParseFileInfo(raw)
		if err != nil {
			return fmt.Errorf("file %q: %w", key, err)
		}
		out.Set(key, fi)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fm = out
	return nil
}
