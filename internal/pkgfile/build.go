package pkgfile

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry describes one file-tree entry to be packed, prepared by the Packer
// component (internal/packer) after ignore/mode rules have been applied.
// Open is only consulted for TypeFile entries; it must return a fresh
// reader for the file's content each call.
type Entry struct {
	Path     string // forward-slash relative path
	Type     FileType
	Target   string // symlink target, TypeLink only
	Volatile bool
	Mtime    uint64
	Size     uint64                     // regular files only; known from the filesystem stat
	Open     func() (io.ReadCloser, error)
}

// BuildInput collects everything Build needs beyond the raw file entries.
type BuildInput struct {
	Name         string
	Version      string
	Arch         string
	Mount        string
	Description  string
	Dependencies map[string]string // order-insensitive input; spec treats these as opaque records
	DependencyOrder []string       // keys of Dependencies to record, in order; unlisted keys are not written
	KV           map[string]string
	KVOrder      []string // keys of KV to record, in order; unlisted keys are not written
	Entries      []Entry
}

// Build streams entries into the two-layer package format described in
// spec.md §4.B and writes it to w. It returns the MetaData actually
// written, including the fresh UUID and computed hashes.
func Build(w io.Writer, in BuildInput) (*MetaData, error) {
	tmp, err := os.CreateTemp("", "bpm-data-*.tar.zst")
	if err != nil {
		return nil, fmt.Errorf("create temp data file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	meta := NewMetaData(in.Name, in.Version)
	meta.Arch = in.Arch
	meta.Mount = in.Mount
	meta.Description = in.Description
	for _, k := range in.DependencyOrder {
		meta.AddDependency(k, in.Dependencies[k])
	}
	for _, k := range in.KVOrder {
		meta.WithKV(k, in.KV[k])
	}

	dataHash, dataSize, err := writeDataArchive(tmp, in.Entries, meta)
	if err != nil {
		return nil, err
	}
	meta.DataHash = dataHash
	meta.DataSize = dataSize

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek temp data file: %w", err)
	}
	st, err := tmp.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat temp data file: %w", err)
	}

	ow := tar.NewWriter(w)

	control := Control{Version: ControlFormatVersion, Compress: CompressZstd, Hash: HashAlgoSHA256}
	controlBuf := new(bytes.Buffer)
	if _, err := control.WriteTo(controlBuf); err != nil {
		return nil, err
	}
	if err := writeTarEntry(ow, ControlFileName, controlBuf.Bytes()); err != nil {
		return nil, err
	}

	metaBuf := new(bytes.Buffer)
	if err := meta.ToWriter(metaBuf); err != nil {
		return nil, fmt.Errorf("encode meta.json: %w", err)
	}
	if err := writeTarEntry(ow, MetaFileName, metaBuf.Bytes()); err != nil {
		return nil, err
	}

	if err := ow.WriteHeader(&tar.Header{
		Name: DataFileName,
		Mode: 0o644,
		Size: st.Size(),
	}); err != nil {
		return nil, fmt.Errorf("write data.tar.zst header: %w", err)
	}
	if _, err := io.Copy(ow, tmp); err != nil {
		return nil, fmt.Errorf("copy data.tar.zst: %w", err)
	}

	if err := ow.Close(); err != nil {
		return nil, fmt.Errorf("close outer tar: %w", err)
	}

	return meta, nil
}

// writeDataArchive streams entries into the inner data tar, zstd-compressed,
// writing the result to dst while computing data_hash/data_size over the
// UNCOMPRESSED tar byte stream, and filling per-file FileInfo into meta.
func writeDataArchive(dst io.Writer, entries []Entry, meta *MetaData) (dataHash string, dataSize uint64, err error) {
	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return "", 0, fmt.Errorf("create zstd encoder: %w", err)
	}
	hw := newHashingWriter(zw)
	cw := newCountingWriter(hw)
	tw := tar.NewWriter(cw)

	for _, e := range entries {
		switch e.Type {
		case TypeDir:
			if err := tw.WriteHeader(&tar.Header{
				Name:     e.Path + "/",
				Typeflag: tar.TypeDir,
				Mode:     0o755,
			}); err != nil {
				return "", 0, fmt.Errorf("write dir header %s: %w", e.Path, err)
			}
			meta.AddFile(e.Path, FileInfo{Type: TypeDir})

		case TypeLink:
			hash := HashBytes([]byte(e.Target))
			if err := tw.WriteHeader(&tar.Header{
				Name:     e.Path,
				Typeflag: tar.TypeSymlink,
				Linkname: e.Target,
				Mode:     0o777,
			}); err != nil {
				return "", 0, fmt.Errorf("write symlink header %s: %w", e.Path, err)
			}
			meta.AddFile(e.Path, FileInfo{Type: TypeLink, Target: e.Target, Hash: hash, Volatile: e.Volatile})

		case TypeFile:
			rc, err := e.Open()
			if err != nil {
				return "", 0, fmt.Errorf("open %s: %w", e.Path, err)
			}
			size, hash, werr := streamFileEntry(tw, e, rc)
			rc.Close()
			if werr != nil {
				return "", 0, fmt.Errorf("write file %s: %w", e.Path, werr)
			}
			meta.AddFile(e.Path, FileInfo{Type: TypeFile, Hash: hash, Mtime: e.Mtime, Size: size, Volatile: e.Volatile})
		}
	}

	if err := tw.Close(); err != nil {
		return "", 0, fmt.Errorf("close inner tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", 0, fmt.Errorf("close zstd encoder: %w", err)
	}

	return hw.SumHex(), cw.n, nil
}

// streamFileEntry copies a regular file's content into the inner tar,
// hashing its content stream-wise to avoid buffering the whole file. tar
// requires the entry size in the header before any data bytes, so the
// Packer pre-stats every regular file and sets Entry.Size.
func streamFileEntry(tw *tar.Writer, e Entry, r io.Reader) (size uint64, hash string, err error) {
	hr := newHashingReader(r)
	if err := tw.WriteHeader(&tar.Header{
		Name:     e.Path,
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(e.Size),
		ModTime:  modTimeFromUnix(e.Mtime),
	}); err != nil {
		return 0, "", err
	}
	n, err := io.Copy(tw, hr)
	if err != nil {
		return 0, "", err
	}
	return uint64(n), hr.SumHex(), nil
}

func writeTarEntry(tw *tar.Writer, name string, content []byte) error {
	if err := tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(content)),
	}); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func modTimeFromUnix(sec uint64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}
