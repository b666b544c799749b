package pkgfile

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"

	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// OpenedPackage is the result of parsing a package file's outer tar layer:
// its CONTROL, its MetaData, and a callback to stream the data archive.
type OpenedPackage struct {
	Control  Control
	Meta     *MetaData
	dataSize int64
	openData func() (io.ReadCloser, error)
}

// Open reads the outer tar's CONTROL and meta.json entries (buffering them,
// since both are small plain-text/JSON documents) and defers data.tar.zst
// access to a re-openable callback, so Open itself never holds the data
// archive in memory.
//
// reopen must return a fresh, independent reader positioned at the start of
// the package file; it is called once to parse CONTROL/meta.json and again
// whenever the data archive needs to be streamed.
func Open(reopen func() (io.ReadCloser, error)) (*OpenedPackage, error) {
	rc, err := reopen()
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	defer rc.Close()

	tr := tar.NewReader(rc)

	var ctrl Control
	var meta *MetaData
	var dataSize int64
	sawControl, sawMeta, sawData := false, false, false

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read outer tar: %w", err)
		}
		switch hdr.Name {
		case ControlFileName:
			ctrl, err = ReadControl(tr)
			if err != nil {
				return nil, fmt.Errorf("read CONTROL: %w", err)
			}
			sawControl = true
		case MetaFileName:
			meta, err = ReadMetaData(tr)
			if err != nil {
				return nil, fmt.Errorf("read meta.json: %w", err)
			}
			sawMeta = true
		case DataFileName:
			dataSize = hdr.Size
			sawData = true
		}
		if sawControl && sawMeta && sawData {
			break
		}
	}

	if !sawControl || !sawMeta || !sawData {
		return nil, fmt.Errorf("package missing required entries (control=%v meta=%v data=%v)", sawControl, sawMeta, sawData)
	}
	if err := ctrl.CheckSupported(); err != nil {
		return nil, err
	}

	return &OpenedPackage{
		Control:  ctrl,
		Meta:     meta,
		dataSize: dataSize,
		openData: func() (io.ReadCloser, error) {
			f, err := reopen()
			if err != nil {
				return nil, err
			}
			tr := tar.NewReader(f)
			for {
				hdr, err := tr.Next()
				if err == io.EOF {
					f.Close()
					return nil, fmt.Errorf("data.tar.zst entry not found on reopen")
				}
				if err != nil {
					f.Close()
					return nil, err
				}
				if hdr.Name == DataFileName {
					return readCloserFunc{Reader: tr, closeFn: f.Close}, nil
				}
			}
		},
	}, nil
}

type readCloserFunc struct {
	io.Reader
	closeFn func() error
}

func (r readCloserFunc) Close() error { return r.closeFn() }

// decompressor returns a reader that decompresses a data.tar.zst stream
// using the codec CONTROL names.
func (p *OpenedPackage) decompressor(r io.Reader) (io.Reader, error) {
	switch p.Control.Compress {
	case CompressZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		return zr.IOReadCloser(), nil
	case CompressXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create xz decoder: %w", err)
		}
		return xr, nil
	default:
		return nil, fmt.Errorf("%w: compression %q", bpmerr.ErrConfig, p.Control.Compress)
	}
}

// Verify runs the integrity protocol from spec.md §4.B verify path: hash
// the uncompressed data stream against data_hash, then walk the inner tar
// checking its path set against MetaData.Files exactly. The whole
// decompressed data archive is read into memory before the walk; it is not
// streamed.
func (p *OpenedPackage) Verify() error {
	rc, err := p.openData()
	if err != nil {
		return err
	}
	defer rc.Close()

	decomp, err := p.decompressor(rc)
	if err != nil {
		return err
	}

	hr := newHashingReader(decomp)
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, hr); err != nil {
		return fmt.Errorf("read data archive: %w", err)
	}
	if hr.SumHex() != p.Meta.DataHash {
		return bpmerr.NewCorrupt(bpmerr.CorruptDataHash, "")
	}

	expected := map[string]struct{}{}
	for _, path := range p.Meta.Files.Paths() {
		expected[path] = struct{}{}
	}

	tr := tar.NewReader(buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read inner tar: %w", err)
		}
		path := normalizeTarName(hdr.Name)
		fi, ok := p.Meta.Files.Get(path)
		if !ok {
			return bpmerr.NewCorrupt(bpmerr.CorruptExtraFile, path)
		}
		if !fileTypeMatches(fi.Type, hdr.Typeflag) {
			return bpmerr.NewCorrupt(bpmerr.CorruptExtraFile, path)
		}
		delete(expected, path)
	}

	if len(expected) > 0 {
		for path := range expected {
			return bpmerr.NewCorrupt(bpmerr.CorruptMissingFile, path)
		}
	}
	return nil
}

// OpenDecompressedData re-opens the package and returns its data archive as
// a decompressed tar-ready stream, using the codec named in CONTROL. The
// caller must Close the result.
func (p *OpenedPackage) OpenDecompressedData() (io.ReadCloser, error) {
	rc, err := p.openData()
	if err != nil {
		return nil, err
	}
	decomp, err := p.decompressor(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	if closer, ok := decomp.(io.Closer); ok {
		return struct {
			io.Reader
			io.Closer
		}{decomp, closerFunc(func() error {
			closer.Close()
			return rc.Close()
		})}, nil
	}
	return readCloserFunc{Reader: decomp, closeFn: rc.Close}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ListFiles returns the manifest's path list in insertion order.
func (p *OpenedPackage) ListFiles() []string {
	return p.Meta.Files.Paths()
}

// CheckFilenameConsistency verifies that a package-file's filename encodes
// the same name/version as its manifest, per spec.md §4.B.
func CheckFilenameConsistency(filename string, meta *MetaData) error {
	name, ver, _, ok := SplitParts(filename)
	if !ok {
		return fmt.Errorf("%w: %q is not a package filename", bpmerr.ErrInvalidArgument, filename)
	}
	if name != meta.Name {
		return bpmerr.NewCorrupt(bpmerr.CorruptNameMismatch, "")
	}
	if ver != meta.Version {
		return bpmerr.NewCorrupt(bpmerr.CorruptVersionMismatch, "")
	}
	return nil
}

// normalizeTarName strips the trailing slash tar uses for directory entry
// names, matching the path key stored in MetaData.Files for TypeDir.
func normalizeTarName(name string) string {
	if len(name) > 0 && name[len(name)-1] == '/' {
		return name[:len(name)-1]
	}
	return name
}

func fileTypeMatches(ft FileType, flag byte) bool {
	switch ft {
	case TypeDir:
		return flag == tar.TypeDir
	case TypeFile:
		return flag == tar.TypeReg || flag == tar.TypeRegA
	case TypeLink:
		return flag == tar.TypeSymlink
	default:
		return false
	}
}
