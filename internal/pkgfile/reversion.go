package pkgfile

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// SetVersion implements the re-version operation from spec.md §4.B:
// streams the outer tar through, replacing only meta.json with a copy
// carrying the new version/arch and a fresh UUID. All other bytes,
// including data.tar.zst, pass through untouched, so data_hash is
// unaffected.
func SetVersion(w io.Writer, r io.Reader, newVersion, newArch string) (*MetaData, error) {
	tr := tar.NewReader(r)
	tw := tar.NewWriter(w)

	var newMeta *MetaData

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read outer tar: %w", err)
		}

		if hdr.Name == MetaFileName {
			meta, err := ReadMetaData(tr)
			if err != nil {
				return nil, fmt.Errorf("read meta.json: %w", err)
			}
			meta.Version = newVersion
			if newArch != "" {
				meta.Arch = newArch
			}
			meta.UUID = uuid.NewString()
			newMeta = meta

			buf := new(bytes.Buffer)
			if err := meta.ToWriter(buf); err != nil {
				return nil, fmt.Errorf("encode meta.json: %w", err)
			}
			if err := tw.WriteHeader(&tar.Header{
				Name: MetaFileName,
				Mode: 0o644,
				Size: int64(buf.Len()),
			}); err != nil {
				return nil, fmt.Errorf("write meta.json header: %w", err)
			}
			if _, err := tw.Write(buf.Bytes()); err != nil {
				return nil, fmt.Errorf("write meta.json: %w", err)
			}
			continue
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write %s header: %w", hdr.Name, err)
		}
		if _, err := io.Copy(tw, tr); err != nil {
			return nil, fmt.Errorf("copy %s: %w", hdr.Name, err)
		}
	}

	if newMeta == nil {
		return nil, fmt.Errorf("package has no meta.json entry")
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close outer tar: %w", err)
	}
	return newMeta, nil
}
