package pkgfile

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// hashingWriter wraps an io.Writer and accumulates a running digest of every
// byte written through it, mirroring the teacher's npm/sri.SRI pattern of
// wrapping a hash.Hash behind a small streaming API, generalized here to
// whatever inner writer the caller composes (file, tar entry, etc). In
// writeDataArchive the stack is "tar builder -> counting writer -> hashing
// writer -> zstd encoder -> file", so the digest and the byte count both
// cover the uncompressed tar stream and no whole file is buffered in memory.
type hashingWriter struct {
	inner io.Writer
	h     hash.Hash
}

func newHashingWriter(inner io.Writer) *hashingWriter {
	return &hashingWriter{inner: inner, h: sha256.New()}
}

func (w *hashingWriter) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	if n > 0 {
		w.h.Write(p[:n])
	}
	return n, err
}

func (w *hashingWriter) SumHex() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	inner io.Writer
	n     uint64
}

func newCountingWriter(inner io.Writer) *countingWriter {
	return &countingWriter{inner: inner}
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	w.n += uint64(n)
	return n, err
}

// hashingReader mirrors hashingWriter on the read side, used when streaming
// an existing file's content through the hash without a separate pass.
type hashingReader struct {
	inner io.Reader
	h     hash.Hash
}

func newHashingReader(inner io.Reader) *hashingReader {
	return &hashingReader{inner: inner, h: sha256.New()}
}

func (r *hashingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.h.Write(p[:n])
	}
	return n, err
}

func (r *hashingReader) SumHex() string {
	return hex.EncodeToString(r.h.Sum(nil))
}

// HashBytes hashes a small in-memory byte slice (used for symlink target
// bytes, which are never large enough to warrant streaming).
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// HashReader consumes r fully and returns the hex digest of its content,
// without buffering it all in memory at once.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
