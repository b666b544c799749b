package installer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/a-h/bpm/internal/cache"
	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/config"
	"github.com/a-h/bpm/internal/installdb"
	"github.com/a-h/bpm/internal/pkgfile"
)

func buildPackage(t *testing.T, name, version, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := pkgfile.Build(&buf, pkgfile.BuildInput{
		Name:    name,
		Version: version,
		Entries: []pkgfile.Entry{
			{
				Path: "bin/app",
				Type: pkgfile.TypeFile,
				Size: uint64(len(content)),
				Open: func() (io.ReadCloser, error) {
					return io.NopCloser(bytes.NewBufferString(content)), nil
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return buf.Bytes()
}

func newTestInstaller(t *testing.T) (*Installer, string) {
	t.Helper()
	dir := t.TempDir()
	mountDir := filepath.Join(dir, "mnt")

	cfg := &config.Config{
		Mount: config.MountConfig{UseDefaultTarget: true, DefaultTarget: mountDir},
	}
	db, err := installdb.Open(context.Background(), filepath.Join(dir, "installed.json"))
	if err != nil {
		t.Fatalf("installdb.Open: %v", err)
	}
	c, err := cache.New(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	return &Installer{
		Config:  cfg,
		DB:      db,
		Cache:   c,
		Catalog: catalog.New(),
	}, dir
}

func TestInstallFromFile(t *testing.T) {
	in, dir := newTestInstaller(t)

	pkgBytes := buildPackage(t, "foo", "1.0.0", "hello")
	pkgPath := filepath.Join(dir, "foo_1.0.0.bpm")
	if err := os.WriteFile(pkgPath, pkgBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := in.Install(context.Background(), pkgPath, InstallOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	rec, ok := in.DB.Get("foo")
	if !ok {
		t.Fatal("expected installed record for foo")
	}
	if rec.Meta.Version != "1.0.0" {
		t.Errorf("Version = %q", rec.Meta.Version)
	}

	data, err := os.ReadFile(filepath.Join(rec.Location, "bin/app"))
	if err != nil {
		t.Fatalf("read installed file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("installed content = %q, want hello", data)
	}
}

func TestInstallFromCatalogFetchesAndInstalls(t *testing.T) {
	in, dir := newTestInstaller(t)

	pkgBytes := buildPackage(t, "foo", "1.0.0", "hello")
	srcPath := filepath.Join(dir, "source.bpm")
	if err := os.WriteFile(srcPath, pkgBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	in.Catalog.AddVersion("foo", "1.0.0", catalog.VersionInfo{
		URI:      "file://" + srcPath,
		Filename: "foo_1.0.0.bpm",
	})
	in.Providers = []cache.ProviderEntry{
		{Name: "local", Fetcher: fileFetcher{}, Catalog: in.Catalog},
	}

	if err := in.Install(context.Background(), "foo", InstallOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, ok := in.DB.Get("foo"); !ok {
		t.Fatal("expected installed record for foo")
	}
}

type fileFetcher struct{}

func (fileFetcher) Fetch(_ context.Context, w io.Writer, uri string) error {
	path := uri[len("file://"):]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func TestUninstallRemovesFilesAndRecord(t *testing.T) {
	in, dir := newTestInstaller(t)

	pkgBytes := buildPackage(t, "foo", "1.0.0", "hello")
	pkgPath := filepath.Join(dir, "foo_1.0.0.bpm")
	os.WriteFile(pkgPath, pkgBytes, 0o644)
	if err := in.Install(context.Background(), pkgPath, InstallOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}
	rec, _ := in.DB.Get("foo")
	installedFile := filepath.Join(rec.Location, "bin/app")

	if err := in.Uninstall(context.Background(), "foo", false); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(installedFile); !os.IsNotExist(err) {
		t.Errorf("expected installed file to be removed, stat err = %v", err)
	}
	if _, ok := in.DB.Get("foo"); ok {
		t.Error("expected record to be removed")
	}
}

func TestUninstallNotInstalled(t *testing.T) {
	in, _ := newTestInstaller(t)
	err := in.Uninstall(context.Background(), "nope", false)
	if !errors.Is(err, bpmerr.ErrNotInstalled) {
		t.Errorf("expected ErrNotInstalled, got %v", err)
	}
}

func TestVerifyDetectsTamperedFile(t *testing.T) {
	in, dir := newTestInstaller(t)

	pkgBytes := buildPackage(t, "foo", "1.0.0", "hello")
	pkgPath := filepath.Join(dir, "foo_1.0.0.bpm")
	os.WriteFile(pkgPath, pkgBytes, 0o644)
	if err := in.Install(context.Background(), pkgPath, InstallOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	rec, _ := in.DB.Get("foo")
	installedFile := filepath.Join(rec.Location, "bin/app")
	if err := os.WriteFile(installedFile, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := in.Verify(context.Background(), nil, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(results) != 1 || results[0].Path != "bin/app" {
		t.Fatalf("results = %+v, want one mismatch for bin/app", results)
	}
}

func TestPinAndUnpin(t *testing.T) {
	in, dir := newTestInstaller(t)
	pkgBytes := buildPackage(t, "foo", "1.0.0", "hello")
	pkgPath := filepath.Join(dir, "foo_1.0.0.bpm")
	os.WriteFile(pkgPath, pkgBytes, 0o644)
	if err := in.Install(context.Background(), pkgPath, InstallOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := in.Pin(context.Background(), "foo", "stable"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	rec, _ := in.DB.Get("foo")
	if !rec.Versioning.PinnedToChannel || rec.Versioning.Channel != "stable" {
		t.Errorf("Versioning = %+v", rec.Versioning)
	}

	if err := in.Unpin(context.Background(), "foo"); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	rec, _ = in.DB.Get("foo")
	if rec.Versioning.PinnedToChannel || rec.Versioning.PinnedToVersion {
		t.Errorf("Versioning after unpin = %+v", rec.Versioning)
	}
}

func TestOwner(t *testing.T) {
	in, dir := newTestInstaller(t)
	pkgBytes := buildPackage(t, "foo", "1.0.0", "hello")
	pkgPath := filepath.Join(dir, "foo_1.0.0.bpm")
	os.WriteFile(pkgPath, pkgBytes, 0o644)
	if err := in.Install(context.Background(), pkgPath, InstallOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}
	rec, _ := in.DB.Get("foo")
	owner, ok := in.Owner(filepath.Join(rec.Location, "bin/app"))
	if !ok || owner != "foo" {
		t.Errorf("Owner = %q, %v, want foo, true", owner, ok)
	}
}
