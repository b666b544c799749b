// Package installer implements the install engine from spec.md §4.G:
// install (from a local file or the catalog), update, uninstall, and
// verify. Ported from original_source/crates/bpm/src/app.rs's
// install_cmd/install_pkg_file/find_package_version/uninstall_cmd/
// verify_cmd, adapted to this module's catalog/cache/installdb packages.
package installer

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/a-h/bpm/internal/cache"
	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/config"
	"github.com/a-h/bpm/internal/installdb"
	"github.com/a-h/bpm/internal/metrics"
	"github.com/a-h/bpm/internal/pkgfile"
	"github.com/a-h/bpm/internal/version"
)

// Installer ties together the catalog, cache, install DB, and
// configuration needed to perform installs, updates, uninstalls, and
// verification.
type Installer struct {
	Config    *config.Config
	DB        *installdb.DB
	Cache     *cache.Cache
	Catalog   *catalog.ScanResult // merged view across all providers, used for resolve
	Providers []cache.ProviderEntry // per-provider catalogs in configured order, used for fetch
	Logger    *slog.Logger
	Metrics   metrics.Metrics // zero value is safe: every counter method nil-guards
}

// InstallOptions mirrors the install CLI flags from spec.md §6.
type InstallOptions struct {
	NoPin     bool
	Update    bool // spec treats install --update as a pass-through to Update
	Reinstall bool
}

func (in *Installer) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}

// Install installs nameOrPath, which is either a local package file path or
// a "name[@selector]" reference to resolve against the catalog.
func (in *Installer) Install(ctx context.Context, nameOrPath string, opts InstallOptions) error {
	if opts.Update {
		name, _, _ := strings.Cut(nameOrPath, "@")
		return in.Update(ctx, []string{name})
	}

	if looksLikePackageFile(nameOrPath) {
		return in.installFromFile(ctx, nameOrPath, installdb.Versioning{})
	}
	return in.installFromCatalog(ctx, nameOrPath, opts)
}

func looksLikePackageFile(s string) bool {
	if !strings.HasSuffix(s, pkgfile.DottedPkgFileExtension) {
		return false
	}
	_, err := os.Stat(s)
	return err == nil
}

func (in *Installer) installFromCatalog(ctx context.Context, ref string, opts InstallOptions) error {
	name, selectorStr, hasSelector := strings.Cut(ref, "@")
	if name == "" {
		return fmt.Errorf("%w: empty package name", bpmerr.ErrInvalidArgument)
	}

	sel := catalog.Selector{}
	if hasSelector {
		if in.Catalog.Packages[name] != nil && anyVersionHasChannel(in.Catalog.Packages[name], selectorStr) {
			sel.Channel = selectorStr
		} else {
			sel.Version = selectorStr
		}
	}

	_, ver, versioning, err := in.Catalog.Resolve(name, sel)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", ref, err)
	}

	id := pkgfile.PackageID{Name: name, Version: ver}

	if !opts.Reinstall {
		if rec, ok := in.DB.Get(name); ok && rec.Meta.Version == ver {
			in.logger().Info("package already installed at requested version", "name", name, "version", ver)
			return nil
		}
	}

	_, cached := in.Cache.Find(id)
	if cached {
		in.Metrics.IncrementCacheHit(ctx)
	}
	path, err := in.Cache.Fetch(ctx, id, in.Providers)
	if err != nil {
		return err
	}
	if !cached {
		var fetched int64
		if st, err := os.Stat(path); err == nil {
			fetched = st.Size()
		}
		in.Metrics.IncrementCacheMiss(ctx, fetched)
	}

	dbVersioning := installdb.Versioning{
		PinnedToVersion: versioning.PinnedToVersion,
		PinnedToChannel: versioning.PinnedToChannel,
		Channel:         versioning.Channel,
	}
	if opts.NoPin {
		dbVersioning = installdb.Versioning{}
	}

	return in.installFromFile(ctx, path, dbVersioning)
}

func anyVersionHasChannel(p *catalog.PackageInfo, channel string) bool {
	return p.HasChannel(channel)
}

// installFromFile opens a local package file, verifies it, extracts it into
// its resolved mount point, and records it in the install DB.
func (in *Installer) installFromFile(ctx context.Context, filePath string, versioning installdb.Versioning) error {
	filename := filepath.Base(filePath)

	opened, err := pkgfile.Open(func() (io.ReadCloser, error) { return os.Open(filePath) })
	if err != nil {
		return fmt.Errorf("open package file %s: %w", filePath, err)
	}
	if err := pkgfile.CheckFilenameConsistency(filename, opened.Meta); err != nil {
		return err
	}
	if err := opened.Verify(); err != nil {
		return err
	}

	mp, err := in.Config.GetMountpoint(opened.Meta.Mount)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(mp.Path, 0o755); err != nil {
		return fmt.Errorf("create mount point %s: %w", mp.Path, err)
	}

	if err := in.extract(opened, mp.Path); err != nil {
		return err
	}

	rec := installdb.InstalledRecord{
		Meta:       opened.Meta,
		Location:   mp.Path,
		Versioning: versioning,
	}
	in.DB.Put(rec)
	if err := in.DB.Save(ctx); err != nil {
		return err
	}
	in.Metrics.IncrementInstall(ctx, opened.Meta.Name)
	return nil
}

// extract streams the package's inner data tar into destDir, refusing any
// entry whose resolved path escapes destDir.
func (in *Installer) extract(opened *pkgfile.OpenedPackage, destDir string) error {
	rc, err := opened.OpenDecompressedData()
	if err != nil {
		return err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read data archive: %w", err)
		}

		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return fmt.Errorf("%w: %s escapes install directory", bpmerr.ErrInvalidArgument, hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("install(%s): %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("install(%s): %w", hdr.Name, err)
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("install(%s): %w", hdr.Name, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("install(%s): %w", hdr.Name, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("install(%s): %w", hdr.Name, err)
			}
			f.Close()
		}
	}
	return nil
}

// Update advances each named installed record (or all, if names is empty)
// to the greatest version its pinning allows.
func (in *Installer) Update(ctx context.Context, names []string) error {
	records := in.DB.List()
	for _, rec := range records {
		if len(names) > 0 && !contains(names, rec.Meta.Name) {
			continue
		}
		if rec.Versioning.PinnedToVersion {
			continue
		}

		sel := catalog.Selector{}
		if rec.Versioning.PinnedToChannel {
			sel.Channel = rec.Versioning.Channel
		}

		_, newVer, _, err := in.Catalog.Resolve(rec.Meta.Name, sel)
		if err != nil {
			in.logger().Warn("skipping update, package not found in catalog", "name", rec.Meta.Name, "error", err)
			continue
		}
		if !version.Less(rec.Meta.Version, newVer) {
			continue
		}

		in.logger().Info("updating package", "name", rec.Meta.Name, "from", rec.Meta.Version, "to", newVer)
		if err := in.Uninstall(ctx, rec.Meta.Name, false); err != nil {
			return fmt.Errorf("update %s: uninstall old version: %w", rec.Meta.Name, err)
		}
		ref := rec.Meta.Name
		if rec.Versioning.PinnedToChannel {
			ref += "@" + rec.Versioning.Channel
		}
		if err := in.Install(ctx, ref, InstallOptions{}); err != nil {
			return fmt.Errorf("update %s: install new version: %w", rec.Meta.Name, err)
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Uninstall removes a package's files, deleting directories deepest-first
// so only directories left empty by this uninstall are removed. When
// removeUnowned is false (the default), a non-empty directory is left in
// place and does not abort the uninstall; when true, it fails
// UninstallBlocked.
func (in *Installer) Uninstall(ctx context.Context, name string, removeUnowned bool) error {
	rec, ok := in.DB.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", bpmerr.ErrNotInstalled, name)
	}

	var dirs []string
	for _, path := range rec.Meta.Files.Paths() {
		fi, _ := rec.Meta.Files.Get(path)
		full := filepath.Join(rec.Location, path)
		switch fi.Type {
		case pkgfile.TypeDir:
			dirs = append(dirs, full)
		case pkgfile.TypeFile, pkgfile.TypeLink:
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("uninstall %s: remove %s: %w", name, full, err)
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		err := os.Remove(dir)
		if err == nil || os.IsNotExist(err) {
			continue
		}
		if removeUnowned {
			return &bpmerr.UninstallBlockedError{Path: dir}
		}
		// Non-empty directory: leave it, continue with the rest.
		in.logger().Debug("leaving non-empty directory in place", "path", dir)
	}

	if err := in.DB.Remove(name); err != nil {
		return err
	}
	if err := in.DB.Save(ctx); err != nil {
		return err
	}
	in.Metrics.IncrementUninstall(ctx, name)
	return nil
}

// VerifyOptions mirrors the verify CLI flags from spec.md §6.
type VerifyOptions struct {
	Restore         bool
	RestoreVolatile bool
	Mtime           bool
}

// VerifyResult reports one mismatched file within one package.
type VerifyResult struct {
	Package  string
	Path     string
	Restored bool
	Reason   string
}

// Verify re-hashes every on-disk file of the named installed packages (or
// all, if names is empty) and compares against the recorded manifest.
func (in *Installer) Verify(ctx context.Context, names []string, opts VerifyOptions) ([]VerifyResult, error) {
	for _, name := range names {
		if _, ok := in.DB.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s", bpmerr.ErrNotInstalled, name)
		}
	}

	var results []VerifyResult
	for _, rec := range in.DB.List() {
		if len(names) > 0 && !contains(names, rec.Meta.Name) {
			continue
		}
		for _, path := range rec.Meta.Files.Paths() {
			fi, _ := rec.Meta.Files.Get(path)
			if fi.Type == pkgfile.TypeDir {
				continue
			}
			if fi.Volatile && !opts.RestoreVolatile {
				continue
			}

			full := filepath.Join(rec.Location, path)
			mismatch, reason := in.checkFile(full, fi, opts.Mtime)
			if !mismatch {
				continue
			}

			result := VerifyResult{Package: rec.Meta.Name, Path: path, Reason: reason}
			if opts.Restore {
				if err := in.restoreFile(ctx, rec, path); err != nil {
					result.Reason = fmt.Sprintf("%s (restore failed: %v)", reason, err)
				} else {
					result.Restored = true
				}
			}
			results = append(results, result)
		}
	}
	return results, nil
}

func (in *Installer) checkFile(full string, fi pkgfile.FileInfo, checkMtime bool) (mismatch bool, reason string) {
	st, err := os.Lstat(full)
	if err != nil {
		return true, "missing"
	}

	switch fi.Type {
	case pkgfile.TypeLink:
		target, err := os.Readlink(full)
		if err != nil || target != fi.Target {
			return true, "link target mismatch"
		}
	case pkgfile.TypeFile:
		f, err := os.Open(full)
		if err != nil {
			return true, "unreadable"
		}
		hash, err := pkgfile.HashReader(f)
		f.Close()
		if err != nil || hash != fi.Hash {
			return true, "content hash mismatch"
		}
	}

	if checkMtime && fi.Mtime != 0 && uint64(st.ModTime().Unix()) != fi.Mtime {
		return true, "mtime mismatch"
	}
	return false, ""
}

// restoreFile re-extracts a single path from the cached package artifact,
// fetching it first if it is not already cached.
func (in *Installer) restoreFile(ctx context.Context, rec installdb.InstalledRecord, path string) error {
	id := pkgfile.PackageID{Name: rec.Meta.Name, Version: rec.Meta.Version}
	cachedPath, err := in.Cache.Fetch(ctx, id, in.Providers)
	if err != nil {
		return err
	}

	opened, err := pkgfile.Open(func() (io.ReadCloser, error) { return os.Open(cachedPath) })
	if err != nil {
		return err
	}
	rc, err := opened.OpenDecompressedData()
	if err != nil {
		return err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("path %s not found in package archive", path)
		}
		if err != nil {
			return err
		}
		if strings.TrimSuffix(hdr.Name, "/") != path {
			continue
		}
		full := filepath.Join(rec.Location, path)
		f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(f, tr)
		return err
	}
}

// Pin restricts future updates to name to channel (or to its exact
// installed version, when channel is empty).
func (in *Installer) Pin(ctx context.Context, name, channel string) error {
	rec, ok := in.DB.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", bpmerr.ErrNotInstalled, name)
	}
	if channel != "" {
		rec.Versioning = installdb.Versioning{PinnedToChannel: true, Channel: channel}
	} else {
		rec.Versioning = installdb.Versioning{PinnedToVersion: true}
	}
	in.DB.Put(rec)
	return in.DB.Save(ctx)
}

// Unpin clears any pin on name, allowing future updates to take the
// greatest available version.
func (in *Installer) Unpin(ctx context.Context, name string) error {
	rec, ok := in.DB.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", bpmerr.ErrNotInstalled, name)
	}
	rec.Versioning = installdb.Versioning{}
	in.DB.Put(rec)
	return in.DB.Save(ctx)
}

// Owner finds the installed package that owns path, if any.
func (in *Installer) Owner(path string) (string, bool) {
	for _, rec := range in.DB.List() {
		rel, err := filepath.Rel(rec.Location, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if _, ok := rec.Meta.Files.Get(filepath.ToSlash(rel)); ok {
			return rec.Meta.Name, true
		}
	}
	return "", false
}
