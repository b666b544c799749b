package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/a-h/bpm/internal/bpmerr"
)

const sampleTOML = `
cache_dir = "/var/cache/bpm"
database = "/var/lib/bpm/installed.json"
use_default_target = true

[providers]
local = "fs:///srv/packages"
mirrors = ["http://a.example.com", "http://b.example.com"]

[mount]
TARGET = "/usr/local"
extras = "/opt/extras"
`

func TestFromReaderParsesProvidersAndMounts(t *testing.T) {
	cfg, err := FromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if cfg.CacheDir != "/var/cache/bpm" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if len(cfg.Providers) != 3 {
		t.Fatalf("Providers len = %d, want 3", len(cfg.Providers))
	}
	if !cfg.Mount.UseDefaultTarget || cfg.Mount.DefaultTarget != "/usr/local" {
		t.Errorf("Mount = %+v", cfg.Mount)
	}
	if len(cfg.Mount.Mounts) != 1 || cfg.Mount.Mounts[0].Name != "extras" {
		t.Errorf("Mounts = %+v", cfg.Mount.Mounts)
	}
}

func TestGetMountpointDefault(t *testing.T) {
	cfg := &Config{Mount: MountConfig{UseDefaultTarget: true, DefaultTarget: "/usr/local"}}
	mp, err := cfg.GetMountpoint("")
	if err != nil {
		t.Fatalf("GetMountpoint: %v", err)
	}
	if mp.Path != "/usr/local" {
		t.Errorf("Path = %q", mp.Path)
	}
}

func TestGetMountpointDefaultDisabled(t *testing.T) {
	cfg := &Config{Mount: MountConfig{UseDefaultTarget: false}}
	_, err := cfg.GetMountpoint("")
	if !errors.Is(err, bpmerr.ErrDefaultDisabled) {
		t.Errorf("expected ErrDefaultDisabled, got %v", err)
	}
}

func TestGetMountpointNamed(t *testing.T) {
	cfg := &Config{Mount: MountConfig{Mounts: []NamedMount{{Name: "extras", Path: "/opt/extras"}}}}
	mp, err := cfg.GetMountpoint("extras")
	if err != nil {
		t.Fatalf("GetMountpoint: %v", err)
	}
	if mp.Path != "/opt/extras" {
		t.Errorf("Path = %q", mp.Path)
	}
}

func TestGetMountpointInvalid(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.GetMountpoint("nope")
	if !errors.Is(err, bpmerr.ErrInvalidMount) {
		t.Errorf("expected ErrInvalidMount, got %v", err)
	}
}

func TestPathReplaceOSArch(t *testing.T) {
	got := pathReplace("${OS}/${ARCH}/pkgs")
	if strings.Contains(got, "${OS}") || strings.Contains(got, "${ARCH}") {
		t.Errorf("pathReplace left variables unsubstituted: %q", got)
	}
}
