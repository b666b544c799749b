// Package bpmerr defines the domain error kinds shared across every
// component, per spec.md §7. These are sentinel values and a couple of
// payload-carrying types; callers use errors.Is/errors.As to distinguish
// kinds after a leaf error has been wrapped with fmt.Errorf("...: %w", err).
package bpmerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig signals an invalid configuration file or missing required field.
	ErrConfig = errors.New("invalid configuration")
	// ErrNotFound signals a package/version/channel not known to any provider.
	ErrNotFound = errors.New("not found")
	// ErrFetch signals that no provider produced the requested artifact.
	ErrFetch = errors.New("fetch failed")
	// ErrInvalidMount signals a mount name with no matching configuration entry.
	ErrInvalidMount = errors.New("invalid mount")
	// ErrDefaultDisabled signals a request for the default mount when it has
	// been explicitly disabled in configuration.
	ErrDefaultDisabled = errors.New("default mount disabled")
	// ErrNotInstalled signals an operation against a package absent from the
	// Install DB.
	ErrNotInstalled = errors.New("not installed")
	// ErrInvalidArgument signals a malformed name, version, selector, or CLI
	// argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

// CorruptKind enumerates the Corrupt(...) suffixes from spec.md §7.
type CorruptKind string

const (
	CorruptDataHash         CorruptKind = "dataHash"
	CorruptExtraFile        CorruptKind = "extraFile"
	CorruptMissingFile      CorruptKind = "missingFile"
	CorruptNameMismatch     CorruptKind = "nameMismatch"
	CorruptVersionMismatch  CorruptKind = "versionMismatch"
	CorruptControlUnsupport CorruptKind = "controlUnsupported"
)

// CorruptError reports an integrity-check failure with its offending path,
// when the kind carries one (extraFile/missingFile).
type CorruptError struct {
	Kind CorruptKind
	Path string
}

func (e *CorruptError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corrupt package: %s(%s)", e.Kind, e.Path)
	}
	return fmt.Sprintf("corrupt package: %s", e.Kind)
}

// Is makes errors.Is(err, &CorruptError{Kind: K}) match any CorruptError
// with the same Kind, regardless of Path.
func (e *CorruptError) Is(target error) bool {
	t, ok := target.(*CorruptError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewCorrupt builds a CorruptError.
func NewCorrupt(kind CorruptKind, path string) *CorruptError {
	return &CorruptError{Kind: kind, Path: path}
}

// UninstallBlockedError reports that removal of path was prevented because
// it was non-empty or not owned by the package being uninstalled.
type UninstallBlockedError struct {
	Path string
}

func (e *UninstallBlockedError) Error() string {
	return fmt.Sprintf("uninstall blocked: %s", e.Path)
}
