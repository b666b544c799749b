// Package provider defines the common scanning contract implemented by
// internal/provider/fsprovider and internal/provider/httpprovider, per
// spec.md §4.C.
package provider

import (
	"context"

	"github.com/a-h/bpm/internal/catalog"
)

// Scanner produces a catalog.ScanResult describing every package file
// reachable from a provider's root location.
type Scanner interface {
	Scan(ctx context.Context) (*catalog.ScanResult, error)
}

// ChannelsDoc is the schema of a provider-side channels.json: for each
// channel name, the list of versions it currently points at.
type ChannelsDoc map[string][]string

// KVDoc is the schema of a provider-side kv.json: a flat string map
// attached to a package's catalog entry.
type KVDoc map[string]string
