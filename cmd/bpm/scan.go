package main

import (
	"context"
	"fmt"
	"time"

	"github.com/a-h/bpm/cmd/bpm/globals"
	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/metrics"
)

// ScanCmd implements `bpm scan [--debounce <duration>]`: re-scan every
// configured provider and refresh its cached catalog JSON. With
// --debounce, it loops forever, re-scanning on each tick and serving the
// accumulated metrics counters for observability, per SPEC_FULL.md's
// metrics section.
type ScanCmd struct {
	Debounce    time.Duration `help:"Re-scan on this interval instead of running once (e.g. 5m)."`
	MetricsAddr string        `help:"Address for the /metrics endpoint while --debounce is running." default:":9090"`
}

func (cmd *ScanCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	if cmd.Debounce <= 0 {
		return cmd.scanOnce(ctx, a)
	}

	go func() {
		if err := metrics.ListenAndServe(cmd.MetricsAddr); err != nil {
			a.Logger.Error("metrics server exited", "addr", cmd.MetricsAddr, "error", err)
		}
	}()

	ticker := time.NewTicker(cmd.Debounce)
	defer ticker.Stop()
	for {
		if err := cmd.scanOnce(ctx, a); err != nil {
			a.Logger.Error("scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (cmd *ScanCmd) scanOnce(ctx context.Context, a *app) error {
	merged := catalog.New()
	for _, pc := range a.Config.Providers {
		scanner, ok := a.providerScanners[pc.Name]
		if !ok {
			continue
		}
		sr, err := scanner.Scan(ctx)
		if err != nil {
			a.Logger.Warn("provider scan failed", "provider", pc.Name, "error", err)
			a.Metrics.IncrementScanError(ctx, pc.Name)
			continue
		}
		if err := saveCachedCatalog(a.Cache.ProviderCatalogPath(pc.Name), sr); err != nil {
			a.Logger.Warn("failed to cache scan result", "provider", pc.Name, "error", err)
		}
		merged = catalog.Merge(merged, sr)
		fmt.Printf("%s: %d packages, %d versions, %d files\n", pc.Name, sr.PackageCount(), sr.VersionCount(), sr.UniqueCount())
	}
	a.mergedCatalog = merged
	return nil
}
