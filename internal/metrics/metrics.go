// Package metrics exposes BPM's operational counters via OpenTelemetry's
// Prometheus exporter, adapted from metrics/metrics.go (teacher a-h/depot)
// for install/uninstall/cache activity instead of registry upload/download
// traffic.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the counters surfaced on the --debounce scan loop's
// /metrics endpoint, per SPEC_FULL.md's metrics section.
type Metrics struct {
	InstallsTotal    metric.Int64Counter
	UninstallsTotal  metric.Int64Counter
	CacheHitsTotal   metric.Int64Counter
	CacheMissesTotal metric.Int64Counter
	FetchedBytesTotal metric.Int64Counter
	ScanErrorsTotal  metric.Int64Counter
}

// New builds a Metrics instance backed by a fresh Prometheus exporter and
// registers it as the global otel meter provider.
func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/a-h/bpm")

	if m.InstallsTotal, err = meter.Int64Counter("installs_total", metric.WithDescription("Total number of successful package installs")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create installs_total counter: %w", err)
	}
	if m.UninstallsTotal, err = meter.Int64Counter("uninstalls_total", metric.WithDescription("Total number of successful package uninstalls")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create uninstalls_total counter: %w", err)
	}
	if m.CacheHitsTotal, err = meter.Int64Counter("cache_hits_total", metric.WithDescription("Total number of package fetches served from the local cache")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create cache_hits_total counter: %w", err)
	}
	if m.CacheMissesTotal, err = meter.Int64Counter("cache_misses_total", metric.WithDescription("Total number of package fetches requiring a provider round trip")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create cache_misses_total counter: %w", err)
	}
	if m.FetchedBytesTotal, err = meter.Int64Counter("fetched_bytes_total", metric.WithDescription("Total bytes fetched from providers")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create fetched_bytes_total counter: %w", err)
	}
	if m.ScanErrorsTotal, err = meter.Int64Counter("scan_errors_total", metric.WithDescription("Total number of provider subtrees skipped due to scan errors")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create scan_errors_total counter: %w", err)
	}

	return m, nil
}

// ListenAndServe starts the Prometheus scrape endpoint, used by `bpm scan
// --debounce`.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) IncrementInstall(ctx context.Context, pkg string) {
	if m.InstallsTotal == nil {
		return
	}
	m.InstallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package", pkg)))
}

func (m Metrics) IncrementUninstall(ctx context.Context, pkg string) {
	if m.UninstallsTotal == nil {
		return
	}
	m.UninstallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package", pkg)))
}

func (m Metrics) IncrementCacheHit(ctx context.Context) {
	if m.CacheHitsTotal == nil {
		return
	}
	m.CacheHitsTotal.Add(ctx, 1)
}

func (m Metrics) IncrementCacheMiss(ctx context.Context, bytes int64) {
	if m.CacheMissesTotal == nil || m.FetchedBytesTotal == nil {
		return
	}
	m.CacheMissesTotal.Add(ctx, 1)
	m.FetchedBytesTotal.Add(ctx, bytes)
}

func (m Metrics) IncrementScanError(ctx context.Context, provider string) {
	if m.ScanErrorsTotal == nil {
		return
	}
	m.ScanErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
