package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/ipampa/internal/logging"
	"github.com/JonMunkholm/ipampa/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultSourceURL is the INSEE download of the IPAMPA family as a zipped CSV.
const DefaultSourceURL = "https://bdm.insee.fr/famille/117608561/csv?lang=fr"

// DefaultRefreshTimeout bounds a whole refresh, fetch included.
const DefaultRefreshTimeout = 5 * time.Minute

// DefaultSourceHeaders are sent with every source fetch. The download endpoint
// rejects requests that do not look like they come from the statistics site.
var DefaultSourceHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7",
	"DNT":             "1",
	"Origin":          "https://www.insee.fr",
	"Referer":         "https://www.insee.fr/",
}

// ServiceConfig holds the tunables of a Service. Zero values select defaults.
type ServiceConfig struct {
	SourceURL     string
	SourceHeaders map[string]string
	FamilyMarker  string

	RefreshTimeout time.Duration

	MaxConcurrentExports int
	ExportMaxWait        time.Duration
}

// Service runs refreshes, listings and exports against a Store.
type Service struct {
	store      Store
	fetcher    Fetcher
	normalizer Normalizer

	sourceURL      string
	sourceHeaders  map[string]string
	refreshTimeout time.Duration

	exportLimiter *ExportLimiter
	refreshGroup  singleflight.Group

	mu   sync.RWMutex
	last *RefreshResult

	now func() time.Time
}

// NewService creates a Service. store and fetcher are required.
func NewService(store Store, fetcher Fetcher, cfg ServiceConfig) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: nil store")
	}
	if fetcher == nil {
		return nil, errors.New("core: nil fetcher")
	}

	if cfg.SourceURL == "" {
		cfg.SourceURL = DefaultSourceURL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}

	headers := make(map[string]string, len(DefaultSourceHeaders)+len(cfg.SourceHeaders))
	for k, v := range DefaultSourceHeaders {
		headers[k] = v
	}
	for k, v := range cfg.SourceHeaders {
		headers[k] = v
	}

	return &Service{
		store:          store,
		fetcher:        fetcher,
		normalizer:     Normalizer{FamilyMarker: cfg.FamilyMarker},
		sourceURL:      cfg.SourceURL,
		sourceHeaders:  headers,
		refreshTimeout: cfg.RefreshTimeout,
		exportLimiter:  NewExportLimiter(cfg.MaxConcurrentExports, cfg.ExportMaxWait),
		now:            time.Now,
	}, nil
}

// ExportLimiter returns the limiter bounding concurrent exports.
func (s *Service) ExportLimiter() *ExportLimiter {
	return s.exportLimiter
}

// Refresh replaces the stored dataset with the current source content.
//
// Concurrent calls share one execution and all receive its result. The
// refresh itself is detached from ctx cancellation so that a caller going
// away does not abort a load half way; ctx only bounds how long this caller
// waits. The refresh is bounded by the configured refresh timeout.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	ch := s.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()
		res, err := s.refresh(runCtx)
		return res, err
	})

	select {
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(RefreshResult)
		return res, r.Err
	}
}

func (s *Service) refresh(ctx context.Context) (RefreshResult, error) {
	log := logging.WithFields(ctx, "source", s.sourceURL)
	res := RefreshResult{StartedAt: s.now(), Phase: PhaseFetching}

	err := s.runRefresh(ctx, log, &res)
	res.Duration = s.now().Sub(res.StartedAt)
	res.Dropped = CountByKind(res.diagnostics)

	for kind, n := range res.Dropped {
		metrics.AddDropped(string(kind), n)
	}
	metrics.ObserveRefresh(metrics.Result(err), string(res.Phase), res.Duration)

	if err != nil {
		log.Error("refresh failed", "phase", res.Phase, "error", err, "duration_ms", res.Duration.Milliseconds())
		res.Error = FormatUserError(err)
		res.Phase = PhaseFailed
	} else {
		res.Phase = PhaseComplete
		metrics.SetDatasetSize(res.Admitted, res.Values)
		log.Info("refresh completed",
			"admitted", res.Admitted,
			"values", res.Values,
			"dropped", len(res.diagnostics),
			"duration_ms", res.Duration.Milliseconds(),
		)
	}

	s.mu.Lock()
	last := res
	s.last = &last
	s.mu.Unlock()

	return res, err
}

func (s *Service) runRefresh(ctx context.Context, log *slog.Logger, res *RefreshResult) error {
	res.Phase = PhaseFetching
	data, err := s.fetcher.Fetch(ctx, s.sourceURL, s.sourceHeaders)
	if err != nil {
		if !errors.Is(err, ErrTransportFailure) {
			err = fmt.Errorf("%w: %w", ErrTransportFailure, err)
		}
		return fmt.Errorf("fetch source: %w", err)
	}
	log.Debug("source fetched", "bytes", len(data))

	res.Phase = PhaseExtracting
	name, text, err := ReadArchive(data)
	if err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	res.Phase = PhaseParsing
	table, err := ParseTable(strings.NewReader(text))
	if table != nil {
		res.diagnostics = append(res.diagnostics, table.Skipped...)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	cols, err := InferYearColumns(table.Header)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	res.Years = Years(cols)
	log.Debug("data file parsed",
		"entry", name,
		"rows", len(table.Records),
		"skipped", len(table.Skipped),
		"years", len(cols),
	)

	res.Phase = PhaseNormalizing
	rows, diags := s.normalizer.Normalize(table.Records, cols)
	res.diagnostics = append(res.diagnostics, diags...)
	for _, d := range res.diagnostics {
		log.Debug("dropped", "line", d.Line, "kind", d.Kind, "column", d.Column, "detail", d.Detail)
	}

	res.Phase = PhaseLoading
	loaded, err := Replace(ctx, s.store, rows)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	res.Admitted = loaded.Indices
	res.Values = loaded.Values
	return nil
}

// LastRefresh returns the outcome of the most recent refresh, if any ran.
func (s *Service) LastRefresh() (RefreshResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RefreshResult{}, false
	}
	return *s.last, true
}

// ListIndices returns the stored dataset, series ordered by label.
func (s *Service) ListIndices(ctx context.Context) (Dataset, error) {
	ds, err := s.store.Query(ctx)
	if err != nil {
		return nil, storageErr("query", err)
	}
	return ds, nil
}

// Export returns the pivoted export of the series matching query in format.
func (s *Service) Export(ctx context.Context, format ExportFormat, query string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return s.ExportCSV(ctx, query)
	case FormatXLSX:
		return s.ExportXLSX(ctx, query)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ExportCSV returns the pivoted CSV of the series matching query.
func (s *Service) ExportCSV(ctx context.Context, query string) ([]byte, error) {
	return s.export(ctx, FormatCSV, query, func(p Pivot) ([]byte, error) {
		return p.CSV(), nil
	})
}

// ExportXLSX returns the pivoted workbook of the series matching query.
func (s *Service) ExportXLSX(ctx context.Context, query string) ([]byte, error) {
	return s.export(ctx, FormatXLSX, query, Pivot.XLSX)
}

func (s *Service) export(ctx context.Context, format ExportFormat, query string, render func(Pivot) ([]byte, error)) (out []byte, err error) {
	start := s.now()
	defer func() {
		metrics.ObserveExport(string(format), metrics.Result(err), s.now().Sub(start), len(out))
	}()

	if err := s.exportLimiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.exportLimiter.Release()

	ds, err := s.ListIndices(ctx)
	if err != nil {
		return nil, err
	}

	p := NewPivot(ds, query)
	out, err = render(p)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}

	logging.FromContext(ctx).Debug("export built",
		"format", format,
		"query", query,
		"series", len(p.Series),
		"years", len(p.Years),
		"bytes", len(out),
	)
	return out, nil
}
