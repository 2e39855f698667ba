package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IndexID is the storage-assigned surrogate key of an IndexRecord.
// It is stable until the next full refresh.
type IndexID = uuid.UUID

// IndexRecord is one observed series.
type IndexRecord struct {
	ID         IndexID `json:"id"`
	Label      string  `json:"label"`
	IDBank     string  `json:"id_bank"`
	LastUpdate string  `json:"last_update"`
	Period     string  `json:"period"`
}

// ValuePoint is one (series, year) observation.
type ValuePoint struct {
	IndexID IndexID `json:"-"`
	Year    int     `json:"year"`
	Value   float64 `json:"value"`
}

// YearValue is a value candidate produced by the normalizer before the
// owning record has an id.
type YearValue struct {
	Year  int
	Value float64
}

// IndexSeries is one row of a Dataset snapshot: a record and its points,
// ordered by year.
type IndexSeries struct {
	IndexRecord
	Values []ValuePoint `json:"values"`
}

// ValueFor returns the value observed for year, if any.
func (s IndexSeries) ValueFor(year int) (float64, bool) {
	for _, v := range s.Values {
		if v.Year == year {
			return v.Value, true
		}
	}
	return 0, false
}

// Dataset is the full set of records and their points, queried as one unit.
// Series are ordered by label.
type Dataset []IndexSeries

// Store is the storage collaborator consumed by the loader and the export path.
type Store interface {
	// Query returns every record outer-joined with its points.
	Query(ctx context.Context) (Dataset, error)

	DeleteAllValues(ctx context.Context) error
	DeleteAllIndices(ctx context.Context) error

	// BulkInsertIndices inserts all rows in one batch and returns their
	// generated ids. The result has exactly len(rows) entries and ids[i]
	// belongs to rows[i].
	BulkInsertIndices(ctx context.Context, rows []IndexRecord) ([]IndexID, error)

	BulkInsertValues(ctx context.Context, points []ValuePoint) error
}

// Transactor is implemented by stores that can run a sequence of Store
// calls atomically. fn receives a Store bound to the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Fetcher is the transport collaborator: it fetches the raw bytes at url.
// Non-success responses are reported as ErrTransportFailure.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// RefreshPhase indicates the stage a refresh reached.
type RefreshPhase string

const (
	PhaseFetching    RefreshPhase = "fetching"
	PhaseExtracting  RefreshPhase = "extracting"
	PhaseParsing     RefreshPhase = "parsing"
	PhaseNormalizing RefreshPhase = "normalizing"
	PhaseLoading     RefreshPhase = "loading"
	PhaseComplete    RefreshPhase = "complete"
	PhaseFailed      RefreshPhase = "failed"
)

// RefreshResult contains the outcome of a refresh.
type RefreshResult struct {
	Admitted    int              `json:"count"`
	Values      int              `json:"values"`
	Years       []int            `json:"years"`
	Dropped     map[DropKind]int `json:"dropped,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration_ns"`
	Phase       RefreshPhase     `json:"phase"`
	Error       string           `json:"error,omitempty"`
	diagnostics []Diagnostic
}

// Diagnostics returns the per-row and per-cell drops collected during the refresh.
func (r RefreshResult) Diagnostics() []Diagnostic {
	return r.diagnostics
}
