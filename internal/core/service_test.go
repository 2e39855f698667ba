package core_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/JonMunkholm/ipampa/internal/core"
	"github.com/JonMunkholm/ipampa/internal/store/memory"
)

const sourceCSV = "\ufeff\"Libellé\";\"idBank\";\"Dernière mise à jour\";\"Période\";\"2020\";\"2021\";\"2022\"\n" +
	"\"IPAMPA Engrais\";\"001234567\";\"15/01/2024\";\"Annuelle\";\"101,5\";\"-\";\"\"\n" +
	"\"IPAMPA Aliments; Grade A\";\"001234568\";\"15/01/2024\";\"Annuelle\";\"99\";\"100,25\";\"n.d.\"\n" +
	"\"Indice des prix\";\"001234569\";\"15/01/2024\";\"Annuelle\";\"1\";\"2\";\"3\"\n" +
	"\"\";\"001234570\";\"15/01/2024\";\"Annuelle\";\"1\";\"2\";\"3\"\n"

func zipOf(t testing.TB, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeFetcher serves a fixed payload or error and counts calls.
type fakeFetcher struct {
	data  []byte
	err   error
	calls atomic.Int32
	gate  chan struct{}

	mu      sync.Mutex
	url     string
	headers map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.url, f.headers = url, headers
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.data, f.err
}

func newService(t *testing.T, store core.Store, fetcher core.Fetcher) *core.Service {
	t.Helper()
	svc, err := core.NewService(store, fetcher, core.ServiceConfig{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestService_Refresh(t *testing.T) {
	store := memory.New()
	fetcher := &fakeFetcher{data: zipOf(t, "valeurs_annuelles.csv", sourceCSV)}
	svc := newService(t, store, fetcher)

	res, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Admitted != 2 {
		t.Errorf("Admitted = %d, want 2", res.Admitted)
	}
	if res.Values != 3 {
		t.Errorf("Values = %d, want 3", res.Values)
	}
	if res.Phase != core.PhaseComplete {
		t.Errorf("Phase = %q, want %q", res.Phase, core.PhaseComplete)
	}
	if res.Dropped[core.DropFamilyMismatch] != 1 || res.Dropped[core.DropMissingField] != 1 || res.Dropped[core.DropInvalidCell] != 1 {
		t.Errorf("Dropped = %v", res.Dropped)
	}
	if len(res.Diagnostics()) != 3 {
		t.Errorf("got %d diagnostics, want 3", len(res.Diagnostics()))
	}

	if fetcher.url != core.DefaultSourceURL {
		t.Errorf("fetched %q, want %q", fetcher.url, core.DefaultSourceURL)
	}
	if fetcher.headers["Origin"] != "https://www.insee.fr" {
		t.Errorf("Origin header = %q", fetcher.headers["Origin"])
	}

	ds, err := svc.ListIndices(context.Background())
	if err != nil {
		t.Fatalf("ListIndices() error = %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("ListIndices() returned %d series, want 2", len(ds))
	}
	engrais := ds[1]
	if engrais.Label != "IPAMPA Engrais" {
		t.Fatalf("ds[1].Label = %q, want IPAMPA Engrais", engrais.Label)
	}
	if len(engrais.Values) != 1 || engrais.Values[0].Year != 2020 || engrais.Values[0].Value != 101.5 {
		t.Errorf("IPAMPA Engrais values = %+v, want only 2020=101.5", engrais.Values)
	}

	last, ok := svc.LastRefresh()
	if !ok || last.Admitted != 2 {
		t.Errorf("LastRefresh() = %+v, %v", last, ok)
	}
}

func TestService_RefreshTwiceIsStable(t *testing.T) {
	store := memory.New()
	svc := newService(t, store, &fakeFetcher{data: zipOf(t, "data.csv", sourceCSV)})
	ctx := context.Background()

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	first, _ := svc.ListIndices(ctx)

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	second, _ := svc.ListIndices(ctx)

	if len(first) != len(second) {
		t.Fatalf("series count changed: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID == second[i].ID {
			t.Errorf("series %d kept its id across refreshes", i)
		}
		if first[i].Label != second[i].Label || len(first[i].Values) != len(second[i].Values) {
			t.Errorf("series %d changed: %+v then %+v", i, first[i], second[i])
		}
		for j := range first[i].Values {
			a, b := first[i].Values[j], second[i].Values[j]
			if a.Year != b.Year || a.Value != b.Value {
				t.Errorf("series %d value %d changed: %+v then %+v", i, j, a, b)
			}
		}
	}
}

func TestService_RefreshNothingAdmitted(t *testing.T) {
	csv := "Libellé;idBank;2020\nAutre indice;1;100\n;2;100\n"
	store := memory.New()
	if _, err := store.BulkInsertIndices(context.Background(), []core.IndexRecord{{Label: "IPAMPA stale", IDBank: "9"}}); err != nil {
		t.Fatal(err)
	}
	svc := newService(t, store, &fakeFetcher{data: zipOf(t, "data.csv", csv)})

	res, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Admitted != 0 {
		t.Errorf("Admitted = %d, want 0", res.Admitted)
	}
	if indices, values := store.Len(); indices != 0 || values != 0 {
		t.Errorf("store holds %d indices and %d values, want empty", indices, values)
	}
}

func TestService_RefreshFailures(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		wantErr error
	}{
		{
			name:    "transport failure",
			fetcher: &fakeFetcher{err: errors.New("connection reset by peer")},
			wantErr: core.ErrTransportFailure,
		},
		{
			name:    "no data file in archive",
			fetcher: &fakeFetcher{data: zipOf(t, "readme.pdf", "x")},
			wantErr: core.ErrArchiveEntryNotFound,
		},
		{
			name:    "header only",
			fetcher: &fakeFetcher{data: zipOf(t, "data.csv", "Libellé;idBank;2020\n")},
			wantErr: core.ErrEmptyResult,
		},
		{
			name:    "no year columns",
			fetcher: &fakeFetcher{data: zipOf(t, "data.csv", "Libellé;idBank\nIPAMPA A;1\n")},
			wantErr: core.ErrNoYearColumns,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			ids, _ := store.BulkInsertIndices(context.Background(), []core.IndexRecord{{Label: "IPAMPA kept", IDBank: "1"}})
			svc := newService(t, store, tt.fetcher)

			res, err := svc.Refresh(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Refresh() error = %v, want %v", err, tt.wantErr)
			}
			if res.Phase != core.PhaseFailed {
				t.Errorf("Phase = %q, want %q", res.Phase, core.PhaseFailed)
			}
			if res.Error == "" {
				t.Error("Error message not set")
			}

			ds, _ := store.Query(context.Background())
			if len(ds) != 1 || ds[0].ID != ids[0] {
				t.Error("failed refresh modified the stored dataset")
			}
		})
	}
}

func TestService_RefreshStorageFailureRollsBack(t *testing.T) {
	store := memory.New()
	svc := newService(t, store, &fakeFetcher{data: zipOf(t, "data.csv", sourceCSV)})
	ctx := context.Background()

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	store.FailOn("insert_values", errors.New("disk full"))
	_, err := svc.Refresh(ctx)
	if !errors.Is(err, core.ErrStorageFailure) {
		t.Fatalf("Refresh() error = %v, want ErrStorageFailure", err)
	}

	if indices, _ := store.Len(); indices != 2 {
		t.Errorf("store holds %d indices after failed refresh, want the previous 2", indices)
	}
}

func TestService_ConcurrentRefreshesShareOneRun(t *testing.T) {
	fetcher := &fakeFetcher{
		data: zipOf(t, "data.csv", sourceCSV),
		gate: make(chan struct{}),
	}
	svc := newService(t, memory.New(), fetcher)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]core.RefreshResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(context.Background())
		}(i)
	}

	// Let every caller join the in-flight refresh before releasing it.
	deadline := time.Now().Add(time.Second)
	for fetcher.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("source fetched %d times, want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if results[i].Admitted != 2 {
			t.Errorf("caller %d: Admitted = %d, want 2", i, results[i].Admitted)
		}
	}
}

func TestService_RefreshCallerCancelled(t *testing.T) {
	fetcher := &fakeFetcher{data: zipOf(t, "data.csv", sourceCSV), gate: make(chan struct{})}
	store := memory.New()
	svc := newService(t, store, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(ctx)
		done <- err
	}()

	for fetcher.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Refresh() error = %v, want context.Canceled", err)
	}

	// The detached refresh still completes.
	close(fetcher.gate)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := svc.LastRefresh(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refresh did not complete after caller left")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if indices, _ := store.Len(); indices != 2 {
		t.Errorf("store holds %d indices, want 2", indices)
	}
}

func TestService_ExportCSV(t *testing.T) {
	svc := newService(t, memory.New(), &fakeFetcher{data: zipOf(t, "data.csv", sourceCSV)})
	ctx := context.Background()

	empty, err := svc.ExportCSV(ctx, "")
	if err != nil {
		t.Fatalf("ExportCSV() on empty dataset error = %v", err)
	}
	if got, want := string(empty), "\ufeffLibellé;ID Bank;Dernière mise à jour;Période\n"; got != want {
		t.Errorf("ExportCSV() on empty dataset = %q, want %q", got, want)
	}

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	out, err := svc.ExportCSV(ctx, "")
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	want := "\ufeffLibellé;ID Bank;Dernière mise à jour;Période;2020;2021\n" +
		"\"IPAMPA Aliments; Grade A\";001234568;15/01/2024;Annuelle;99.00;100.25\n" +
		"IPAMPA Engrais;001234567;15/01/2024;Annuelle;101.50;"
	if string(out) != want {
		t.Errorf("ExportCSV() =\n%q\nwant\n%q", out, want)
	}

	filtered, err := svc.ExportCSV(ctx, "ENGRAIS")
	if err != nil {
		t.Fatalf("ExportCSV(filter) error = %v", err)
	}
	if got := strings.Count(string(filtered), "\n"); got != 1 {
		t.Errorf("filtered export has %d newlines, want header + 1 row", got)
	}
	if strings.Contains(string(filtered), "2021") {
		t.Error("filtered export includes a year only present in excluded series")
	}

	if _, err := svc.ExportXLSX(ctx, ""); err != nil {
		t.Errorf("ExportXLSX() error = %v", err)
	}
}

func TestService_ExportStorageFailure(t *testing.T) {
	store := memory.New()
	store.FailOn("query", errors.New("connection refused"))
	svc := newService(t, store, &fakeFetcher{})

	if _, err := svc.ExportCSV(context.Background(), ""); !errors.Is(err, core.ErrStorageFailure) {
		t.Errorf("ExportCSV() error = %v, want ErrStorageFailure", err)
	}
	if _, err := svc.ListIndices(context.Background()); !errors.Is(err, core.ErrStorageFailure) {
		t.Errorf("ListIndices() error = %v, want ErrStorageFailure", err)
	}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	if _, err := core.NewService(nil, &fakeFetcher{}, core.ServiceConfig{}); err == nil {
		t.Error("NewService(nil store) should fail")
	}
	if _, err := core.NewService(memory.New(), nil, core.ServiceConfig{}); err == nil {
		t.Error("NewService(nil fetcher) should fail")
	}
}
