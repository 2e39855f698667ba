package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

// recordingStore is a minimal Store that logs calls and can be told to fail.
type recordingStore struct {
	calls   []string
	indices []IndexRecord
	points  []ValuePoint

	failOn   string
	shortIDs bool
}

var errInjected = errors.New("injected failure")

func (s *recordingStore) Query(ctx context.Context) (Dataset, error) {
	s.calls = append(s.calls, "query")
	if s.failOn == "query" {
		return nil, errInjected
	}
	return nil, nil
}

func (s *recordingStore) DeleteAllValues(ctx context.Context) error {
	s.calls = append(s.calls, "delete_values")
	if s.failOn == "delete_values" {
		return errInjected
	}
	s.points = nil
	return nil
}

func (s *recordingStore) DeleteAllIndices(ctx context.Context) error {
	s.calls = append(s.calls, "delete_indices")
	if s.failOn == "delete_indices" {
		return errInjected
	}
	s.indices = nil
	return nil
}

func (s *recordingStore) BulkInsertIndices(ctx context.Context, rows []IndexRecord) ([]IndexID, error) {
	s.calls = append(s.calls, "insert_indices")
	if s.failOn == "insert_indices" {
		return nil, errInjected
	}
	ids := make([]IndexID, len(rows))
	for i, r := range rows {
		r.ID = uuid.New()
		ids[i] = r.ID
		s.indices = append(s.indices, r)
	}
	if s.shortIDs {
		return ids[:len(ids)-1], nil
	}
	return ids, nil
}

func (s *recordingStore) BulkInsertValues(ctx context.Context, points []ValuePoint) error {
	s.calls = append(s.calls, "insert_values")
	if s.failOn == "insert_values" {
		return errInjected
	}
	s.points = append(s.points, points...)
	return nil
}

// txRecordingStore adds InTx with snapshot rollback.
type txRecordingStore struct {
	recordingStore
	txCount int
}

func (s *txRecordingStore) InTx(ctx context.Context, fn func(Store) error) error {
	s.txCount++
	indices, points := s.indices, s.points
	if err := fn(&s.recordingStore); err != nil {
		s.indices, s.points = indices, points
		return err
	}
	return nil
}

func normalizedRows() []NormalizedRow {
	return []NormalizedRow{
		{Record: IndexRecord{Label: "IPAMPA B", IDBank: "2"}, Values: []YearValue{{2020, 1}, {2021, 2}}},
		{Record: IndexRecord{Label: "IPAMPA A", IDBank: "1"}},
		{Record: IndexRecord{Label: "IPAMPA A", IDBank: "1"}, Values: []YearValue{{2020, 3}}},
	}
}

func TestReplace_OrderAndPairing(t *testing.T) {
	store := &recordingStore{}
	res, err := Replace(context.Background(), store, normalizedRows())
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	wantCalls := []string{"delete_values", "delete_indices", "insert_indices", "insert_values"}
	if !reflect.DeepEqual(store.calls, wantCalls) {
		t.Errorf("calls = %v, want %v", store.calls, wantCalls)
	}
	if res.Indices != 3 || res.Values != 3 {
		t.Errorf("Replace() = %+v, want 3 indices and 3 values", res)
	}

	// Identical label and idBank still get distinct ids and their own values.
	if store.indices[1].ID == store.indices[2].ID {
		t.Error("duplicate rows share an id")
	}
	want := []ValuePoint{
		{IndexID: store.indices[0].ID, Year: 2020, Value: 1},
		{IndexID: store.indices[0].ID, Year: 2021, Value: 2},
		{IndexID: store.indices[2].ID, Year: 2020, Value: 3},
	}
	if !reflect.DeepEqual(store.points, want) {
		t.Errorf("points = %v, want %v", store.points, want)
	}
}

func TestReplace_NoRowsClearsStore(t *testing.T) {
	store := &recordingStore{
		indices: []IndexRecord{{Label: "old"}},
		points:  []ValuePoint{{Year: 2000}},
	}
	res, err := Replace(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if res.Indices != 0 {
		t.Errorf("Indices = %d, want 0", res.Indices)
	}
	if len(store.indices) != 0 || len(store.points) != 0 {
		t.Errorf("store not empty: %d indices, %d points", len(store.indices), len(store.points))
	}
	if want := []string{"delete_values", "delete_indices"}; !reflect.DeepEqual(store.calls, want) {
		t.Errorf("calls = %v, want %v", store.calls, want)
	}
}

func TestReplace_Failures(t *testing.T) {
	for _, op := range []string{"delete_values", "delete_indices", "insert_indices", "insert_values"} {
		t.Run(op, func(t *testing.T) {
			store := &recordingStore{failOn: op}
			_, err := Replace(context.Background(), store, normalizedRows())
			if !errors.Is(err, ErrStorageFailure) {
				t.Errorf("Replace() error = %v, want ErrStorageFailure", err)
			}
			if !errors.Is(err, errInjected) {
				t.Errorf("Replace() error = %v, want the store error kept", err)
			}
			if got := store.calls[len(store.calls)-1]; got != op {
				t.Errorf("last call = %q, want %q (no steps after the failure)", got, op)
			}
		})
	}
}

func TestReplace_IDCountMismatch(t *testing.T) {
	store := &recordingStore{shortIDs: true}
	_, err := Replace(context.Background(), store, normalizedRows())
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("Replace() error = %v, want ErrStorageFailure", err)
	}
	for _, c := range store.calls {
		if c == "insert_values" {
			t.Error("values inserted despite id count mismatch")
		}
	}
}

func TestReplace_TransactionRollsBack(t *testing.T) {
	old := []IndexRecord{{Label: "IPAMPA Old"}}
	store := &txRecordingStore{recordingStore: recordingStore{indices: old, failOn: "insert_values"}}

	_, err := Replace(context.Background(), store, normalizedRows())
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("Replace() error = %v, want ErrStorageFailure", err)
	}
	if store.txCount != 1 {
		t.Errorf("InTx called %d times, want 1", store.txCount)
	}
	if !reflect.DeepEqual(store.indices, old) {
		t.Errorf("indices after rollback = %v, want %v", store.indices, old)
	}
}

func TestPairValues(t *testing.T) {
	ids := []IndexID{uuid.New(), uuid.New()}
	rows := []NormalizedRow{
		{Values: []YearValue{{2020, 1}}},
		{Values: []YearValue{{2019, 2}, {2020, 3}}},
	}

	got := PairValues(ids, rows)
	want := []ValuePoint{
		{IndexID: ids[0], Year: 2020, Value: 1},
		{IndexID: ids[1], Year: 2019, Value: 2},
		{IndexID: ids[1], Year: 2020, Value: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PairValues() = %v, want %v", got, want)
	}
}
