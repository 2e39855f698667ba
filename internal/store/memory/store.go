// Package memory provides an in-memory core.Store for tests, demos and the
// CLI when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ipampa/internal/core"
)

type valueKey struct {
	index core.IndexID
	year  int
}

// state is the stored dataset. Methods assume the caller holds the lock.
type state struct {
	indices []core.IndexRecord
	byID    map[core.IndexID]int
	values  map[valueKey]float64
}

func newState() *state {
	return &state{
		byID:   make(map[core.IndexID]int),
		values: make(map[valueKey]float64),
	}
}

func (st *state) clone() *state {
	c := &state{
		indices: append([]core.IndexRecord(nil), st.indices...),
		byID:    make(map[core.IndexID]int, len(st.byID)),
		values:  make(map[valueKey]float64, len(st.values)),
	}
	for k, v := range st.byID {
		c.byID[k] = v
	}
	for k, v := range st.values {
		c.values[k] = v
	}
	return c
}

// Store is a core.Store and core.Transactor backed by maps.
// It enforces the same constraints as the SQL schema: values must reference
// an existing index, at most one value per (index, year), and indices cannot
// be deleted while values reference them.
type Store struct {
	mu sync.RWMutex
	st *state

	// failOn makes the named operation fail; used by tests.
	failOn map[string]error
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// FailOn makes every later call of op return err. Valid ops are "query",
// "delete_values", "delete_indices", "insert_indices" and "insert_values".
// A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == nil {
		s.failOn = make(map[string]error)
	}
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

func (s *Store) failure(op string) error {
	return s.failOn[op]
}

// Query returns every index with its values ordered by year, indices ordered by label.
func (s *Store) Query(ctx context.Context) (core.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("query"); err != nil {
		return nil, err
	}
	return s.st.dataset(), nil
}

func (s *Store) DeleteAllValues(ctx context.Context) error {
	return s.write(func(tx *txStore) error { return tx.DeleteAllValues(ctx) })
}

func (s *Store) DeleteAllIndices(ctx context.Context) error {
	return s.write(func(tx *txStore) error { return tx.DeleteAllIndices(ctx) })
}

// BulkInsertIndices assigns a new random id to each row, in input order.
func (s *Store) BulkInsertIndices(ctx context.Context, rows []core.IndexRecord) ([]core.IndexID, error) {
	var ids []core.IndexID
	err := s.write(func(tx *txStore) error {
		var err error
		ids, err = tx.BulkInsertIndices(ctx, rows)
		return err
	})
	return ids, err
}

func (s *Store) BulkInsertValues(ctx context.Context, points []core.ValuePoint) error {
	return s.write(func(tx *txStore) error { return tx.BulkInsertValues(ctx, points) })
}

// InTx runs fn against a copy of the dataset and publishes the copy only if
// fn succeeds. Transactions are serialized with every other write.
func (s *Store) InTx(ctx context.Context, fn func(core.Store) error) error {
	return s.write(func(tx *txStore) error {
		if err := fn(tx); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// write runs fn under the write lock against a copy of the state and
// commits the copy when fn succeeds.
func (s *Store) write(fn func(*txStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{st: s.st.clone(), failure: s.failure}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Len returns the number of stored indices and values.
func (s *Store) Len() (indices, values int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.indices), len(s.st.values)
}

// txStore is the core.Store handed to InTx callbacks. It is only used while
// the owning Store's write lock is held.
type txStore struct {
	st      *state
	failure func(op string) error
}

func (t *txStore) Query(ctx context.Context) (core.Dataset, error) {
	if err := t.failure("query"); err != nil {
		return nil, err
	}
	return t.st.dataset(), nil
}

func (t *txStore) DeleteAllValues(ctx context.Context) error {
	if err := t.failure("delete_values"); err != nil {
		return err
	}
	t.st.values = make(map[valueKey]float64)
	return nil
}

func (t *txStore) DeleteAllIndices(ctx context.Context) error {
	if err := t.failure("delete_indices"); err != nil {
		return err
	}
	if len(t.st.values) > 0 {
		return fmt.Errorf("delete indices: %d values still reference them", len(t.st.values))
	}
	t.st.indices = nil
	t.st.byID = make(map[core.IndexID]int)
	return nil
}

func (t *txStore) BulkInsertIndices(ctx context.Context, rows []core.IndexRecord) ([]core.IndexID, error) {
	if err := t.failure("insert_indices"); err != nil {
		return nil, err
	}
	ids := make([]core.IndexID, len(rows))
	for i, r := range rows {
		r.ID = uuid.New()
		ids[i] = r.ID
		t.st.byID[r.ID] = len(t.st.indices)
		t.st.indices = append(t.st.indices, r)
	}
	return ids, nil
}

func (t *txStore) BulkInsertValues(ctx context.Context, points []core.ValuePoint) error {
	if err := t.failure("insert_values"); err != nil {
		return err
	}
	for _, p := range points {
		if _, ok := t.st.byID[p.IndexID]; !ok {
			return fmt.Errorf("insert value: index %s does not exist", p.IndexID)
		}
		k := valueKey{index: p.IndexID, year: p.Year}
		if _, dup := t.st.values[k]; dup {
			return fmt.Errorf("insert value: duplicate year %d for index %s", p.Year, p.IndexID)
		}
		t.st.values[k] = p.Value
	}
	return nil
}

func (st *state) dataset() core.Dataset {
	byIndex := make(map[core.IndexID][]core.ValuePoint, len(st.indices))
	for k, v := range st.values {
		byIndex[k.index] = append(byIndex[k.index], core.ValuePoint{IndexID: k.index, Year: k.year, Value: v})
	}

	ds := make(core.Dataset, len(st.indices))
	for i, rec := range st.indices {
		points := byIndex[rec.ID]
		sort.Slice(points, func(a, b int) bool { return points[a].Year < points[b].Year })
		ds[i] = core.IndexSeries{IndexRecord: rec, Values: points}
	}
	sort.SliceStable(ds, func(a, b int) bool { return ds[a].Label < ds[b].Label })
	return ds
}
