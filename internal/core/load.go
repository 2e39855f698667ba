package core

import (
	"context"
	"fmt"
)

// LoadResult reports what a replace wrote.
type LoadResult struct {
	Indices int
	Values  int
}

// Replace swaps the stored dataset for rows.
//
// Values are deleted before indices, then all indices are inserted in one
// batch and the returned ids are paired positionally with each row's value
// candidates for a second batch. When store implements Transactor, the whole
// sequence runs in one transaction. Otherwise a failure after the deletes
// leaves the store empty until the next successful replace.
func Replace(ctx context.Context, store Store, rows []NormalizedRow) (LoadResult, error) {
	if tx, ok := store.(Transactor); ok {
		var res LoadResult
		err := tx.InTx(ctx, func(s Store) error {
			var err error
			res, err = replace(ctx, s, rows)
			return err
		})
		if err != nil {
			return LoadResult{}, storageErr("replace", err)
		}
		return res, nil
	}
	return replace(ctx, store, rows)
}

func replace(ctx context.Context, store Store, rows []NormalizedRow) (LoadResult, error) {
	if err := store.DeleteAllValues(ctx); err != nil {
		return LoadResult{}, storageErr("delete values", err)
	}
	if err := store.DeleteAllIndices(ctx); err != nil {
		return LoadResult{}, storageErr("delete indices", err)
	}

	if len(rows) == 0 {
		return LoadResult{}, nil
	}

	records := make([]IndexRecord, len(rows))
	for i, r := range rows {
		records[i] = r.Record
	}

	ids, err := store.BulkInsertIndices(ctx, records)
	if err != nil {
		return LoadResult{}, storageErr("insert indices", err)
	}
	if len(ids) != len(records) {
		return LoadResult{}, storageErr("insert indices",
			fmt.Errorf("store returned %d ids for %d rows", len(ids), len(records)))
	}

	points := PairValues(ids, rows)
	if len(points) > 0 {
		if err := store.BulkInsertValues(ctx, points); err != nil {
			return LoadResult{}, storageErr("insert values", err)
		}
	}

	return LoadResult{Indices: len(ids), Values: len(points)}, nil
}

// PairValues builds the value points of rows, taking ids[i] as the id of rows[i].
// ids must have the same length as rows.
func PairValues(ids []IndexID, rows []NormalizedRow) []ValuePoint {
	n := 0
	for _, r := range rows {
		n += len(r.Values)
	}

	points := make([]ValuePoint, 0, n)
	for i, r := range rows {
		for _, v := range r.Values {
			points = append(points, ValuePoint{IndexID: ids[i], Year: v.Year, Value: v.Value})
		}
	}
	return points
}
