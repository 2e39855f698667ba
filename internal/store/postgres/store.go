// Package postgres implements core.Store on PostgreSQL with pgx.
//
// Ids are generated client-side so that BulkInsertIndices can return them in
// input order while inserting with COPY. The replace runs in one transaction
// through InTx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/ipampa/internal/core"
)

//go:embed schema.sql
var schemaSQL string

const (
	indicesTable = "ipampa_indices"
	valuesTable  = "ipampa_values"
)

// DBTX is the subset of pgx shared by pools, connections and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is a core.Store backed by PostgreSQL.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a Store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return wrap("ensure schema", err)
	}
	return nil
}

const queryDataset = `
SELECT i.id, i.label, i.id_bank, i.last_update, i.period, v.year, v.value
FROM ipampa_indices i
LEFT JOIN ipampa_values v ON v.index_id = i.id
ORDER BY i.label, i.id, v.year`

// Query returns every index outer-joined with its values.
func (s *Store) Query(ctx context.Context) (core.Dataset, error) {
	rows, err := s.db.Query(ctx, queryDataset)
	if err != nil {
		return nil, wrap("query dataset", err)
	}
	defer rows.Close()

	var ds core.Dataset
	for rows.Next() {
		var (
			id    pgtype.UUID
			rec   core.IndexRecord
			year  pgtype.Int4
			value pgtype.Float8
		)
		if err := rows.Scan(&id, &rec.Label, &rec.IDBank, &rec.LastUpdate, &rec.Period, &year, &value); err != nil {
			return nil, wrap("scan dataset", err)
		}
		rec.ID = uuid.UUID(id.Bytes)

		if n := len(ds); n == 0 || ds[n-1].ID != rec.ID {
			ds = append(ds, core.IndexSeries{IndexRecord: rec})
		}
		if year.Valid && value.Valid {
			last := &ds[len(ds)-1]
			last.Values = append(last.Values, core.ValuePoint{
				IndexID: rec.ID,
				Year:    int(year.Int32),
				Value:   value.Float64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query dataset", err)
	}
	return ds, nil
}

func (s *Store) DeleteAllValues(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM "+valuesTable); err != nil {
		return wrap("delete values", err)
	}
	return nil
}

func (s *Store) DeleteAllIndices(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM "+indicesTable); err != nil {
		return wrap("delete indices", err)
	}
	return nil
}

// BulkInsertIndices copies rows in one COPY and returns their new ids in input order.
func (s *Store) BulkInsertIndices(ctx context.Context, rows []core.IndexRecord) ([]core.IndexID, error) {
	ids := make([]core.IndexID, len(rows))
	for i := range rows {
		ids[i] = uuid.New()
	}

	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{indicesTable},
		[]string{"id", "label", "id_bank", "last_update", "period"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{pgtype.UUID{Bytes: [16]byte(ids[i]), Valid: true}, r.Label, r.IDBank, r.LastUpdate, r.Period}, nil
		}),
	)
	if err != nil {
		return nil, wrap("copy indices", err)
	}
	if int(n) != len(rows) {
		return nil, fmt.Errorf("copy indices: wrote %d of %d rows", n, len(rows))
	}
	return ids, nil
}

// BulkInsertValues copies points in one COPY.
func (s *Store) BulkInsertValues(ctx context.Context, points []core.ValuePoint) error {
	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{valuesTable},
		[]string{"index_id", "year", "value"},
		pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
			p := points[i]
			return []any{pgtype.UUID{Bytes: [16]byte(p.IndexID), Valid: true}, int32(p.Year), p.Value}, nil
		}),
	)
	if err != nil {
		return wrap("copy values", err)
	}
	return nil
}

// InTx runs fn in a transaction, committing only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(core.Store) error) error {
	if s.pool == nil {
		return errors.New("postgres: nested transaction")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrap("begin transaction", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("commit", err)
	}
	return nil
}

// wrap annotates err with op and, for server errors, the SQLSTATE code.
func wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %s (SQLSTATE %s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
