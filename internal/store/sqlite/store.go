// Package sqlite implements core.Store on an embedded SQLite database using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/ipampa/internal/core"
)

//go:embed schema.sql
var schemaSQL string

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store is a core.Store backed by a SQLite file.
type Store struct {
	db *sql.DB
	q  dbtx
	tx *sql.Tx
}

// Open opens (creating if needed) the database at path and applies the schema.
// Foreign keys are enforced and writers wait up to five seconds on a locked
// database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serializes writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, q: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const queryDataset = `
SELECT i.id, i.label, i.id_bank, i.last_update, i.period, v.year, v.value
FROM ipampa_indices i
LEFT JOIN ipampa_values v ON v.index_id = i.id
ORDER BY i.label, i.rowid, v.year`

// Query returns every index outer-joined with its values.
func (s *Store) Query(ctx context.Context) (core.Dataset, error) {
	rows, err := s.q.QueryContext(ctx, queryDataset)
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	defer rows.Close()

	var ds core.Dataset
	for rows.Next() {
		var (
			rawID string
			rec   core.IndexRecord
			year  sql.NullInt64
			value sql.NullFloat64
		)
		if err := rows.Scan(&rawID, &rec.Label, &rec.IDBank, &rec.LastUpdate, &rec.Period, &year, &value); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		rec.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: bad id %q: %w", rawID, err)
		}

		if n := len(ds); n == 0 || ds[n-1].ID != rec.ID {
			ds = append(ds, core.IndexSeries{IndexRecord: rec})
		}
		if year.Valid && value.Valid {
			last := &ds[len(ds)-1]
			last.Values = append(last.Values, core.ValuePoint{
				IndexID: rec.ID,
				Year:    int(year.Int64),
				Value:   value.Float64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	return ds, nil
}

func (s *Store) DeleteAllValues(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM ipampa_values`); err != nil {
		return fmt.Errorf("delete values: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllIndices(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM ipampa_indices`); err != nil {
		return fmt.Errorf("delete indices: %w", err)
	}
	return nil
}

// BulkInsertIndices inserts rows through one prepared statement and returns
// their new ids in input order.
func (s *Store) BulkInsertIndices(ctx context.Context, rows []core.IndexRecord) ([]core.IndexID, error) {
	ids := make([]core.IndexID, len(rows))
	err := s.batch(ctx, `INSERT INTO ipampa_indices (id, label, id_bank, last_update, period) VALUES (?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for i, r := range rows {
				ids[i] = uuid.New()
				if _, err := stmt.ExecContext(ctx, ids[i].String(), r.Label, r.IDBank, r.LastUpdate, r.Period); err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("insert indices: %w", err)
	}
	return ids, nil
}

// BulkInsertValues inserts points through one prepared statement.
func (s *Store) BulkInsertValues(ctx context.Context, points []core.ValuePoint) error {
	err := s.batch(ctx, `INSERT INTO ipampa_values (index_id, year, value) VALUES (?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for i, p := range points {
				if _, err := stmt.ExecContext(ctx, p.IndexID.String(), p.Year, p.Value); err != nil {
					return fmt.Errorf("point %d: %w", i, err)
				}
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("insert values: %w", err)
	}
	return nil
}

// batch prepares query and runs fn with it. Outside a transaction, the batch
// gets its own so that it is all-or-nothing.
func (s *Store) batch(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	if s.tx != nil {
		return runPrepared(ctx, s.tx, query, fn)
	}
	return s.InTx(ctx, func(st core.Store) error {
		return runPrepared(ctx, st.(*Store).tx, query, fn)
	})
}

func runPrepared(ctx context.Context, q dbtx, query string, fn func(*sql.Stmt) error) error {
	stmt, err := q.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	return fn(stmt)
}

// InTx runs fn in a transaction, committing only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(core.Store) error) error {
	if s.tx != nil {
		return errors.New("sqlite: nested transaction")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	if err := fn(&Store{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
