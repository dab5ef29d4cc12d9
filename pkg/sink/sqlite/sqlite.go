// Package sqlite stores finished tables in long format in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tlcaputi/gtrends/pkg/merge"
	"github.com/tlcaputi/gtrends/pkg/sink"
)

// Store is a sink.Sink backed by SQLite.
type Store struct {
	db *sql.DB
}

// Observation is one stored cell. Value is NULL for missing cells.
type Observation struct {
	Timestamp string
	Geography string
	Value     sql.NullFloat64
}

var _ sink.Sink = (*Store)(nil)

// New opens (and migrates) the database at path.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Write replaces every stored row of key with table in one transaction.
func (s *Store) Write(ctx context.Context, key sink.Key, table *merge.Table) (err error) {
	if err := key.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM interest_over_time WHERE name = ? AND granularity = ?`,
		key.Name, string(key.Granularity),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO interest_over_time (
			name, granularity, timestamp, geography, value, written_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, row := range table.Rows {
		ts := row.Time.Format(sink.TimestampLayout)
		for i, v := range row.Values {
			var value any
			if v.Valid {
				value = v.V
			}
			if _, err = stmt.ExecContext(ctx, key.Name, string(key.Granularity), ts, table.Columns[i], value, now); err != nil {
				return err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	sink.TablesWritten.WithLabelValues("sqlite").Inc()
	return nil
}

// Observations returns the stored cells of key ordered by timestamp and
// geography.
func (s *Store) Observations(ctx context.Context, key sink.Key) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, geography, value
		FROM interest_over_time
		WHERE name = ? AND granularity = ?
		ORDER BY timestamp, geography
	`, key.Name, string(key.Granularity))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Timestamp, &o.Geography, &o.Value); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interest_over_time (
			name TEXT NOT NULL,
			granularity TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			geography TEXT NOT NULL,
			value REAL,
			written_at TEXT NOT NULL,
			PRIMARY KEY (name, granularity, timestamp, geography)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
