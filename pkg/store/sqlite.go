package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/gazepoint/pkg/calibration"
)

const schema = `
CREATE TABLE IF NOT EXISTS calibration_records (
	anchor     TEXT PRIMARY KEY,
	count      INTEGER NOT NULL,
	reserved   REAL NOT NULL DEFAULT 0,
	mean_dx    REAL NOT NULL,
	mean_dy    REAL NOT NULL,
	mean_width REAL NOT NULL
);
`

// SQLiteStore keeps one row per anchor.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save replaces every row with the records in set.
func (s *SQLiteStore) Save(ctx context.Context, set calibration.Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM calibration_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	for name, rec := range set {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO calibration_records (anchor, count, reserved, mean_dx, mean_dy, mean_width)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			name, rec.Count, rec.Reserved, rec.MeanDX, rec.MeanDY, rec.MeanWidth,
		)
		if err != nil {
			return fmt.Errorf("insert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns every stored record, or ErrNotFound if the table is empty.
func (s *SQLiteStore) Load(ctx context.Context) (calibration.Set, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT anchor, count, reserved, mean_dx, mean_dy, mean_width FROM calibration_records`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	set := calibration.Set{}
	for rows.Next() {
		var rec calibration.Record
		if err := rows.Scan(&rec.Anchor, &rec.Count, &rec.Reserved, &rec.MeanDX, &rec.MeanDY, &rec.MeanWidth); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		set[rec.Anchor] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	if len(set) == 0 {
		return nil, ErrNotFound
	}
	return set, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
