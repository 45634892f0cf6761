package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/support-triage/triage/internal/table"
)

// TableName is the table holding the processed emails; it is replaced on every run
const TableName = "processed_emails"

const rowColumn = "row_num"

// Store writes processed email tables to a SQLite database
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Replace drops the processed_emails table and recreates it from t in one transaction.
// Every column is TEXT; row_num keeps the source order.
func (s *Store) Replace(ctx context.Context, t *table.Table) error {
	columns := columnNames(t.Header)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(TableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c) + " TEXT NOT NULL DEFAULT ''"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s INTEGER PRIMARY KEY, %s)",
		quoteIdent(TableName), quoteIdent(rowColumn), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, %s)",
		quoteIdent(TableName), quoteIdent(rowColumn),
		strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		args := make([]any, 0, len(columns)+1)
		args = append(args, i+1)
		for j := range columns {
			var v string
			if j < len(row) {
				v = row[j]
			}
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load reads the processed_emails table back in row order
func (s *Store) Load(ctx context.Context) (*table.Table, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s",
		quoteIdent(TableName), quoteIdent(rowColumn)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", TableName, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 || cols[0] != rowColumn {
		return nil, fmt.Errorf("unexpected %s layout: %v", TableName, cols)
	}

	t := table.New(cols[1:])
	for rows.Next() {
		var rowNum int64
		values := make([]sql.NullString, len(cols)-1)
		dest := make([]any, 0, len(cols))
		dest = append(dest, &rowNum)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make([]string, len(values))
		for i, v := range values {
			row[i] = v.String
		}
		t.AddRow(row)
	}
	return t, rows.Err()
}

// Write replaces the processed_emails table in the database at path
func Write(ctx context.Context, path string, t *table.Table) error {
	s, err := NewStore(path)
	if err != nil {
		return err
	}
	if err := s.Replace(ctx, t); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

// columnNames makes header names usable as SQLite columns: blank names get a
// positional name and case-insensitive duplicates get a numeric suffix
func columnNames(header []string) []string {
	seen := map[string]bool{rowColumn: true}
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for n := 2; seen[strings.ToLower(name)]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		seen[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
