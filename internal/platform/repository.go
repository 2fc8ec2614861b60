package platform

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntryRepository persists config entries.
type EntryRepository interface {
	// List returns all entries ordered by creation time.
	List(ctx context.Context) ([]Entry, error)

	// Get returns one entry. Returns ErrEntryNotFound if absent.
	Get(ctx context.Context, id string) (*Entry, error)

	// Create inserts an entry. Returns ErrEntryExists on ID collision.
	Create(ctx context.Context, e *Entry) error

	// Delete removes an entry. Returns ErrEntryNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// SQLiteEntryRepository implements EntryRepository on the config_entries table.
type SQLiteEntryRepository struct {
	db *sql.DB
}

// NewSQLiteEntryRepository creates a repository over an open, migrated database.
func NewSQLiteEntryRepository(db *sql.DB) *SQLiteEntryRepository {
	return &SQLiteEntryRepository{db: db}
}

// List returns all entries ordered by creation time.
func (r *SQLiteEntryRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain, title, data, created_at, updated_at
		 FROM config_entries
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying config entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config entries: %w", err)
	}
	return entries, nil
}

// Get returns one entry.
func (r *SQLiteEntryRepository) Get(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, domain, title, data, created_at, updated_at
		 FROM config_entries
		 WHERE id = ?`, id)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// Create inserts an entry. Zero timestamps are set to now.
func (r *SQLiteEntryRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" || e.Domain == "" {
		return fmt.Errorf("entry id and domain are required")
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling entry data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO config_entries (id, domain, title, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Domain, e.Title, string(dataJSON),
		e.CreatedAt.UTC().Format(timestampLayout),
		e.UpdatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEntryExists
		}
		return fmt.Errorf("inserting config entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (r *SQLiteEntryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting config entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                    Entry
		dataJSON             string
		createdAt, updatedAt string
	)
	if err := s.Scan(&e.ID, &e.Domain, &e.Title, &dataJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning config entry: %w", err)
	}

	if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling entry data: %w", err)
	}

	var err error
	if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	e.State = EntryNotLoaded
	return &e, nil
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return ts, nil
}
