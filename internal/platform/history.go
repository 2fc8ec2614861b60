package platform

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// History sources.
const (
	SourceSetup   = "setup"
	SourcePoll    = "poll"
	SourceCommand = "command"
	SourceRefresh = "refresh"
)

// HistoryRecord is one stored light state change.
type HistoryRecord struct {
	ID           int64     `json:"id"`
	UniqueID     string    `json:"unique_id"`
	EntryID      string    `json:"entry_id"`
	IsOn         *bool     `json:"is_on"`
	Brightness   *uint8    `json:"brightness"`
	Available    bool      `json:"available"`
	UpdateFailed bool      `json:"update_failed"`
	Source       string    `json:"source"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// HistoryRepository stores light state changes.
type HistoryRepository interface {
	Record(ctx context.Context, s LightState, source string) error
	List(ctx context.Context, uniqueID string, limit int) ([]HistoryRecord, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on light_state_history.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts a snapshot.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - s: Snapshot to persist; nil IsOn/Brightness are stored as NULL
//   - source: Origin of the change (setup, poll, command, refresh)
func (r *SQLiteHistoryRepository) Record(ctx context.Context, s LightState, source string) error {
	if s.UniqueID == "" {
		return fmt.Errorf("unique id is required")
	}

	var isOn, brightness sql.NullInt64
	if s.IsOn != nil {
		isOn = sql.NullInt64{Int64: boolToInt(*s.IsOn), Valid: true}
	}
	if s.Brightness != nil {
		brightness = sql.NullInt64{Int64: int64(*s.Brightness), Valid: true}
	}

	ts := s.LastUpdated
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO light_state_history
		 (unique_id, entry_id, is_on, brightness, available, update_failed, source, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UniqueID, s.EntryID, isOn, brightness,
		boolToInt(s.Available), boolToInt(s.UpdateFailed), source,
		ts.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting light state history: %w", err)
	}
	return nil
}

// List returns recent records for a light, newest first.
//
// Parameters:
//   - limit: Maximum records (default 50, max 500)
func (r *SQLiteHistoryRepository) List(ctx context.Context, uniqueID string, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, unique_id, entry_id, is_on, brightness, available, update_failed, source, recorded_at
		 FROM light_state_history
		 WHERE unique_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		uniqueID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying light state history: %w", err)
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0, limit)
	for rows.Next() {
		var (
			rec                   HistoryRecord
			isOn, brightness      sql.NullInt64
			available, updateFail int64
			recordedAt            string
		)
		if err := rows.Scan(&rec.ID, &rec.UniqueID, &rec.EntryID, &isOn, &brightness,
			&available, &updateFail, &rec.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning light state history: %w", err)
		}
		if isOn.Valid {
			on := isOn.Int64 != 0
			rec.IsOn = &on
		}
		if brightness.Valid {
			b := uint8(brightness.Int64)
			rec.Brightness = &b
		}
		rec.Available = available != 0
		rec.UpdateFailed = updateFail != 0
		if rec.RecordedAt, err = parseTimestamp(recordedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating light state history: %w", err)
	}
	return records, nil
}

// Prune deletes records older than olderThan.
//
// Returns:
//   - int64: Number of rows deleted
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM light_state_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting light state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
