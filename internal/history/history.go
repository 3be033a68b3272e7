package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/upswatch/internal/upsd"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout has a fixed width so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrInvalidRetention is returned by Prune for a non-positive duration.
var ErrInvalidRetention = errors.New("history: retention must be positive")

// Entry is one stored event.
type Entry struct {
	ID string `json:"id"`
	upsd.Event
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Device string
	Kind   upsd.EventKind
	Since  time.Time

	// Limit caps the result (default 50, max 500).
	Limit int
}

// Repository stores events in the ups_events table.
//
// Thread Safety:
//   - Safe for concurrent use; serialisation is left to database/sql.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database that has the ups_events schema.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts ev with a fresh UUID. A zero ev.Time is stamped now.
func (r *Repository) Record(ctx context.Context, ev upsd.Event) (string, error) {
	if ev.Device == "" {
		return "", fmt.Errorf("history: event device is required")
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ups_events (id, kind, device, name, value, logins, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(ev.Kind), strings.ToLower(ev.Device), ev.Name, ev.Value, ev.Logins,
		ev.Time.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return id, nil
}

// List returns matching events, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	var (
		where []string
		args  []any
	)
	if f.Device != "" {
		where = append(where, "device = ?")
		args = append(args, strings.ToLower(f.Device))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}

	query := "SELECT id, kind, device, name, value, logins, created_at FROM ups_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e         Entry
			kind      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Device, &e.Name, &e.Value, &e.Logins, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = upsd.EventKind(kind)
		if e.Time, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return entries, nil
}

// Prune deletes events older than olderThan and returns how many went.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := r.db.ExecContext(ctx, "DELETE FROM ups_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
