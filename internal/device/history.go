package device

import (
	"context"
	"fmt"
	"time"
)

// eventTimeLayout is fixed width so that stored values sort as text.
const eventTimeLayout = "2006-01-02T15:04:05.000000Z"

// RecordEvent appends a presence transition.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - event: Transition to store; OccurredAt defaults to now, Source to "poll"
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordEvent(ctx context.Context, event Event) error {
	if event.MAC == "" {
		return fmt.Errorf("%w: event MAC is required", ErrInvalidDevice)
	}
	if event.Source == "" {
		event.Source = SourcePoll
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO presence_events (mac, name, present, source, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.MAC,
		event.Name,
		boolToInt(event.Present),
		event.Source,
		event.OccurredAt.UTC().Format(eventTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting presence event: %w", err)
	}
	return nil
}

// History returns the newest presence events for mac.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - mac: Hardware address
//   - limit: Maximum entries (defaults to 50, capped at 500)
//
// Returns:
//   - []Event: Newest first
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) History(ctx context.Context, mac string, limit int) ([]Event, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mac, name, present, source, occurred_at
		FROM presence_events
		WHERE mac = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`,
		mac, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying presence events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			present    int
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &e.MAC, &e.Name, &present, &e.Source, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning presence event: %w", err)
		}
		e.Present = present != 0
		if e.OccurredAt, err = time.Parse(eventTimeLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presence events: %w", err)
	}
	return events, nil
}

// PruneHistory deletes events older than olderThan.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(eventTimeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM presence_events WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting presence events: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}
