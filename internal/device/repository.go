package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Repository defines device persistence.
// It allows a mock implementation in unit tests.
type Repository interface {
	// List returns all devices ordered by unit.
	List(ctx context.Context) ([]Device, error)

	// GetByUnit returns ErrDeviceNotFound when the unit is free.
	GetByUnit(ctx context.Context, unit int) (*Device, error)

	// GetByMAC returns ErrDeviceNotFound when no switch mirrors mac.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// Create returns ErrDeviceExists when the unit or MAC is taken.
	Create(ctx context.Context, device *Device) error

	// Update returns ErrDeviceNotFound when the unit does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete returns ErrDeviceNotFound when the unit does not exist.
	Delete(ctx context.Context, unit int) error

	// NextUnit returns max(unit)+1, never below FirstDeviceUnit.
	NextUnit(ctx context.Context) (int, error)

	// RecordEvent appends to the presence history.
	RecordEvent(ctx context.Context, event Event) error

	// History returns the newest events for mac, newest first.
	History(ctx context.Context, mac string, limit int) ([]Event, error)

	// PruneHistory deletes events older than olderThan.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `unit, mac, idx, name, kind, n_value, s_value, used, created_at, updated_at`

// List returns all devices ordered by unit.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY unit`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// GetByUnit retrieves a device by unit number.
func (r *SQLiteRepository) GetByUnit(ctx context.Context, unit int) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE unit = ?`, unit)
	return r.getOne(row, "unit")
}

// GetByMAC retrieves a device by hardware address.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE mac = ?`, mac)
	return r.getOne(row, "mac")
}

func (r *SQLiteRepository) getOne(row *sql.Row, by string) (*Device, error) {
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by %s: %w", by, err)
	}
	return d, nil
}

// Create inserts a new device. Timestamps are set on d.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - d: Device to insert; Validate must pass
//
// Returns:
//   - error: ErrInvalidDevice, ErrDeviceExists, or the database error
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (unit, mac, idx, name, kind, n_value, s_value, used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Unit,
		nullableString(d.MAC),
		d.Idx,
		d.Name,
		string(d.Kind),
		d.NValue,
		d.SValue,
		boolToInt(d.Used),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

// Update writes all mutable fields of d, keyed by unit.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			mac = ?, idx = ?, name = ?, kind = ?, n_value = ?, s_value = ?, used = ?, updated_at = ?
		WHERE unit = ?`,
		nullableString(d.MAC),
		d.Idx,
		d.Name,
		string(d.Kind),
		d.NValue,
		d.SValue,
		boolToInt(d.Used),
		now.Format(time.RFC3339),
		d.Unit,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	d.UpdatedAt = now
	return nil
}

// Delete removes the device with the given unit.
func (r *SQLiteRepository) Delete(ctx context.Context, unit int) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE unit = ?", unit)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// NextUnit returns the unit for the next presence switch.
func (r *SQLiteRepository) NextUnit(ctx context.Context) (int, error) {
	var highest int
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(unit), 0) FROM devices").Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("querying highest unit: %w", err)
	}
	return max(highest+1, FirstDeviceUnit), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*Device, error) {
	var (
		d                    Device
		mac                  sql.NullString
		kind                 string
		used                 int
		createdAt, updatedAt string
	)
	if err := s.Scan(&d.Unit, &mac, &d.Idx, &d.Name, &kind, &d.NValue, &d.SValue, &used, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.MAC = mac.String
	d.Kind = Kind(kind)
	d.Used = used != 0

	var err error
	if d.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &d, nil
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return ts, nil
}

// nullableString stores "" as NULL so that the UNIQUE index on mac
// ignores the admin row.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique or primary
// key constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
