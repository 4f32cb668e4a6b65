package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence for device configuration records.
type Repository interface {
	// List returns every device ordered by ID.
	List(ctx context.Context) ([]Device, error)

	// ListPage returns one page ordered by ID plus the total row count.
	ListPage(ctx context.Context, offset, limit int) ([]Device, int, error)

	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// Create inserts a device. A zero ID is assigned by the database and
	// written back. Returns ErrDeviceExists on ID collision.
	Create(ctx context.Context, device *Device) error

	// Update replaces an existing device. Returns ErrDeviceNotFound if absent.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device. Returns ErrDeviceNotFound if absent.
	Delete(ctx context.Context, id int64) error
}

// SQLiteRepository implements Repository on the device_services table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open SQLite handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT id, proxy_host, proxy_port, controller_type, controller_host,
		controller_port, remark, enabled, created_by, created_at, updated_at
	FROM device_services`

// List returns every device ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+" ORDER BY id")
}

// ListPage returns devices[offset:offset+limit] and the total count.
func (r *SQLiteRepository) ListPage(ctx context.Context, offset, limit int) ([]Device, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM device_services").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting devices: %w", err)
	}

	devices, err := r.queryDevices(ctx, selectColumns+" ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return devices, total, nil
}

// GetByID returns the device with the given ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// Create inserts a device and fills in its ID and timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	var id any
	if device.ID != 0 {
		id = device.ID
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO device_services (
			id, proxy_host, proxy_port, controller_type, controller_host,
			controller_port, remark, enabled, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		device.Host,
		device.Port,
		device.ControllerType,
		device.ControllerHost,
		device.ControllerPort,
		nullableString(device.Remark),
		boolToInt(device.Enabled),
		device.CreatedBy,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	if device.ID == 0 {
		newID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading new device id: %w", err)
		}
		device.ID = newID
	}
	return nil
}

// Update replaces the mutable columns of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE device_services SET
			proxy_host = ?, proxy_port = ?, controller_type = ?, controller_host = ?,
			controller_port = ?, remark = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		device.Host,
		device.Port,
		device.ControllerType,
		device.ControllerHost,
		device.ControllerPort,
		nullableString(device.Remark),
		boolToInt(device.Enabled),
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRow(result)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_services WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
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

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var remark sql.NullString
	var enabled int
	var createdAt, updatedAt string

	if err := row.Scan(
		&d.ID, &d.Host, &d.Port, &d.ControllerType, &d.ControllerHost,
		&d.ControllerPort, &remark, &enabled, &d.CreatedBy, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	d.Remark = remark.String
	d.Enabled = enabled != 0
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by this package
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by this package
	return &d, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueConstraintError reports a SQLite primary key or unique violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY must be unique")
}
