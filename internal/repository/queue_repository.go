package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/fieldclock/agent/internal/models"
)

const eventColumns = `event_id, employee_id, mode, client_time, device_tz, tz_offset_minutes,
	latitude, longitude, notes, photo_local_path, photo_url, status, retry_count, last_error, created_at`

// QueueRepository is the only component that mutates the attendance queue.
// The sync engine never issues concurrent writes to the same row, so no
// locking beyond SQLite's own is needed here.
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a new PENDING event. Returns models.ErrDuplicateEvent when
// the event id already exists; callers are expected to generate fresh ids.
func (r *QueueRepository) Enqueue(ctx context.Context, event *models.AttendanceEvent) error {
	query := `INSERT INTO attendance_queue (
		event_id, employee_id, mode,
		client_time, device_tz, tz_offset_minutes,
		latitude, longitude, notes,
		photo_local_path, photo_url,
		status, retry_count, last_error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.EmployeeID,
		string(event.Mode),
		event.ClientTime,
		event.DeviceTimezone,
		nullableInt(event.TzOffsetMinutes),
		event.Latitude,
		event.Longitude,
		nullableString(event.Notes),
		event.PhotoLocalPath,
		nullableString(event.PhotoURL),
		string(models.StatusPending),
		event.CreatedAt.UTC().Format(models.CreatedAtFormat),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return models.ErrDuplicateEvent
		}
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Get returns the event with the given id, or nil when absent.
func (r *QueueRepository) Get(ctx context.Context, eventID string) (*models.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM attendance_queue WHERE event_id = ?`
	row := r.db.QueryRowContext(ctx, query, eventID)
	return scanEvent(row)
}

// FindExistingForDay returns the most recent non-SKIPPED event for the given
// employee, mode and local calendar day of clientTime, or nil. The check is
// advisory: it is not transactional with a subsequent Enqueue, and the server
// 409 response remains the authoritative duplicate guard.
func (r *QueueRepository) FindExistingForDay(ctx context.Context, employeeID string, mode models.Mode, clientTime string) (*models.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM attendance_queue
		WHERE employee_id = ?
		  AND mode = ?
		  AND status != ?
		  AND date(client_time, 'localtime') = date(?, 'localtime')
		ORDER BY created_at DESC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, employeeID, string(mode), string(models.StatusSkipped), clientTime)
	return scanEvent(row)
}

// SelectPending returns up to limit PENDING or FAILED events, oldest first.
func (r *QueueRepository) SelectPending(ctx context.Context, limit int) ([]*models.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM attendance_queue
		WHERE status IN (?, ?)
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, string(models.StatusPending), string(models.StatusFailed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Transition moves an event to a new status. FAILED increments retry_count
// and records the error detail; every other status clears last_error. The
// move must be allowed by the status state machine.
func (r *QueueRepository) Transition(ctx context.Context, eventID string, status models.Status, errDetail string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM attendance_queue WHERE event_id = ?`, eventID).Scan(&current)
	if err == sql.ErrNoRows {
		return models.ErrEventNotFound
	}
	if err != nil {
		return err
	}

	if !models.Status(current).CanTransitionTo(status) {
		return fmt.Errorf("%s -> %s: %w", current, status, models.ErrInvalidTransition)
	}

	if status == models.StatusFailed {
		_, err = tx.ExecContext(ctx,
			`UPDATE attendance_queue
			SET status = ?, retry_count = retry_count + 1, last_error = ?
			WHERE event_id = ?`,
			string(status), nullableString(errDetail), eventID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE attendance_queue
			SET status = ?, last_error = ?
			WHERE event_id = ?`,
			string(status), nullableString(errDetail), eventID)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// AttachPhotoURL records the remote photo reference for an event if it does
// not already have one. Idempotent across retries of the same event.
func (r *QueueRepository) AttachPhotoURL(ctx context.Context, eventID, url string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attendance_queue SET photo_url = ? WHERE event_id = ? AND photo_url IS NULL`,
		url, eventID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either the row is gone or the URL is already set; verify the row exists.
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM attendance_queue WHERE event_id = ?`, eventID).Scan(&one)
		if err == sql.ErrNoRows {
			return models.ErrEventNotFound
		}
		return err
	}
	return nil
}

// SelectTerminalOlderThan returns up to limit SYNCED or SKIPPED events whose
// client time falls before the retention window, oldest first.
func (r *QueueRepository) SelectTerminalOlderThan(ctx context.Context, retentionDays, limit int) ([]*models.AttendanceEvent, error) {
	if retentionDays < 1 {
		retentionDays = 1
	}
	if limit < 1 {
		limit = 1
	}

	query := `SELECT ` + eventColumns + `
		FROM attendance_queue
		WHERE status IN (?, ?)
		  AND date(client_time, 'localtime') < date('now', 'localtime', ?)
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query,
		string(models.StatusSynced), string(models.StatusSkipped),
		fmt.Sprintf("-%d day", retentionDays), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Delete permanently removes a queue row. The associated local photo must be
// removed before the row so that a crash between the two cannot orphan a file
// with no record pointing at it.
func (r *QueueRepository) Delete(ctx context.Context, eventID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_queue WHERE event_id = ?`, eventID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrEventNotFound
	}
	return nil
}

// LatestSyncedClockIn returns the most recent SYNCED clock-in for the given
// local calendar day, or nil. Read-only convenience for the presentation layer.
func (r *QueueRepository) LatestSyncedClockIn(ctx context.Context, employeeID string, day time.Time) (*models.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM attendance_queue
		WHERE employee_id = ?
		  AND mode = ?
		  AND status = ?
		  AND date(client_time, 'localtime') = ?
		ORDER BY client_time DESC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query,
		employeeID, string(models.ModeIn), string(models.StatusSynced),
		day.Format("2006-01-02"))
	return scanEvent(row)
}

// RequeueInFlight returns rows stuck in SYNCING to PENDING. A row can only be
// left SYNCING by a pass that died mid-event, so this runs at the start of
// each pass. Does not touch retry_count.
func (r *QueueRepository) RequeueInFlight(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attendance_queue SET status = ? WHERE status = ?`,
		string(models.StatusPending), string(models.StatusSyncing))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountByStatus returns the number of queued events per status.
func (r *QueueRepository) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM attendance_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.AttendanceEvent, error) {
	var event models.AttendanceEvent
	var mode, status, createdAt string
	var tzOffset sql.NullInt64
	var notes, photoURL, lastError sql.NullString

	err := row.Scan(
		&event.EventID, &event.EmployeeID, &mode,
		&event.ClientTime, &event.DeviceTimezone, &tzOffset,
		&event.Latitude, &event.Longitude, &notes,
		&event.PhotoLocalPath, &photoURL,
		&status, &event.RetryCount, &lastError, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event.Mode = models.Mode(mode)
	event.Status = models.Status(status)
	if tzOffset.Valid {
		v := int(tzOffset.Int64)
		event.TzOffsetMinutes = &v
	}
	event.Notes = notes.String
	event.PhotoURL = photoURL.String
	event.LastError = lastError.String

	event.CreatedAt, err = time.Parse(models.CreatedAtFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &event, nil
}

func collectEvents(rows *sql.Rows) ([]*models.AttendanceEvent, error) {
	var events []*models.AttendanceEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
