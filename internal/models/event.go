package models

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the direction of a clock action.
type Mode string

const (
	ModeIn  Mode = "IN"
	ModeOut Mode = "OUT"
)

// Valid reports whether m is a known clock mode.
func (m Mode) Valid() bool {
	return m == ModeIn || m == ModeOut
}

// Status is the sync lifecycle state of a queued event.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSyncing Status = "SYNCING"
	StatusSynced  Status = "SYNCED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSynced, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Terminal reports whether s is a final state eligible for garbage collection.
func (s Status) Terminal() bool {
	return s == StatusSynced || s == StatusSkipped
}

// CanTransitionTo encodes the queue state machine. PENDING and FAILED rows
// enter SYNCING when a pass picks them up; a SYNCING row resolves to SYNCED,
// SKIPPED or FAILED, or returns to PENDING when an interrupted pass is
// recovered. Terminal states never transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending, StatusFailed:
		return next == StatusSyncing
	case StatusSyncing:
		return next == StatusSynced || next == StatusSkipped || next == StatusFailed || next == StatusPending
	case StatusSynced, StatusSkipped:
		return false
	}
	return false
}

// CreatedAtFormat is a fixed-width UTC timestamp layout so that lexicographic
// ordering of the stored created_at column matches chronological ordering.
const CreatedAtFormat = "2006-01-02T15:04:05.000Z"

// AttendanceEvent is one queued clock action. EventID is generated once at
// creation and is the idempotency key the server uses to detect duplicate
// submissions; it is never regenerated across retries.
type AttendanceEvent struct {
	EventID         string
	EmployeeID      string
	Mode            Mode
	ClientTime      string
	DeviceTimezone  string
	TzOffsetMinutes *int
	Latitude        float64
	Longitude       float64
	Notes           string
	PhotoLocalPath  string
	PhotoURL        string
	Status          Status
	RetryCount      int
	LastError       string
	CreatedAt       time.Time
}

// NewAttendanceEvent validates the caller-supplied fields and builds a fresh
// PENDING event with a new event id.
func NewAttendanceEvent(employeeID string, mode Mode, clientTime, deviceTimezone string, tzOffsetMinutes *int, latitude, longitude float64, notes, photoLocalPath string) (*AttendanceEvent, error) {
	if employeeID == "" {
		return nil, ErrEmptyEmployeeID
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if clientTime == "" {
		return nil, ErrEmptyClientTime
	}
	if deviceTimezone == "" {
		return nil, ErrEmptyTimezone
	}
	if photoLocalPath == "" {
		return nil, ErrMissingPhoto
	}

	return &AttendanceEvent{
		EventID:         uuid.New().String(),
		EmployeeID:      employeeID,
		Mode:            mode,
		ClientTime:      clientTime,
		DeviceTimezone:  deviceTimezone,
		TzOffsetMinutes: tzOffsetMinutes,
		Latitude:        latitude,
		Longitude:       longitude,
		Notes:           notes,
		PhotoLocalPath:  photoLocalPath,
		Status:          StatusPending,
		RetryCount:      0,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// Queue errors
var (
	ErrEmptyEmployeeID   = QueueError{"employee id cannot be empty"}
	ErrInvalidMode       = QueueError{"mode must be IN or OUT"}
	ErrEmptyClientTime   = QueueError{"client time cannot be empty"}
	ErrEmptyTimezone     = QueueError{"device timezone cannot be empty"}
	ErrMissingPhoto      = QueueError{"photo local path cannot be empty"}
	ErrDuplicateEvent    = QueueError{"event id already queued"}
	ErrEventNotFound     = QueueError{"queued event not found"}
	ErrInvalidTransition = QueueError{"status transition not allowed"}
	ErrAlreadyClocked    = QueueError{"a clock event already exists for this employee, mode and day"}
	ErrOffline           = QueueError{"offline"}
)

type QueueError struct {
	Message string
}

func (e QueueError) Error() string {
	return e.Message
}
