package services

import (
	"context"
	"fmt"

	"github.com/fieldclock/agent/internal/models"
	"github.com/fieldclock/agent/internal/repository"
)

// ClockService records a new clock event into the durable queue. This is the
// "submit clock event" action the presentation layer calls after acquiring a
// GPS fix and a photo.
type ClockService struct {
	queue *repository.QueueRepository
}

// NewClockService creates a new ClockService
func NewClockService(queue *repository.QueueRepository) *ClockService {
	return &ClockService{queue: queue}
}

// Clock validates the input, performs the advisory same-day duplicate check
// and enqueues a fresh PENDING event. The check is not transactional with the
// insert; the server-side 409 remains the authoritative duplicate guard.
func (s *ClockService) Clock(ctx context.Context, req models.ClockRequest) (*models.AttendanceEvent, error) {
	event, err := models.NewAttendanceEvent(
		req.EmployeeID,
		req.Mode,
		req.ClientTime,
		req.DeviceTimezone,
		req.TzOffsetMinutes,
		req.Latitude,
		req.Longitude,
		req.Notes,
		req.PhotoLocalPath,
	)
	if err != nil {
		return nil, err
	}

	existing, err := s.queue.FindExistingForDay(ctx, req.EmployeeID, req.Mode, req.ClientTime)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		return nil, models.ErrAlreadyClocked
	}

	if err := s.queue.Enqueue(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}
