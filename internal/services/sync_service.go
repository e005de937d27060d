package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldclock/agent/internal/models"
	"github.com/fieldclock/agent/internal/observability"
	"github.com/fieldclock/agent/internal/repository"
)

// Batch, retention and cleanup defaults, matching the tuning the queue was
// shipped with.
const (
	DefaultBatchSize     = 10
	DefaultRetentionDays = 7
	DefaultCleanupLimit  = 100
)

// DefaultPhotoPlaceholderURL is attached when no real upload service is
// wired, so a request body can always carry a photo reference.
const DefaultPhotoPlaceholderURL = "https://example.com/dummy.jpg"

// SyncOptions carries the sync engine collaborators and tuning knobs.
type SyncOptions struct {
	Connectivity  ConnectivityChecker
	Uploader      PhotoUploader
	Photos        PhotoStore
	Client        *http.Client
	Metrics       *observability.SyncMetrics
	BatchSize     int
	RetentionDays int
	CleanupLimit  int
}

// SyncService drives one synchronization pass over the durable queue:
// connectivity gate, token acquisition, sequential per-event submission,
// then garbage collection of old terminal rows. The engine is not
// re-entrant; the host must serialize pass invocations.
type SyncService struct {
	queue  *repository.QueueRepository
	creds  *repository.CredentialRepository
	tokens *TokenService

	connectivity ConnectivityChecker
	uploader     PhotoUploader
	photos       PhotoStore
	client       *http.Client
	metrics      *observability.SyncMetrics

	endpoints     Endpoints
	batchSize     int
	retentionDays int
	cleanupLimit  int
	logger        *observability.Logger
}

// NewSyncService creates a new SyncService
func NewSyncService(queue *repository.QueueRepository, creds *repository.CredentialRepository, tokens *TokenService, endpoints Endpoints, opts SyncOptions) *SyncService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.CleanupLimit <= 0 {
		opts.CleanupLimit = DefaultCleanupLimit
	}
	if opts.Connectivity == nil {
		opts.Connectivity = NewHTTPConnectivityChecker(endpoints.HealthURL())
	}
	if opts.Uploader == nil {
		opts.Uploader = &StaticPhotoUploader{URL: DefaultPhotoPlaceholderURL}
	}
	if opts.Photos == nil {
		opts.Photos = &LocalPhotoStore{}
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}

	return &SyncService{
		queue:         queue,
		creds:         creds,
		tokens:        tokens,
		connectivity:  opts.Connectivity,
		uploader:      opts.Uploader,
		photos:        opts.Photos,
		client:        opts.Client,
		metrics:       opts.Metrics,
		endpoints:     endpoints,
		batchSize:     opts.BatchSize,
		retentionDays: opts.RetentionDays,
		cleanupLimit:  opts.CleanupLimit,
		logger:        observability.GetLogger().WithField("component", "sync"),
	}
}

// Run executes one full sync pass and returns its summary. Pass-level
// failures (offline, no usable token) are reported in the summary without
// mutating any row; a non-nil error means the local store itself failed.
func (s *SyncService) Run(ctx context.Context) (*models.SyncResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "sync", "pass")
	defer span.End()

	start := time.Now()
	result := &models.SyncResult{}

	if !s.connectivity.Online(ctx) {
		result.LastError = models.ErrOffline.Error()
		s.logger.Debug("sync skipped: offline")
		return result, nil
	}

	if n, err := s.queue.RequeueInFlight(ctx); err != nil {
		observability.RecordError(span, err)
		return result, err
	} else if n > 0 {
		s.logger.Warnf("requeued %d events left in flight by an interrupted pass", n)
	}

	events, err := s.queue.SelectPending(ctx, s.batchSize)
	if err != nil {
		observability.RecordError(span, err)
		return result, err
	}

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		// Not the events' fault: report the rows as failed without touching
		// their status or retry count.
		result.Attempted = len(events)
		result.Failed = len(events)
		result.LastError = err.Error()
		s.logger.Warnf("sync pass aborted: %v", err)
		return result, nil
	}

	deviceID, err := s.creds.DeviceID(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return result, err
	}

	result.Attempted = len(events)
	for _, event := range events {
		// Submissions stay strictly sequential so the server observes the
		// same order the events were created in.
		if err := s.submit(ctx, event, &token, deviceID); err != nil {
			result.Failed++
			result.LastError = err.Error()
			continue
		}
		result.Succeeded++
	}

	s.cleanup(ctx)

	s.metrics.RecordPass(ctx, result.Attempted, result.Succeeded, result.Failed, time.Since(start))
	observability.SetSuccess(span)
	return result, nil
}

type clockPayload struct {
	EventID         string  `json:"clientEventId"`
	Mode            string  `json:"mode"`
	ClientTime      string  `json:"clientTime"`
	DeviceTimezone  string  `json:"deviceTz"`
	TzOffsetMinutes *int    `json:"tzOffsetMinutes"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Notes           string  `json:"notes,omitempty"`
	PhotoURL        string  `json:"photoUrl"`
	DeviceID        string  `json:"deviceId"`
}

// submit runs the per-event protocol to a terminal per-event outcome. A nil
// return means the event was handled (synced, or skipped as a server-detected
// duplicate); an error means the row was recorded FAILED and stays eligible
// for the next pass.
func (s *SyncService) submit(ctx context.Context, event *models.AttendanceEvent, token *string, deviceID string) error {
	ctx, span := observability.StartServiceSpan(ctx, "sync", "submit")
	span.SetAttributes(observability.EventID(event.EventID), observability.DeviceID(deviceID))
	defer span.End()

	logger := s.logger.WithField("event_id", event.EventID)

	if err := s.queue.Transition(ctx, event.EventID, models.StatusSyncing, ""); err != nil {
		// NotFound here is an invariant violation, not a retryable condition.
		logger.Errorf("cannot mark event in flight: %v", err)
		return err
	}

	photoURL := event.PhotoURL
	if photoURL == "" {
		uploaded, err := s.uploader.Upload(ctx, event.PhotoLocalPath)
		if err != nil {
			return s.fail(ctx, event, fmt.Sprintf("photo upload: %s", err))
		}
		if err := s.queue.AttachPhotoURL(ctx, event.EventID, uploaded); err != nil {
			return s.fail(ctx, event, fmt.Sprintf("attach photo url: %s", err))
		}
		photoURL = uploaded
	}

	payload := clockPayload{
		EventID:         event.EventID,
		Mode:            string(event.Mode),
		ClientTime:      event.ClientTime,
		DeviceTimezone:  event.DeviceTimezone,
		TzOffsetMinutes: event.TzOffsetMinutes,
		Latitude:        event.Latitude,
		Longitude:       event.Longitude,
		Notes:           event.Notes,
		PhotoURL:        photoURL,
		DeviceID:        deviceID,
	}

	status, detail, err := s.postClock(ctx, *token, payload)
	if err != nil {
		return s.fail(ctx, event, err.Error())
	}

	if status == http.StatusUnauthorized {
		// Exactly one refresh and one retry; a second rejection falls
		// through to the generic failure path.
		refreshed, refreshErr := s.tokens.Refresh(ctx)
		if refreshErr == nil {
			*token = refreshed
			status, detail, err = s.postClock(ctx, *token, payload)
			if err != nil {
				return s.fail(ctx, event, err.Error())
			}
		}
	}

	switch {
	case status >= 200 && status < 300:
		if err := s.queue.Transition(ctx, event.EventID, models.StatusSynced, ""); err != nil {
			logger.Errorf("cannot mark event synced: %v", err)
			return err
		}
		s.removePhoto(event)
		logger.Debug("event synced")
		return nil

	case status == http.StatusConflict:
		// The server already holds a clock event for this employee, mode and
		// day. Terminal: duplicates are never retried.
		if err := s.queue.Transition(ctx, event.EventID, models.StatusSkipped, fmt.Sprintf("409 %s", detail)); err != nil {
			logger.Errorf("cannot mark event skipped: %v", err)
			return err
		}
		s.removePhoto(event)
		logger.Infof("event skipped: duplicate for day")
		return nil

	default:
		return s.fail(ctx, event, fmt.Sprintf("%d %s", status, detail))
	}
}

func (s *SyncService) postClock(ctx context.Context, token string, payload clockPayload) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoints.ClockURL(), bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("clock request: %w", err)
	}
	defer resp.Body.Close()

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, string(detail), nil
}

// fail records the event FAILED with the error detail. The local photo is
// kept: it is still needed for the next retry.
func (s *SyncService) fail(ctx context.Context, event *models.AttendanceEvent, detail string) error {
	if err := s.queue.Transition(ctx, event.EventID, models.StatusFailed, detail); err != nil {
		s.logger.WithField("event_id", event.EventID).Errorf("cannot record failure: %v", err)
		return err
	}
	return fmt.Errorf("event %s: %s", event.EventID, detail)
}

// cleanup garbage-collects terminal rows older than the retention window.
// Photo removal is best effort and always precedes the row delete.
func (s *SyncService) cleanup(ctx context.Context) {
	rows, err := s.queue.SelectTerminalOlderThan(ctx, s.retentionDays, s.cleanupLimit)
	if err != nil {
		s.logger.Errorf("cleanup selection failed: %v", err)
		return
	}

	removed := 0
	for _, row := range rows {
		s.removePhoto(row)
		if err := s.queue.Delete(ctx, row.EventID); err != nil {
			s.logger.WithField("event_id", row.EventID).Errorf("cleanup delete failed: %v", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Infof("cleanup removed %d terminal events", removed)
		s.metrics.RecordCleanup(ctx, removed)
	}
}

func (s *SyncService) removePhoto(event *models.AttendanceEvent) {
	if err := s.photos.Remove(event.PhotoLocalPath); err != nil {
		s.logger.WithField("event_id", event.EventID).Warnf("photo delete failed: %v", err)
	}
}
