package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/pkg/jobs"
)

type flakySink struct {
	mu        sync.Mutex
	name      string
	failures  int
	delivered []models.AdmissionEvent
}

func (s *flakySink) Name() string { return s.name }

func (s *flakySink) Deliver(ctx context.Context, event models.AdmissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, event)
	return nil
}

func (s *flakySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

type capacityRecorder struct {
	mu      sync.Mutex
	reports []int
}

func (r *capacityRecorder) NotifyCapacityChanged(ctx context.Context, courseID string, takenSeats int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, takenSeats)
	return nil
}

func TestNotificationServiceRetriesFailingSink(t *testing.T) {
	sink := &flakySink{name: "flaky", failures: 2}
	metrics := NewMetricsService()
	svc := NewNotificationService(jobs.QueueConfig{Workers: 1, BufferSize: 8, MaxRetries: 3, RetryDelay: 10 * time.Millisecond}, nil, metrics, nil, sink, NewLogEventSink(nil))
	svc.Start(context.Background())
	defer svc.Stop()

	assert.Equal(t, []string{"flaky", "log"}, svc.Sinks())
	svc.Publish(context.Background(), models.AdmissionEvent{ID: "e1", Type: models.EventEnrollmentConfirmed, StudentID: "A", CourseID: "C1"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), metrics.Snapshot().NotificationsFailed)
}

func TestNotificationServiceDropsWhenQueueFull(t *testing.T) {
	sink := &flakySink{name: "slow"}
	metrics := NewMetricsService()
	svc := NewNotificationService(jobs.QueueConfig{Workers: 1, BufferSize: 1}, nil, metrics, nil, sink)

	// Not started: every publish is refused without blocking.
	svc.Publish(context.Background(),
		models.AdmissionEvent{ID: "e1", Type: models.EventWaitlisted},
		models.AdmissionEvent{ID: "e2", Type: models.EventWaitlisted},
	)
	assert.Equal(t, uint64(2), metrics.Snapshot().NotificationsFailed)
	assert.Zero(t, sink.count())
}

func TestNotificationServiceCollapsesCapacityReports(t *testing.T) {
	recorder := &capacityRecorder{}
	svc := NewNotificationService(jobs.QueueConfig{Workers: 1, BufferSize: 8}, recorder, nil, nil)

	svc.CapacityChanged(context.Background(), "C1", 4)
	svc.CapacityChanged(context.Background(), "C1", 5)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Type: jobTypeCapacitySync, Payload: "C1"}))
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Type: jobTypeCapacitySync, Payload: "C1"}))
	assert.Equal(t, []int{5, 5}, recorder.reports)

	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{Type: "unknown"}))
}
