package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/pkg/jobs"
)

const (
	jobTypeEvent        = "admission_event"
	jobTypeCapacitySync = "capacity_sync"
	capacitySinkName    = "course_directory"
)

// EventSink receives admission events after commit.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, event models.AdmissionEvent) error
}

type capacitySyncer interface {
	NotifyCapacityChanged(ctx context.Context, courseID string, takenSeats int) error
}

type eventDelivery struct {
	Sink  string
	Event models.AdmissionEvent
}

// NotificationService delivers events and capacity reports off the admission
// path. Publishing never blocks; a full queue drops the job and counts it.
type NotificationService struct {
	queue    *jobs.Queue
	sinks    map[string]EventSink
	order    []string
	capacity capacitySyncer
	metrics  *MetricsService
	logger   *zap.Logger
	timeout  time.Duration

	mu     sync.Mutex
	latest map[string]int
}

// NewNotificationService builds the service and its worker queue. capacity may be nil.
func NewNotificationService(queueCfg jobs.QueueConfig, capacity capacitySyncer, metrics *MetricsService, logger *zap.Logger, sinks ...EventSink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		sinks:    make(map[string]EventSink, len(sinks)),
		capacity: capacity,
		metrics:  metrics,
		logger:   logger,
		timeout:  5 * time.Second,
		latest:   make(map[string]int),
	}
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if _, dup := svc.sinks[sink.Name()]; dup {
			continue
		}
		svc.sinks[sink.Name()] = sink
		svc.order = append(svc.order, sink.Name())
	}
	queueCfg.Logger = logger
	svc.queue = jobs.NewQueue("admission-notifications", svc.Handle, queueCfg)
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the workers and waits for in-flight deliveries.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Sinks lists registered sink names in delivery order.
func (s *NotificationService) Sinks() []string {
	return append([]string(nil), s.order...)
}

// Publish queues one delivery job per (event, sink).
func (s *NotificationService) Publish(ctx context.Context, events ...models.AdmissionEvent) {
	for _, event := range events {
		for _, name := range s.order {
			job := jobs.Job{
				ID:      fmt.Sprintf("%s:%s", event.ID, name),
				Type:    jobTypeEvent,
				Payload: eventDelivery{Sink: name, Event: event},
			}
			if err := s.queue.TryEnqueue(job); err != nil {
				s.metrics.RecordNotification(name, err)
				s.logger.Warn("admission event not queued",
					zap.String("sink", name),
					zap.String("event_id", event.ID),
					zap.String("type", string(event.Type)),
					zap.Error(err))
			}
		}
	}
}

// CapacityChanged queues a capacity report. Reports for the same course
// collapse to the latest seat count.
func (s *NotificationService) CapacityChanged(ctx context.Context, courseID string, takenSeats int) {
	if s.capacity == nil {
		return
	}
	s.mu.Lock()
	s.latest[courseID] = takenSeats
	s.mu.Unlock()

	key := "capacity:" + courseID
	job := jobs.Job{ID: key, Key: key, Type: jobTypeCapacitySync, Payload: courseID}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.RecordNotification(capacitySinkName, err)
		s.logger.Warn("capacity report not queued", zap.String("course_id", courseID), zap.Error(err))
	}
}

// Handle executes a queued job. Returned errors are retried by the queue.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch job.Type {
	case jobTypeEvent:
		delivery, ok := job.Payload.(eventDelivery)
		if !ok {
			return nil
		}
		sink, ok := s.sinks[delivery.Sink]
		if !ok {
			return nil
		}
		err := sink.Deliver(ctx, delivery.Event)
		s.metrics.RecordNotification(delivery.Sink, err)
		return err
	case jobTypeCapacitySync:
		courseID, ok := job.Payload.(string)
		if !ok || s.capacity == nil {
			return nil
		}
		s.mu.Lock()
		taken := s.latest[courseID]
		s.mu.Unlock()
		err := s.capacity.NotifyCapacityChanged(ctx, courseID, taken)
		s.metrics.RecordNotification(capacitySinkName, err)
		return err
	default:
		s.logger.Warn("unknown notification job", zap.String("type", job.Type), zap.String("job_id", job.ID))
		return nil
	}
}

// LogEventSink writes admission events to the structured log.
type LogEventSink struct {
	logger *zap.Logger
}

// NewLogEventSink constructs a log sink.
func NewLogEventSink(logger *zap.Logger) *LogEventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventSink{logger: logger}
}

// Name implements EventSink.
func (s *LogEventSink) Name() string { return "log" }

// Deliver implements EventSink.
func (s *LogEventSink) Deliver(ctx context.Context, event models.AdmissionEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("student_id", event.StudentID),
		zap.String("course_id", event.CourseID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	s.logger.Info("admission event", fields...)
	return nil
}
