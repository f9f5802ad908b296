package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-admission-api/internal/dto"
	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
	"github.com/noah-isme/course-admission-api/pkg/logger"
)

// Admission operation labels used in metrics and logs.
const (
	OperationEnroll      = "enroll"
	OperationDrop        = "drop"
	OperationSetCapacity = "set_capacity"
	OperationRead        = "read"
)

type admissionStore interface {
	EnsureCourse(ctx context.Context, courseID string) (bool, error)
	WithinCourse(ctx context.Context, courseID string, fn repository.CourseTxFunc) error
}

type courseInfoSource interface {
	GetCourse(ctx context.Context, courseID string) (*models.CourseInfo, error)
}

// CourseDirectory is the external source of course metadata.
type CourseDirectory interface {
	GetCourse(ctx context.Context, courseID string) (*models.CourseInfo, error)
	NotifyCapacityChanged(ctx context.Context, courseID string, takenSeats int) error
}

// StudentDirectory is the external source of student academic data.
type StudentDirectory interface {
	CompletedGrades(ctx context.Context, studentID string) ([]models.CompletedGrade, error)
	ActiveEnrollments(ctx context.Context, studentID string) ([]models.ActiveEnrollment, error)
	Holds(ctx context.Context, studentID string) ([]models.Hold, error)
}

type admissionNotifier interface {
	Publish(ctx context.Context, events ...models.AdmissionEvent)
	CapacityChanged(ctx context.Context, courseID string, takenSeats int)
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, ...models.AdmissionEvent) {}
func (noopNotifier) CapacityChanged(context.Context, string, int)     {}

// AdmissionServiceOption configures the service.
type AdmissionServiceOption func(*AdmissionService)

// WithAdmissionClock overrides the clock used for records, queue order and events.
func WithAdmissionClock(now func() time.Time) AdmissionServiceOption {
	return func(s *AdmissionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAdmissionNotifier sets the post-commit event and capacity sink.
func WithAdmissionNotifier(notifier admissionNotifier) AdmissionServiceOption {
	return func(s *AdmissionService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithAdmissionMetrics records decisions and section timings.
func WithAdmissionMetrics(metrics *MetricsService) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.metrics = metrics
	}
}

// WithValidationPipeline replaces the default rule set.
func WithValidationPipeline(pipeline *ValidationPipeline) AdmissionServiceOption {
	return func(s *AdmissionService) {
		if pipeline != nil {
			s.pipeline = pipeline
		}
	}
}

// AdmissionService admits, drops and promotes students. Every mutation of a
// course happens inside that course's exclusive section; events leave only
// after the section commits.
type AdmissionService struct {
	store     admissionStore
	courses   courseInfoSource
	students  StudentDirectory
	ledger    *CapacityLedger
	log       *EnrollmentLog
	waitlist  *WaitlistQueue
	pipeline  *ValidationPipeline
	notifier  admissionNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdmissionService constructs the admission controller.
func NewAdmissionService(store admissionStore, courses courseInfoSource, students StudentDirectory, validate *validator.Validate, logger *zap.Logger, opts ...AdmissionServiceOption) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AdmissionService{
		store:     store,
		courses:   courses,
		students:  students,
		notifier:  noopNotifier{},
		validator: validate,
		logger:    logger,
		now:       utcNow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.pipeline == nil {
		svc.pipeline = NewValidationPipeline()
	}
	svc.ledger = NewCapacityLedger(svc.now)
	svc.log = NewEnrollmentLog(svc.now)
	svc.waitlist = NewWaitlistQueue(svc.now)
	return svc
}

// sectionResult collects what a committed section must announce.
type sectionResult struct {
	events          []models.AdmissionEvent
	capacity        models.CourseCapacity
	capacityChanged bool
	promoted        []string
}

// Enroll admits the student, or waitlists them when the course is full.
func (s *AdmissionService) Enroll(ctx context.Context, req dto.EnrollRequest) (*models.EnrollmentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reqLogger := logger.FromContext(ctx, s.logger).With(zap.String("course_id", req.CourseID), zap.String("student_id", req.StudentID))

	var (
		course  *models.CourseInfo
		profile models.StudentProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, err := s.courses.GetCourse(gctx, req.CourseID)
		if err != nil {
			return directoryError(err, fmt.Sprintf("course %s", req.CourseID))
		}
		course = info
		return nil
	})
	g.Go(func() error {
		p, err := s.loadProfile(gctx, req.StudentID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err := g.Wait(); err != nil {
		s.metrics.RecordDecision(OperationEnroll, DecisionFailed)
		reqLogger.Warn("enroll snapshot failed", zap.Error(err))
		return nil, err
	}

	outcome := &models.EnrollmentOutcome{StudentID: req.StudentID, CourseID: req.CourseID}
	var result sectionResult
	err := s.withinCourse(ctx, OperationEnroll, req.CourseID, func(tx repository.CourseTx) error {
		result = sectionResult{}
		active, err := s.log.CurrentStatus(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		if active != nil {
			return appErrors.Clone(appErrors.ErrDuplicateEnrollment, fmt.Sprintf("student %s is already %s in course %s", req.StudentID, active.Status, req.CourseID))
		}

		if verdict := s.pipeline.Validate(profile, *course); !verdict.Valid {
			return appErrors.Clone(appErrors.ErrIneligible, verdict.Reason)
		}

		capacity, err := s.ledger.Reserve(ctx, tx)
		switch {
		case err == nil:
			rec, err := s.log.RecordEnroll(ctx, tx, req.StudentID)
			if err != nil {
				return err
			}
			outcome.Status = models.EnrollmentStatusEnrolled
			outcome.Record = rec
			result.capacity = capacity
			result.capacityChanged = true
			result.events = append(result.events, s.newEvent(models.EventEnrollmentConfirmed, req.StudentID, req.CourseID, ""))
		case errors.Is(err, appErrors.ErrCapacityExhausted):
			rec, err := s.log.RecordWaitlist(ctx, tx, req.StudentID)
			if err != nil {
				return err
			}
			if _, err := s.waitlist.Enqueue(ctx, tx, req.StudentID); err != nil {
				return err
			}
			position, err := s.waitlist.Position(ctx, tx, req.StudentID)
			if err != nil {
				return err
			}
			outcome.Status = models.EnrollmentStatusWaitlisted
			outcome.Record = rec
			outcome.WaitlistPosition = position
			result.capacity = capacity
			result.events = append(result.events, s.newEvent(models.EventWaitlisted, req.StudentID, req.CourseID, ""))
		default:
			return err
		}
		return nil
	})
	if err != nil {
		s.recordFailure(reqLogger, OperationEnroll, err)
		return nil, err
	}

	capacity := result.capacity
	outcome.Capacity = &capacity
	if outcome.Status == models.EnrollmentStatusEnrolled {
		s.metrics.RecordDecision(OperationEnroll, DecisionEnrolled)
	} else {
		s.metrics.RecordDecision(OperationEnroll, DecisionWaitlisted)
	}
	s.announce(ctx, req.CourseID, result)
	reqLogger.Info("enrollment decided", zap.String("status", string(outcome.Status)), zap.Int("waitlist_position", outcome.WaitlistPosition))
	return outcome, nil
}

// Drop withdraws the student. A freed seat is offered to the waitlist in
// FIFO order within the same section.
func (s *AdmissionService) Drop(ctx context.Context, req dto.DropRequest) (*models.EnrollmentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reqLogger := logger.FromContext(ctx, s.logger).With(zap.String("course_id", req.CourseID), zap.String("student_id", req.StudentID))

	outcome := &models.EnrollmentOutcome{StudentID: req.StudentID, CourseID: req.CourseID}
	var result sectionResult
	snap := newPromotionSnapshot(nil)
	err := s.withinPromotingCourse(ctx, OperationDrop, req.CourseID, snap, func(tx repository.CourseTx) error {
		result = sectionResult{}
		rec, prior, err := s.log.RecordDrop(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		outcome.Record = rec
		outcome.Status = models.EnrollmentStatusDropped
		result.events = append(result.events, s.newEvent(models.EventDropped, req.StudentID, req.CourseID, ""))

		switch prior {
		case models.EnrollmentStatusEnrolled:
			if _, err := s.ledger.Release(ctx, tx); err != nil {
				return err
			}
			result.capacityChanged = true
			if err := s.promote(ctx, tx, snap, &result); err != nil {
				return err
			}
		case models.EnrollmentStatusWaitlisted:
			removed, err := s.waitlist.Remove(ctx, tx, req.StudentID)
			if err != nil {
				return err
			}
			if !removed {
				return appErrors.Clone(appErrors.ErrInvariantViolation, fmt.Sprintf("waitlisted student %s missing from queue of %s", req.StudentID, req.CourseID))
			}
		}

		capacity, err := s.ledger.Snapshot(ctx, tx)
		if err != nil {
			return err
		}
		result.capacity = capacity
		return nil
	})
	if err != nil {
		s.recordFailure(reqLogger, OperationDrop, err)
		return nil, err
	}

	capacity := result.capacity
	outcome.Capacity = &capacity
	outcome.Promoted = result.promoted
	s.metrics.RecordDecision(OperationDrop, DecisionDropped)
	s.announce(ctx, req.CourseID, result)
	reqLogger.Info("enrollment dropped", zap.Strings("promoted", result.promoted))
	return outcome, nil
}

// SetCapacity creates or resizes the course ledger; growth promotes waitlisted students.
func (s *AdmissionService) SetCapacity(ctx context.Context, req dto.SetCapacityRequest) (*dto.CapacityResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reqLogger := logger.FromContext(ctx, s.logger).With(zap.String("course_id", req.CourseID))

	course, err := s.courses.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, directoryError(err, fmt.Sprintf("course %s", req.CourseID))
	}
	created, err := s.store.EnsureCourse(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create capacity ledger")
	}
	if created {
		reqLogger.Info("capacity ledger created")
	}

	var result sectionResult
	snap := newPromotionSnapshot(course)
	err = s.withinPromotingCourse(ctx, OperationSetCapacity, req.CourseID, snap, func(tx repository.CourseTx) error {
		result = sectionResult{}
		if _, err := s.ledger.Resize(ctx, tx, *req.TotalCapacity); err != nil {
			return err
		}
		if err := s.promote(ctx, tx, snap, &result); err != nil {
			return err
		}
		capacity, err := s.ledger.Snapshot(ctx, tx)
		if err != nil {
			return err
		}
		result.capacity = capacity
		result.capacityChanged = len(result.promoted) > 0
		return nil
	})
	if err != nil {
		s.recordFailure(reqLogger, OperationSetCapacity, err)
		return nil, err
	}

	s.announce(ctx, req.CourseID, result)
	reqLogger.Info("capacity set", zap.Int("total_capacity", result.capacity.TotalCapacity), zap.Strings("promoted", result.promoted))
	return &dto.CapacityResponse{Capacity: result.capacity, Available: result.capacity.Available(), Promoted: result.promoted}, nil
}

// GetStatus returns the latest status of the student in the course with the full history.
func (s *AdmissionService) GetStatus(ctx context.Context, courseID, studentID string) (*models.EnrollmentStatusView, error) {
	if courseID == "" || studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id and student id are required")
	}
	view := &models.EnrollmentStatusView{StudentID: studentID, CourseID: courseID, Status: models.EnrollmentStatusNone}
	err := s.withinCourse(ctx, OperationRead, courseID, func(tx repository.CourseTx) error {
		history, err := s.log.History(ctx, tx, studentID)
		if err != nil {
			return err
		}
		view.History = history
		if len(history) > 0 {
			latest, err := s.log.Latest(ctx, tx, studentID)
			if err != nil {
				return err
			}
			if latest != nil {
				view.Status = latest.Status
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if view.History == nil {
		view.History = []models.EnrollmentRecord{}
	}
	return view, nil
}

// GetWaitlistPosition reports the 1-based queue position, if any.
func (s *AdmissionService) GetWaitlistPosition(ctx context.Context, courseID, studentID string) (*dto.WaitlistPositionResponse, error) {
	if courseID == "" || studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id and student id are required")
	}
	resp := &dto.WaitlistPositionResponse{CourseID: courseID, StudentID: studentID}
	err := s.withinCourse(ctx, OperationRead, courseID, func(tx repository.CourseTx) error {
		position, err := s.waitlist.Position(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if position > 0 {
			resp.Waitlisted = true
			resp.Position = &position
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetCapacity returns the course ledger.
func (s *AdmissionService) GetCapacity(ctx context.Context, courseID string) (*dto.CapacityResponse, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	var capacity models.CourseCapacity
	err := s.withinCourse(ctx, OperationRead, courseID, func(tx repository.CourseTx) error {
		snapshot, err := s.ledger.Snapshot(ctx, tx)
		capacity = snapshot
		return err
	})
	if err != nil {
		return nil, err
	}
	return &dto.CapacityResponse{Capacity: capacity, Available: capacity.Available()}, nil
}

// ListWaitlist pages through the course queue in promotion order.
func (s *AdmissionService) ListWaitlist(ctx context.Context, courseID string, query dto.WaitlistQuery) ([]models.WaitlistEntry, *models.Pagination, error) {
	if courseID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var entries []models.WaitlistEntry
	err := s.withinCourse(ctx, OperationRead, courseID, func(tx repository.CourseTx) error {
		all, err := s.waitlist.Entries(ctx, tx)
		entries = all
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	total := len(entries)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pageEntries := append([]models.WaitlistEntry{}, entries[start:end]...)
	return pageEntries, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}

// Roster reads the ledger, the enrolled students and the queue in one section.
func (s *AdmissionService) Roster(ctx context.Context, courseID string) (*models.CourseRoster, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	roster := &models.CourseRoster{}
	err := s.withinCourse(ctx, OperationRead, courseID, func(tx repository.CourseTx) error {
		capacity, err := s.ledger.Snapshot(ctx, tx)
		if err != nil {
			return err
		}
		enrolled, err := tx.EnrolledRecords(ctx)
		if err != nil {
			return fmt.Errorf("list enrolled students: %w", err)
		}
		queue, err := s.waitlist.Entries(ctx, tx)
		if err != nil {
			return err
		}
		roster.Capacity, roster.Enrolled, roster.Waitlist = capacity, enrolled, queue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roster, nil
}

// promote fills free seats from the head of the waitlist. Candidates that no
// longer pass validation are dropped from contention and the loop moves on.
// Directory data comes only from snap: a candidate or course it lacks aborts
// the section with a *promotionLookup so the caller can load it unlocked.
func (s *AdmissionService) promote(ctx context.Context, tx repository.CourseTx, snap *promotionSnapshot, result *sectionResult) error {
	courseID := tx.CourseID()
	for {
		capacity, err := s.ledger.Snapshot(ctx, tx)
		if err != nil {
			return err
		}
		if capacity.Available() == 0 {
			return nil
		}
		head, err := s.waitlist.DequeueNext(ctx, tx)
		if err != nil {
			return err
		}
		if head == nil {
			return nil
		}

		profile, known := snap.profiles[head.StudentID]
		if snap.course == nil || !known {
			lookup := &promotionLookup{course: snap.course == nil}
			if !known {
				lookup.students, err = s.missingCandidates(ctx, tx, snap, head.StudentID, capacity.Available())
				if err != nil {
					return err
				}
			}
			return lookup
		}

		var verdict models.ValidationOutcome
		if profile == nil {
			verdict = models.Fail("student", fmt.Sprintf("student %s no longer exists", head.StudentID))
		} else {
			verdict = s.pipeline.Validate(*profile, *snap.course)
		}

		if !verdict.Valid {
			if _, _, err := s.log.RecordDrop(ctx, tx, head.StudentID); err != nil {
				return err
			}
			s.metrics.RecordPromotion(false)
			result.events = append(result.events, s.newEvent(models.EventDropped, head.StudentID, courseID, verdict.Reason))
			continue
		}

		if _, err := s.ledger.Reserve(ctx, tx); err != nil {
			return err
		}
		if _, err := s.log.Promote(ctx, tx, head.StudentID); err != nil {
			return err
		}
		s.metrics.RecordPromotion(true)
		result.capacityChanged = true
		result.promoted = append(result.promoted, head.StudentID)
		result.events = append(result.events, s.newEvent(models.EventPromotedFromWaitlist, head.StudentID, courseID, ""))
	}
}

// promotionSnapshot holds the directory data promotion validates against. A
// nil profile marks a student the directory no longer knows.
type promotionSnapshot struct {
	course   *models.CourseInfo
	profiles map[string]*models.StudentProfile
}

func newPromotionSnapshot(course *models.CourseInfo) *promotionSnapshot {
	return &promotionSnapshot{course: course, profiles: make(map[string]*models.StudentProfile)}
}

// promotionLookup aborts a section that needs directory data snap lacks.
type promotionLookup struct {
	course   bool
	students []string
}

func (l *promotionLookup) Error() string {
	return fmt.Sprintf("promotion needs directory data (course %t, students %v)", l.course, l.students)
}

// missingCandidates lists head and the queued students behind it that could
// take the remaining seats and have no profile yet.
func (s *AdmissionService) missingCandidates(ctx context.Context, tx repository.CourseTx, snap *promotionSnapshot, head string, seats int) ([]string, error) {
	missing := []string{head}
	queue, err := s.waitlist.Entries(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, entry := range queue {
		if len(missing) >= seats {
			break
		}
		if _, ok := snap.profiles[entry.StudentID]; ok || entry.StudentID == head {
			continue
		}
		missing = append(missing, entry.StudentID)
	}
	return missing, nil
}

// withinPromotingCourse runs fn in the course section, loading whatever
// promotion asked for between attempts. Each attempt starts from a rolled
// back section and a larger snapshot, so the loop ends once the queue is
// covered.
func (s *AdmissionService) withinPromotingCourse(ctx context.Context, operation, courseID string, snap *promotionSnapshot, fn repository.CourseTxFunc) error {
	for {
		err := s.withinCourse(ctx, operation, courseID, fn)
		var lookup *promotionLookup
		if !errors.As(err, &lookup) {
			return err
		}
		if err := s.fillSnapshot(ctx, courseID, snap, lookup); err != nil {
			return err
		}
	}
}

// fillSnapshot loads the requested course and profiles outside any section.
func (s *AdmissionService) fillSnapshot(ctx context.Context, courseID string, snap *promotionSnapshot, lookup *promotionLookup) error {
	profiles := make([]*models.StudentProfile, len(lookup.students))
	g, gctx := errgroup.WithContext(ctx)
	if lookup.course {
		g.Go(func() error {
			info, err := s.courses.GetCourse(gctx, courseID)
			if err != nil {
				return directoryError(err, fmt.Sprintf("course %s", courseID))
			}
			if info == nil {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", courseID))
			}
			snap.course = info
			return nil
		})
	}
	for i, studentID := range lookup.students {
		g.Go(func() error {
			profile, err := s.loadProfile(gctx, studentID)
			switch {
			case err == nil:
				profiles[i] = &profile
			case errors.Is(err, appErrors.ErrNotFound):
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, studentID := range lookup.students {
		snap.profiles[studentID] = profiles[i]
	}
	return nil
}

// loadProfile gathers the validator snapshot of a student concurrently.
func (s *AdmissionService) loadProfile(ctx context.Context, studentID string) (models.StudentProfile, error) {
	profile := models.StudentProfile{ID: studentID}
	what := fmt.Sprintf("student %s", studentID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		grades, err := s.students.CompletedGrades(gctx, studentID)
		if err != nil {
			return directoryError(err, what)
		}
		profile.CompletedGrades = grades
		return nil
	})
	g.Go(func() error {
		enrollments, err := s.students.ActiveEnrollments(gctx, studentID)
		if err != nil {
			return directoryError(err, what)
		}
		profile.ActiveEnrollments = enrollments
		return nil
	})
	g.Go(func() error {
		holds, err := s.students.Holds(gctx, studentID)
		if err != nil {
			return directoryError(err, what)
		}
		profile.Holds = holds
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.StudentProfile{}, err
	}

	for i := range profile.ActiveEnrollments {
		enrollment := &profile.ActiveEnrollments[i]
		if enrollment.Status != models.EnrollmentStatusEnrolled || len(enrollment.Schedule) > 0 {
			continue
		}
		info, err := s.courses.GetCourse(ctx, enrollment.CourseID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return models.StudentProfile{}, directoryError(err, fmt.Sprintf("course %s", enrollment.CourseID))
		}
		enrollment.Schedule = info.Schedule
	}
	return profile, nil
}

func (s *AdmissionService) withinCourse(ctx context.Context, operation, courseID string, fn repository.CourseTxFunc) error {
	start := time.Now()
	err := s.store.WithinCourse(ctx, courseID, fn)
	s.metrics.ObserveSection(operation, time.Since(start))
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrCourseNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s has no capacity ledger", courseID))
	}
	if errors.Is(err, repository.ErrSectionTimeout) {
		return appErrors.Dependency(err, fmt.Sprintf("course %s is busy, retry later", courseID))
	}
	var lookup *promotionLookup
	if errors.As(err, &lookup) {
		return err
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s course %s", operation, courseID))
}

func (s *AdmissionService) recordFailure(reqLogger *zap.Logger, operation string, err error) {
	switch {
	case errors.Is(err, appErrors.ErrIneligible):
		s.metrics.RecordDecision(operation, DecisionRejected)
		reqLogger.Info("admission rejected", zap.String("reason", appErrors.FromError(err).Message))
	case errors.Is(err, appErrors.ErrLedgerEmpty), errors.Is(err, appErrors.ErrInvariantViolation):
		s.metrics.RecordDecision(operation, DecisionFailed)
		reqLogger.Error("admission invariant violated", zap.Error(err))
	case errors.Is(err, appErrors.ErrDependencyUnavailable):
		s.metrics.RecordDecision(operation, DecisionFailed)
		reqLogger.Warn("admission aborted on dependency failure", zap.Error(err))
	default:
		s.metrics.RecordDecision(operation, DecisionFailed)
		reqLogger.Info("admission refused", zap.Error(err))
	}
}

func (s *AdmissionService) announce(ctx context.Context, courseID string, result sectionResult) {
	if len(result.events) > 0 {
		s.notifier.Publish(ctx, result.events...)
	}
	if result.capacityChanged {
		s.notifier.CapacityChanged(ctx, courseID, result.capacity.TakenSeats)
	}
}

func (s *AdmissionService) newEvent(eventType models.AdmissionEventType, studentID, courseID, reason string) models.AdmissionEvent {
	return models.AdmissionEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		StudentID:  studentID,
		CourseID:   courseID,
		Reason:     reason,
		OccurredAt: s.now(),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, appErrors.ErrNotFound)
}

// directoryError maps collaborator failures onto the admission taxonomy:
// missing entities become NotFound and everything else is a retryable
// dependency failure.
func directoryError(err error, what string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", what))
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return appErrors.Dependency(err, fmt.Sprintf("%s lookup failed", what))
}
