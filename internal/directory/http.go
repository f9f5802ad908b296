package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// HTTPOptions tunes the JSON directory clients.
type HTTPOptions struct {
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	Client          *http.Client
	Logger          *zap.Logger
}

type jsonClient struct {
	baseURL  string
	http     *http.Client
	maxTries uint
	initial  time.Duration
	logger   *zap.Logger
}

func newJSONClient(baseURL string, opts HTTPOptions) *jsonClient {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	initial := opts.InitialInterval
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &jsonClient{
		baseURL:  baseURL,
		http:     client,
		maxTries: uint(retries) + 1,
		initial:  initial,
		logger:   logger,
	}
}

func (c *jsonClient) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = 10 * c.initial
	return b
}

// do issues the request with exponential backoff. 404 and other 4xx answers
// stop retrying; transport errors and 5xx are retried.
func (c *jsonClient) do(ctx context.Context, method, path string, body interface{}, dest interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
	}
	target := c.baseURL + path

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("directory request failed", zap.String("url", target), zap.Error(err))
			return struct{}{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return struct{}{}, backoff.Permanent(appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", path)))
		case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
			_, _ = io.Copy(io.Discard, resp.Body)
			return struct{}{}, fmt.Errorf("%s %s: status %d", method, target, resp.StatusCode)
		case resp.StatusCode >= http.StatusBadRequest:
			return struct{}{}, backoff.Permanent(fmt.Errorf("%s %s: status %d", method, target, resp.StatusCode))
		}

		if dest == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return struct{}{}, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decode %s: %w", target, err))
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(c.backOff()), backoff.WithMaxTries(c.maxTries))

	if err == nil {
		return nil
	}
	if errors.Is(err, appErrors.ErrNotFound) {
		return err
	}
	return appErrors.Dependency(err, fmt.Sprintf("directory %s unavailable", c.baseURL))
}

// HTTPCourseDirectory talks to the course catalog service.
type HTTPCourseDirectory struct {
	client *jsonClient
}

// NewHTTPCourseDirectory constructs a course directory client rooted at baseURL.
func NewHTTPCourseDirectory(baseURL string, opts HTTPOptions) *HTTPCourseDirectory {
	return &HTTPCourseDirectory{client: newJSONClient(baseURL, opts)}
}

// GetCourse fetches course metadata.
func (d *HTTPCourseDirectory) GetCourse(ctx context.Context, courseID string) (*models.CourseInfo, error) {
	var course models.CourseInfo
	if err := d.client.do(ctx, http.MethodGet, "/courses/"+url.PathEscape(courseID), nil, &course); err != nil {
		return nil, err
	}
	if course.ID == "" {
		course.ID = courseID
	}
	return &course, nil
}

type capacityReport struct {
	TakenSeats int `json:"taken_seats"`
}

// NotifyCapacityChanged reports the committed seat count.
func (d *HTTPCourseDirectory) NotifyCapacityChanged(ctx context.Context, courseID string, takenSeats int) error {
	return d.client.do(ctx, http.MethodPost, "/courses/"+url.PathEscape(courseID)+"/capacity", capacityReport{TakenSeats: takenSeats}, nil)
}

// HTTPStudentDirectory talks to the student records service.
type HTTPStudentDirectory struct {
	client *jsonClient
}

// NewHTTPStudentDirectory constructs a student directory client rooted at baseURL.
func NewHTTPStudentDirectory(baseURL string, opts HTTPOptions) *HTTPStudentDirectory {
	return &HTTPStudentDirectory{client: newJSONClient(baseURL, opts)}
}

// CompletedGrades fetches the student's transcript.
func (d *HTTPStudentDirectory) CompletedGrades(ctx context.Context, studentID string) ([]models.CompletedGrade, error) {
	var grades []models.CompletedGrade
	if err := d.client.do(ctx, http.MethodGet, "/students/"+url.PathEscape(studentID)+"/grades", nil, &grades); err != nil {
		return nil, err
	}
	return grades, nil
}

// ActiveEnrollments fetches the student's live enrollments.
func (d *HTTPStudentDirectory) ActiveEnrollments(ctx context.Context, studentID string) ([]models.ActiveEnrollment, error) {
	var enrollments []models.ActiveEnrollment
	if err := d.client.do(ctx, http.MethodGet, "/students/"+url.PathEscape(studentID)+"/enrollments", nil, &enrollments); err != nil {
		return nil, err
	}
	return enrollments, nil
}

// Holds fetches the student's registration holds. A hold listed without an
// active flag is active.
func (d *HTTPStudentDirectory) Holds(ctx context.Context, studentID string) ([]models.Hold, error) {
	var listed []catalogHold
	if err := d.client.do(ctx, http.MethodGet, "/students/"+url.PathEscape(studentID)+"/holds", nil, &listed); err != nil {
		return nil, err
	}
	holds := make([]models.Hold, 0, len(listed))
	for _, hold := range listed {
		holds = append(holds, hold.hold())
	}
	return holds, nil
}
