package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// Built-in rule names, in evaluation order.
const (
	RulePrerequisites    = "prerequisites"
	RuleScheduleConflict = "schedule_conflict"
	RuleHolds            = "holds"
)

// Validator decides whether a student may be admitted to a course.
type Validator interface {
	Validate(student models.StudentProfile, course models.CourseInfo) models.ValidationOutcome
}

// ValidatorFunc adapts a plain function into a Validator.
type ValidatorFunc func(student models.StudentProfile, course models.CourseInfo) models.ValidationOutcome

// Validate implements Validator.
func (f ValidatorFunc) Validate(student models.StudentProfile, course models.CourseInfo) models.ValidationOutcome {
	return f(student, course)
}

type namedValidator struct {
	name      string
	validator Validator
}

// ValidationPipeline runs validators in registration order and stops at the
// first failure.
type ValidationPipeline struct {
	mu         sync.RWMutex
	validators []namedValidator
}

// NewValidationPipeline returns a pipeline with the built-in rules registered.
func NewValidationPipeline() *ValidationPipeline {
	p := &ValidationPipeline{}
	_ = p.Register(RulePrerequisites, ValidatorFunc(checkPrerequisites))
	_ = p.Register(RuleScheduleConflict, ValidatorFunc(checkScheduleConflict))
	_ = p.Register(RuleHolds, ValidatorFunc(checkHolds))
	return p
}

// Register appends a validator. Names must be unique.
func (p *ValidationPipeline) Register(name string, v Validator) error {
	if name == "" || v == nil {
		return fmt.Errorf("validator name and implementation are required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.validators {
		if existing.name == name {
			return fmt.Errorf("validator %s already registered", name)
		}
	}
	p.validators = append(p.validators, namedValidator{name: name, validator: v})
	return nil
}

// Rules lists registered validator names in evaluation order.
func (p *ValidationPipeline) Rules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.validators))
	for _, v := range p.validators {
		names = append(names, v.name)
	}
	return names
}

// Validate evaluates every rule in order. The first failing rule wins.
func (p *ValidationPipeline) Validate(student models.StudentProfile, course models.CourseInfo) models.ValidationOutcome {
	p.mu.RLock()
	validators := append([]namedValidator(nil), p.validators...)
	p.mu.RUnlock()

	for _, v := range validators {
		outcome := v.validator.Validate(student, course)
		if outcome.Valid {
			continue
		}
		if outcome.Rule == "" {
			outcome.Rule = v.name
		}
		return outcome
	}
	return models.Pass()
}

var failingGrades = map[string]struct{}{"F": {}, "W": {}}

func checkPrerequisites(student models.StudentProfile, course models.CourseInfo) models.ValidationOutcome {
	for _, prereq := range course.Prerequisites {
		grades := student.GradesFor(prereq)
		if len(grades) == 0 {
			return models.Fail(RulePrerequisites, fmt.Sprintf("prerequisite %s not completed", prereq))
		}
		if !anyPassing(grades) {
			return models.Fail(RulePrerequisites, fmt.Sprintf("prerequisite %s not passed (grade %s)", prereq, grades[len(grades)-1]))
		}
	}
	return models.Pass()
}

func anyPassing(grades []string) bool {
	for _, grade := range grades {
		if _, failed := failingGrades[strings.ToUpper(strings.TrimSpace(grade))]; !failed {
			return true
		}
	}
	return false
}

// checkScheduleConflict compares the requested course against ENROLLED
// courses only; waitlisted courses hold no seat yet.
func checkScheduleConflict(student models.StudentProfile, course models.CourseInfo) models.ValidationOutcome {
	for _, enrollment := range student.ActiveEnrollments {
		if enrollment.Status != models.EnrollmentStatusEnrolled || enrollment.CourseID == course.ID {
			continue
		}
		for _, held := range enrollment.Schedule {
			for _, wanted := range course.Schedule {
				if !held.SameDay(wanted) {
					continue
				}
				overlap, err := meetingsOverlap(held, wanted)
				if err != nil {
					return models.Fail(RuleScheduleConflict, fmt.Sprintf("cannot compare schedule with %s: %v", enrollment.CourseID, err))
				}
				if overlap {
					return models.Fail(RuleScheduleConflict, fmt.Sprintf("conflicts with %s on %s %s-%s", enrollment.CourseID, held.Day, held.Start, held.End))
				}
			}
		}
	}
	return models.Pass()
}

// meetingsOverlap treats touching intervals (one ends when the other starts) as disjoint.
func meetingsOverlap(a, b models.Meeting) (bool, error) {
	s1, e1, err := a.Minutes()
	if err != nil {
		return false, err
	}
	s2, e2, err := b.Minutes()
	if err != nil {
		return false, err
	}
	return !(e1 <= s2 || e2 <= s1), nil
}

func checkHolds(student models.StudentProfile, course models.CourseInfo) models.ValidationOutcome {
	for _, hold := range student.Holds {
		if !hold.Active {
			continue
		}
		reason := fmt.Sprintf("registration hold %s", hold.Code)
		if hold.Reason != "" {
			reason = fmt.Sprintf("%s: %s", reason, hold.Reason)
		}
		return models.Fail(RuleHolds, reason)
	}
	return models.Pass()
}
