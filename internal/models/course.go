package models

import (
	"fmt"
	"strings"
	"time"
)

// Meeting is one weekly time slot of a course. Start and End use "HH:MM".
type Meeting struct {
	Day   string `db:"day" json:"day" yaml:"day"`
	Start string `db:"start_time" json:"start" yaml:"start"`
	End   string `db:"end_time" json:"end" yaml:"end"`
}

// Minutes returns the start and end of the meeting as minutes since midnight.
func (m Meeting) Minutes() (int, int, error) {
	start, err := parseClock(m.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(m.End)
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("meeting %s %s-%s ends before it starts", m.Day, m.Start, m.End)
	}
	return start, end, nil
}

// SameDay compares weekdays case-insensitively.
func (m Meeting) SameDay(other Meeting) bool {
	return strings.EqualFold(strings.TrimSpace(m.Day), strings.TrimSpace(other.Day))
}

func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", raw, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CourseInfo is the course directory view of a course. Capacity is owned by the ledger.
type CourseInfo struct {
	ID            string    `db:"id" json:"id" yaml:"id"`
	Code          string    `db:"code" json:"code" yaml:"code"`
	Name          string    `db:"name" json:"name" yaml:"name"`
	Department    string    `db:"department" json:"department,omitempty" yaml:"department"`
	Schedule      []Meeting `db:"-" json:"schedule" yaml:"schedule"`
	Prerequisites []string  `db:"-" json:"prerequisites" yaml:"prerequisites"`
}
