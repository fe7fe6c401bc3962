// Package students stores raw student records keyed by roll number and
// serves the labeled subset as the fairness reference dataset.
package students

import (
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/models"
)

// ErrStudentNotFound is returned when no record has the roll number.
var ErrStudentNotFound = errors.New("student not found")

// ErrInvalidRollNo is returned for roll numbers that are not 1 to 12 digits.
var ErrInvalidRollNo = errors.New("invalid roll number")

// Student is one stored raw record. Target is nil for unlabeled students.
type Student struct {
	RollNo     string          `json:"Roll_No"`
	Attributes features.Record `json:"attributes"`
	Target     *models.Label   `json:"target,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Record returns the raw attributes with the roll number included.
func (s *Student) Record() features.Record {
	rec := make(features.Record, len(s.Attributes)+1)
	for k, v := range s.Attributes {
		rec[k] = v
	}
	rec[features.RollNoAttribute] = s.RollNo
	return rec
}

// Labeled reports whether the student has a known outcome.
func (s *Student) Labeled() bool { return s.Target != nil }

// ValidateRollNo checks that a roll number is all digits.
func ValidateRollNo(rollNo string) error {
	if len(rollNo) == 0 || len(rollNo) > 12 {
		return fmt.Errorf("%w: %q", ErrInvalidRollNo, rollNo)
	}
	for _, r := range rollNo {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidRollNo, rollNo)
		}
	}
	return nil
}

func validateStudent(s *Student) error {
	if s == nil {
		return errors.New("student is nil")
	}
	if err := ValidateRollNo(s.RollNo); err != nil {
		return err
	}
	if len(s.Attributes) == 0 {
		return fmt.Errorf("student %s has no attributes", s.RollNo)
	}
	return nil
}

func labelPtr(l models.Label) *models.Label { return &l }
