// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Semester represents an academic semester number (1-8 for a B.Tech programme).
type Semester int

// IsValid checks that the semester is within the programme range.
func (s Semester) IsValid() bool {
	return s >= 1 && s <= 8
}

// Next returns the following semester.
func (s Semester) Next() Semester {
	return s + 1
}

// IsFinal returns true for the last semester of the programme.
func (s Semester) IsFinal() bool {
	return s == 8
}

// String returns a human-readable representation ("Sem 5").
func (s Semester) String() string {
	return fmt.Sprintf("Sem %d", int(s))
}

// AcademicYear represents an academic-year cohort label (e.g. "2025-26").
type AcademicYear string

var academicYearPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// IsValid checks the "YYYY-YY" format.
func (a AcademicYear) IsValid() bool {
	return academicYearPattern.MatchString(string(a))
}

// String returns the string representation.
func (a AcademicYear) String() string {
	return string(a)
}

// Degree represents an academic programme ("btech", "mtech").
type Degree string

const (
	DegreeBTech Degree = "btech"
	DegreeMTech Degree = "mtech"
)

// IsValid checks that the degree is a known programme.
func (d Degree) IsValid() bool {
	switch d {
	case DegreeBTech, DegreeMTech:
		return true
	default:
		return false
	}
}

// Role represents a student's role inside a group.
type Role string

const (
	RoleLeader Role = "leader"
	RoleMember Role = "member"
)

// IsValid checks that the role is known.
func (r Role) IsValid() bool {
	return r == RoleLeader || r == RoleMember
}

// Track represents a student's chosen path within a semester.
type Track string

const (
	TrackInternship Track = "internship"
	TrackCoursework Track = "coursework"
)

// IsValid checks that the track is known.
func (t Track) IsValid() bool {
	return t == TrackInternship || t == TrackCoursework
}

// RequesterRole is the role an authenticated requester acts under.
// Identity itself comes from the external session service; the core only
// re-validates the authority the role grants.
type RequesterRole string

const (
	RequesterStudent RequesterRole = "student"
	RequesterFaculty RequesterRole = "faculty"
	RequesterAdmin   RequesterRole = "admin"
)

// IsAdmin returns true for administrative requesters.
func (r RequesterRole) IsAdmin() bool {
	return r == RequesterAdmin
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKFLOW CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// WorkflowConfig holds the per-semester, per-track parameters supplied by the
// external configuration store. It is re-read for every operation that depends
// on it; the core never caches it indefinitely.
type WorkflowConfig struct {
	Semester Semester
	Track    Track

	// Group capacity bounds for this semester.
	MinGroupMembers int
	MaxGroupMembers int

	// FacultyPreferenceLimit is the fixed length of a preference list.
	FacultyPreferenceLimit int

	// AllowedFacultyCategories restricts which faculty may be listed
	// (empty means no restriction).
	AllowedFacultyCategories []string

	// Registration window for group formation and project registration.
	RegistrationOpensAt  time.Time
	RegistrationClosesAt time.Time
}

// Validate checks structural sanity of the configuration.
func (c WorkflowConfig) Validate() error {
	if !c.Semester.IsValid() {
		return fmt.Errorf("workflow config: invalid semester %d", int(c.Semester))
	}
	if c.MinGroupMembers < 1 {
		return fmt.Errorf("workflow config: min group members must be positive")
	}
	if c.MaxGroupMembers < c.MinGroupMembers {
		return fmt.Errorf("workflow config: max group members below min")
	}
	if c.FacultyPreferenceLimit < 1 {
		return fmt.Errorf("workflow config: faculty preference limit must be positive")
	}
	return nil
}

// RegistrationOpen reports whether t falls inside the registration window.
// A zero window means registration is always open.
func (c WorkflowConfig) RegistrationOpen(t time.Time) bool {
	if c.RegistrationOpensAt.IsZero() && c.RegistrationClosesAt.IsZero() {
		return true
	}
	if !c.RegistrationOpensAt.IsZero() && t.Before(c.RegistrationOpensAt) {
		return false
	}
	if !c.RegistrationClosesAt.IsZero() && t.After(c.RegistrationClosesAt) {
		return false
	}
	return true
}

// AllowsFacultyCategory reports whether a faculty category may be listed in
// preference lists for this semester.
func (c WorkflowConfig) AllowsFacultyCategory(category string) bool {
	if len(c.AllowedFacultyCategories) == 0 {
		return true
	}
	for _, allowed := range c.AllowedFacultyCategories {
		if allowed == category {
			return true
		}
	}
	return false
}

// WorkflowConfigSource supplies workflow configuration per operation.
// Implementations live in infrastructure (config store + cache).
type WorkflowConfigSource interface {
	// WorkflowConfig returns the parameters for a semester and track.
	// Track may be empty for semesters without a track split.
	WorkflowConfig(ctx context.Context, semester Semester, track Track) (WorkflowConfig, error)
}
