// Package domain contains core domain types for the Charla application.
package domain

import (
	"time"
)

const (
	// DefaultDialect is assigned to new users and to sessions created without one.
	DefaultDialect = "Mexico"
	// DefaultExperienceLevel is assigned to new users.
	DefaultExperienceLevel = "beginner"
)

// LearnerProfile represents a user together with the persistent state consumed
// by context assembly: dialect, experience level, and accumulated facts.
type LearnerProfile struct {
	UserID          string    `json:"user_id"`
	Subject         string    `json:"-"`
	Dialect         string    `json:"dialect"`
	ExperienceLevel string    `json:"experience_level"`
	Facts           *FactMap  `json:"facts"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FactCount returns the number of stored learner facts.
func (p *LearnerProfile) FactCount() int {
	if p.Facts == nil {
		return 0
	}
	return p.Facts.Len()
}
