package interview

import "time"

// DefaultConversationSlots is the number of parallel interviewer threads
// opened for every session.
const DefaultConversationSlots = 4

// Session is a single time-boxed interview attempt for one candidate.
// At most one non-completed session per candidate is current; starting a
// test for a candidate with an open session resumes it instead of forking
// a duplicate. Sessions are never deleted, only superseded.
type Session struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	CandidateID     string     `gorm:"not null;index" json:"candidateId"`
	StartedAt       time.Time  `gorm:"not null" json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Completed       bool       `gorm:"not null;default:false;index" json:"completed"`
	DurationSeconds int        `gorm:"not null" json:"durationSeconds"`
	CreatedAt       time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updatedAt"`
}

// Remaining computes whole seconds left at the given instant. Completed
// sessions always report zero.
func (s Session) Remaining(now time.Time) int {
	if s.Completed {
		return 0
	}
	elapsed := int(now.Sub(s.StartedAt) / time.Second)
	remaining := s.DurationSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
