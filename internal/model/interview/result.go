package interview

import "time"

// AnalysisResult is the scored outcome of a completed session, unique per
// (session, candidate). Concurrent completion attempts must converge to a
// single row; the most recently updated row wins.
type AnalysisResult struct {
	ID          string       `gorm:"primaryKey" json:"id"`
	SessionID   string       `gorm:"not null;index:idx_result_session_candidate,unique,priority:1" json:"sessionId"`
	CandidateID string       `gorm:"not null;index:idx_result_session_candidate,unique,priority:2" json:"candidateId"`
	Scores      MetricScores `gorm:"serializer:json" json:"scores"`
	Summary     string       `json:"summary"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updatedAt"`
}

// MetricScores holds per-competency scores on a 0..100 scale.
type MetricScores struct {
	Communication  int `json:"communication"`
	ProblemSolving int `json:"problemSolving"`
	Collaboration  int `json:"collaboration"`
	Composure      int `json:"composure"`
}

// TranscriptSnapshot is the frozen view of a session's conversations handed
// to the scoring collaborator. Conversations are ordered by slot.
type TranscriptSnapshot struct {
	SessionID     string         `json:"sessionId"`
	CandidateID   string         `json:"candidateId"`
	TakenAt       time.Time      `json:"takenAt"`
	Conversations []Conversation `json:"conversations"`
}

// MessageCount totals messages across all conversations in the snapshot.
func (t TranscriptSnapshot) MessageCount() int {
	total := 0
	for _, conv := range t.Conversations {
		total += len(conv.Messages)
	}
	return total
}
