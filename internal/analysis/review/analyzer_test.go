package review

import (
	"testing"

	"github.com/talentsim/backend/internal/model/interview"
)

func snapshotWith(turns ...interview.Message) interview.TranscriptSnapshot {
	return interview.TranscriptSnapshot{
		SessionID:   "session-1",
		CandidateID: "candidate-1",
		Conversations: []interview.Conversation{
			{Slot: 0, Messages: turns},
		},
	}
}

func TestAssessEmptyTranscript(t *testing.T) {
	assessment := Assess(interview.TranscriptSnapshot{})

	want := interview.MetricScores{Communication: 50, ProblemSolving: 50, Collaboration: 50, Composure: 50}
	if assessment.Scores != want {
		t.Fatalf("expected neutral baseline %+v, got %+v", want, assessment.Scores)
	}
	if assessment.Summary == "" {
		t.Fatal("expected a summary for the empty transcript")
	}
}

func TestAssessKeywordEvidenceRaisesScores(t *testing.T) {
	assessment := Assess(snapshotWith(
		interview.Message{Sender: interview.SenderCandidate, Content: "First I would look for the root cause, then check each edge case and trade-off."},
		interview.Message{Sender: interview.SenderCandidate, Content: "To clarify, let me explain my hypothesis step by step."},
	))

	if assessment.Scores.ProblemSolving <= 50 {
		t.Fatalf("expected problem solving above baseline, got %d", assessment.Scores.ProblemSolving)
	}
	if assessment.Scores.Communication <= 50 {
		t.Fatalf("expected communication above baseline, got %d", assessment.Scores.Communication)
	}
}

func TestAssessCapsBucketScores(t *testing.T) {
	content := ""
	for i := 0; i < 50; i++ {
		content += "root cause edge case trade-off hypothesis constraint "
	}
	assessment := Assess(snapshotWith(
		interview.Message{Sender: interview.SenderCandidate, Content: content},
	))

	if assessment.Scores.ProblemSolving > 95 {
		t.Fatalf("expected cap at 95, got %d", assessment.Scores.ProblemSolving)
	}
}

func TestAssessComposurePenalty(t *testing.T) {
	calm := Assess(snapshotWith(
		interview.Message{Sender: interview.SenderCandidate, Content: "Good question, let me think about that."},
	))
	heated := Assess(snapshotWith(
		interview.Message{Sender: interview.SenderCandidate, Content: "Good question, let me think about that."},
		interview.Message{Sender: interview.SenderCandidate, Content: "THIS WHOLE EXERCISE IS COMPLETELY POINTLESS"},
		interview.Message{Sender: interview.SenderCandidate, Content: "I already answered that!! Twice!!"},
	))

	if heated.Scores.Composure >= calm.Scores.Composure {
		t.Fatalf("expected outbursts to lower composure: calm=%d heated=%d",
			calm.Scores.Composure, heated.Scores.Composure)
	}
}

func TestAssessIgnoresInterviewerTurns(t *testing.T) {
	assessment := Assess(snapshotWith(
		interview.Message{Sender: interview.SenderInterviewer, Content: "Walk me through the root cause, edge case by edge case."},
	))

	want := interview.MetricScores{Communication: 50, ProblemSolving: 50, Collaboration: 50, Composure: 50}
	if assessment.Scores != want {
		t.Fatalf("interviewer turns must not score: got %+v", assessment.Scores)
	}
}
