package scoring

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/pkg/logger"
)

func TestHeuristicOnlyScorer(t *testing.T) {
	svc, err := NewService(context.Background(), nil, Config{Enabled: true}, logger.NewNop())
	require.NoError(t, err)
	require.False(t, svc.Enabled(), "nil chat model must force the heuristic path")

	snapshot := interview.TranscriptSnapshot{
		SessionID:   "session-1",
		CandidateID: "candidate-1",
		Conversations: []interview.Conversation{
			{Slot: 0, Messages: []interview.Message{
				{Sender: interview.SenderCandidate, Content: "Let me explain the trade-off step by step."},
			}},
		},
	}

	result, err := svc.Score(context.Background(), snapshot)
	require.NoError(t, err)
	require.Equal(t, "session-1", result.SessionID)
	require.Equal(t, "candidate-1", result.CandidateID)
	require.NotEmpty(t, result.ID)
	require.NotEmpty(t, result.Summary)
	require.GreaterOrEqual(t, result.Scores.Communication, 0)
	require.LessOrEqual(t, result.Scores.Communication, 100)
}

func TestScoreHonorsCancelledContext(t *testing.T) {
	svc, err := NewService(context.Background(), nil, Config{}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = svc.Score(ctx, interview.TranscriptSnapshot{SessionID: "session-1"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseGraderOutput(t *testing.T) {
	payload, err := parseGraderOutput("Here is the grade:\n```json\n{\"communication\": 80, \"problemSolving\": 75, \"collaboration\": 70, \"composure\": 90, \"summary\": \"solid\"}\n```")
	require.NoError(t, err)
	require.Equal(t, 80, payload.Communication)
	require.Equal(t, 90, payload.Composure)
	require.Equal(t, "solid", payload.Summary)

	_, err = parseGraderOutput("no json here")
	require.Error(t, err)

	_, err = parseGraderOutput("{broken")
	require.Error(t, err)
}

func TestClampScore(t *testing.T) {
	require.Equal(t, 0, clampScore(-10))
	require.Equal(t, 100, clampScore(350))
	require.Equal(t, 55, clampScore(55))
}

func TestFormatTranscript(t *testing.T) {
	snapshot := interview.TranscriptSnapshot{
		Conversations: []interview.Conversation{
			{Slot: 0, Messages: []interview.Message{
				{Sender: interview.SenderInterviewer, Content: "Tell me about a hard bug."},
				{Sender: interview.SenderCandidate, Content: "It was a race in the cache layer."},
			}},
			{Slot: 1},
		},
	}

	text := formatTranscript(snapshot, 200)
	require.Contains(t, text, "Interviewer: Tell me about a hard bug.")
	require.Contains(t, text, "Candidate: It was a race in the cache layer.")

	truncated := formatTranscript(snapshot, 1)
	require.Contains(t, truncated, "(transcript truncated)")

	empty := formatTranscript(interview.TranscriptSnapshot{}, 200)
	require.Equal(t, "(no messages recorded)", empty)
}

func TestFormatTranscriptSkipsBlankTurns(t *testing.T) {
	snapshot := interview.TranscriptSnapshot{
		Conversations: []interview.Conversation{
			{Slot: 0, Messages: []interview.Message{
				{Sender: interview.SenderCandidate, Content: "   "},
				{Sender: interview.SenderCandidate, Content: "real content"},
			}},
		},
	}

	text := formatTranscript(snapshot, 200)
	require.Equal(t, 1, strings.Count(text, "Candidate:"))
}
