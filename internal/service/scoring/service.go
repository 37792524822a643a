package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/talentsim/backend/internal/analysis/review"
	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/pkg/logger"
)

// Scorer turns a frozen transcript into an analysis result. Implementations
// are treated as slow (seconds) and fallible; the caller owns retries.
type Scorer interface {
	Score(ctx context.Context, snapshot interview.TranscriptSnapshot) (interview.AnalysisResult, error)
}

// Config controls the LLM-backed scorer.
type Config struct {
	Enabled   bool
	TurnLimit int
}

// Service scores transcripts with a chat model and falls back to the
// keyword heuristic when the model is unavailable or returns garbage.
type Service struct {
	enabled   bool
	grader    compose.Runnable[map[string]any, *schema.Message]
	turnLimit int
	log       *logger.Logger
}

// NewService compiles the grading chain. A nil chatModel or disabled
// config yields a heuristic-only scorer, which is still a valid Scorer.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config, log *logger.Logger) (*Service, error) {
	turnLimit := cfg.TurnLimit
	if turnLimit <= 0 {
		turnLimit = 200
	}

	svc := &Service{
		enabled:   cfg.Enabled && chatModel != nil,
		turnLimit: turnLimit,
		log:       log.With("service", "ScoringService"),
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(graderSystemPrompt),
		schema.UserMessage(graderUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile grading chain: %w", err)
	}

	svc.grader = runnable
	return svc, nil
}

// Enabled reports whether the LLM path is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.grader != nil
}

// Score grades the transcript. The LLM path degrades to the heuristic on
// invoke or parse failure; only a context cancellation propagates as an
// error so interrupted completions can be retried.
func (s *Service) Score(ctx context.Context, snapshot interview.TranscriptSnapshot) (interview.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return interview.AnalysisResult{}, fmt.Errorf("scoring aborted: %w", err)
	}

	if !s.Enabled() {
		return s.heuristicResult(snapshot), nil
	}

	input := map[string]any{
		"transcript": formatTranscript(snapshot, s.turnLimit),
	}

	msg, err := s.grader.Invoke(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return interview.AnalysisResult{}, fmt.Errorf("scoring aborted: %w", ctx.Err())
		}
		s.log.Warn("grader invoke failed, using heuristic fallback",
			"session_id", snapshot.SessionID, "error", err)
		return s.heuristicResult(snapshot), nil
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		s.log.Warn("grader returned empty output, using heuristic fallback",
			"session_id", snapshot.SessionID)
		return s.heuristicResult(snapshot), nil
	}

	payload, err := parseGraderOutput(msg.Content)
	if err != nil {
		s.log.Warn("grader output parse failed, using heuristic fallback",
			"session_id", snapshot.SessionID, "error", err)
		return s.heuristicResult(snapshot), nil
	}

	now := time.Now().UTC()
	return interview.AnalysisResult{
		ID:          uuid.NewString(),
		SessionID:   snapshot.SessionID,
		CandidateID: snapshot.CandidateID,
		Scores: interview.MetricScores{
			Communication:  clampScore(payload.Communication),
			ProblemSolving: clampScore(payload.ProblemSolving),
			Collaboration:  clampScore(payload.Collaboration),
			Composure:      clampScore(payload.Composure),
		},
		Summary:   strings.TrimSpace(payload.Summary),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Service) heuristicResult(snapshot interview.TranscriptSnapshot) interview.AnalysisResult {
	assessment := review.Assess(snapshot)
	now := time.Now().UTC()
	return interview.AnalysisResult{
		ID:          uuid.NewString(),
		SessionID:   snapshot.SessionID,
		CandidateID: snapshot.CandidateID,
		Scores:      assessment.Scores,
		Summary:     assessment.Summary,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type graderPayload struct {
	Communication  int    `json:"communication"`
	ProblemSolving int    `json:"problemSolving"`
	Collaboration  int    `json:"collaboration"`
	Composure      int    `json:"composure"`
	Summary        string `json:"summary"`
}

// parseGraderOutput extracts the JSON object from the model reply.
func parseGraderOutput(content string) (*graderPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &graderPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func clampScore(val int) int {
	if val < 0 {
		return 0
	}
	if val > 100 {
		return 100
	}
	return val
}

func formatTranscript(snapshot interview.TranscriptSnapshot, turnLimit int) string {
	var builder strings.Builder
	turns := 0
	for _, conv := range snapshot.Conversations {
		fmt.Fprintf(&builder, "--- Conversation %d ---\n", conv.Slot+1)
		for _, msg := range conv.Messages {
			if turns >= turnLimit {
				builder.WriteString("(transcript truncated)\n")
				return builder.String()
			}
			role := "Candidate"
			if msg.Sender == interview.SenderInterviewer {
				role = "Interviewer"
			}
			content := strings.TrimSpace(msg.Content)
			if content == "" {
				continue
			}
			builder.WriteString(role)
			builder.WriteString(": ")
			builder.WriteString(content)
			builder.WriteString("\n")
			turns++
		}
	}
	if turns == 0 {
		return "(no messages recorded)"
	}
	return builder.String()
}

const graderSystemPrompt = "You are an interview assessor. Read the transcript of a timed screening session in which a candidate talked with several scripted interviewer personas. Grade the candidate on four competencies: communication, problemSolving, collaboration and composure, each as an integer from 0 to 100, and write a short free-text summary. Respond with a single JSON object containing exactly the fields communication, problemSolving, collaboration, composure and summary. Output nothing but the JSON object."

const graderUserPrompt = "Transcript:\n{transcript}\n\nReturn the JSON grade."
