package review

import (
	"fmt"
	"strings"

	"github.com/talentsim/backend/internal/model/interview"
)

// Assessment is a heuristic read of a transcript, used when the LLM
// scorer is unavailable and as its sanity fallback.
type Assessment struct {
	Scores  interview.MetricScores
	Summary string
}

// Competency buckets scored by keyword evidence in the candidate's turns.
var keywordBuckets = map[string][]string{
	"communication": {
		"to clarify", "in other words", "let me explain", "for example", "to summarize",
		"what i mean is", "does that make sense", "my understanding", "in summary",
		"specifically", "the key point",
	},
	"problemSolving": {
		"trade-off", "tradeoff", "root cause", "hypothesis", "edge case", "constraint",
		"alternative", "we could measure", "step by step", "first i would", "debug",
		"bottleneck", "complexity", "because",
	},
	"collaboration": {
		"we", "our team", "together", "i asked", "feedback", "pair", "agreed",
		"compromise", "aligned", "handed off", "reviewed", "helped",
	},
	"composure": {
		"no problem", "let me think", "good question", "that's fair", "i'd start by",
		"take a moment", "happy to", "sure", "understood",
	},
}

// Markers that drag composure down: all-caps outbursts and stacked
// exclamation marks.
const composurePenaltyPerOutburst = 6

// Assess scores the candidate's side of the transcript. It never errors:
// an empty transcript simply produces neutral midline scores.
func Assess(snapshot interview.TranscriptSnapshot) Assessment {
	var candidateTurns []string
	for _, conv := range snapshot.Conversations {
		for _, msg := range conv.Messages {
			if msg.Sender == interview.SenderCandidate {
				candidateTurns = append(candidateTurns, msg.Content)
			}
		}
	}

	if len(candidateTurns) == 0 {
		return Assessment{
			Scores:  interview.MetricScores{Communication: 50, ProblemSolving: 50, Collaboration: 50, Composure: 50},
			Summary: "No candidate responses recorded; neutral baseline applied.",
		}
	}

	joined := strings.ToLower(strings.Join(candidateTurns, "\n"))

	scores := interview.MetricScores{
		Communication:  bucketScore(joined, "communication"),
		ProblemSolving: bucketScore(joined, "problemSolving"),
		Collaboration:  bucketScore(joined, "collaboration"),
		Composure:      composureScore(candidateTurns, joined),
	}

	return Assessment{
		Scores: scores,
		Summary: fmt.Sprintf(
			"Keyword-based assessment over %d candidate turns across %d conversations.",
			len(candidateTurns), len(snapshot.Conversations)),
	}
}

func bucketScore(text, bucket string) int {
	score := 50
	for _, keyword := range keywordBuckets[bucket] {
		score += 3 * strings.Count(text, keyword)
	}
	if score > 95 {
		score = 95
	}
	return score
}

func composureScore(turns []string, joined string) int {
	score := bucketScore(joined, "composure")
	for _, turn := range turns {
		if strings.Count(turn, "!") >= 2 || isShouting(turn) {
			score -= composurePenaltyPerOutburst
		}
	}
	if score < 5 {
		score = 5
	}
	return score
}

// isShouting reports whether a turn is mostly upper-case letters.
func isShouting(turn string) bool {
	letters, upper := 0, 0
	for _, r := range turn {
		switch {
		case r >= 'a' && r <= 'z':
			letters++
		case r >= 'A' && r <= 'Z':
			letters++
			upper++
		}
	}
	return letters >= 12 && upper*10 >= letters*8
}
