package skill

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	triggerWeight     = 10
	descriptionWeight = 3
	confidenceScale   = 20.0
	minConfidence     = 0.1
	maxMatches        = 3
)

// Match is one ranked candidate.
type Match struct {
	Manifest   Manifest `json:"manifest"`
	Score      int      `json:"score"`
	Confidence float64  `json:"confidence"`
}

// Select ranks skills against a free-text query. Each trigger phrase found
// in the query scores 10 and each query word longer than one character found
// in the description scores 3; confidence is score/20 capped at 1. Matches
// at or below 0.1 are dropped, ties keep registration order, and at most
// three are returned.
func (r *Registry) Select(query string) []Match {
	q := strings.ToLower(query)
	var words []string
	for _, w := range strings.Fields(q) {
		if utf8.RuneCountInString(w) > 1 {
			words = append(words, w)
		}
	}

	var matches []Match
	for _, e := range r.snapshot() {
		score := Score(e.manifest, q, words)
		confidence := min(float64(score)/confidenceScale, 1.0)
		if confidence <= minConfidence {
			continue
		}
		matches = append(matches, Match{Manifest: e.manifest, Score: score, Confidence: confidence})
	}

	// snapshot is in registration order, so a stable sort breaks ties by it
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

// Score computes the raw selection score of m for a lowercased query and
// its eligible words.
func Score(m Manifest, lowerQuery string, words []string) int {
	score := 0
	for _, phrase := range m.TriggerPhrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" && strings.Contains(lowerQuery, phrase) {
			score += triggerWeight
		}
	}
	desc := strings.ToLower(m.Description)
	for _, w := range words {
		if strings.Contains(desc, w) {
			score += descriptionWeight
		}
	}
	return score
}
