package model

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Intent confidence constants.
const (
	intentInitialConfidence = 0.5
	intentBlend             = 0.9
	maxIntentMatches        = 10
)

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit, dropping single-character tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// AddIntentMapping teaches that intent is expressed by command. A repeated
// pair reinforces the existing mapping; a new pair updates the document
// frequencies and stores its TF-IDF vector. It reports whether the mapping
// already existed.
func (m *Model) AddIntentMapping(intent, command string) bool {
	intent = strings.TrimSpace(intent)
	command = strings.TrimSpace(command)
	tokens := Tokenize(intent)
	if len(tokens) == 0 || command == "" {
		return false
	}

	for i := range m.IntentMappings {
		im := &m.IntentMappings[i]
		if im.Command == command && strings.EqualFold(im.Intent, intent) {
			im.SuccessCount++
			im.Confidence = min(1, im.Confidence*intentBlend+(1-intentBlend))
			return true
		}
	}

	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			m.IntentVocabulary[t]++
		}
	}
	m.IntentDocCount++

	m.IntentMappings = append(m.IntentMappings, IntentMapping{
		Intent:       intent,
		Tokens:       tokens,
		Vector:       m.tfidf(tokens),
		Command:      command,
		SuccessCount: 1,
		Confidence:   intentInitialConfidence,
	})
	return false
}

// tfidf weights tokens by term frequency times smoothed inverse document
// frequency, idf = ln((1+N)/(1+df)) + 1.
func (m *Model) tfidf(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return map[string]float64{}
	}
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	n := float64(m.IntentDocCount)
	vec := make(map[string]float64, len(counts))
	for t, c := range counts {
		tf := float64(c) / float64(len(tokens))
		idf := math.Log((1+n)/(1+float64(m.IntentVocabulary[t]))) + 1
		vec[t] = tf * idf
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for t, v := range a {
		na += v * v
		if w, ok := b[t]; ok {
			dot += v * w
		}
	}
	for _, w := range b {
		nb += w * w
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// IntentMatch is a command scored against a natural-language query.
type IntentMatch struct {
	Command string  `json:"command"`
	Intent  string  `json:"intent"`
	Score   float64 `json:"score"`
}

// FindIntentMatches scores every mapping by cosine similarity to query,
// boosted by confidence*(1 + max(0, ln(successes))*0.1). Matches below
// threshold are dropped, each command keeps its best score, and at most
// ten are returned, best first.
func (m *Model) FindIntentMatches(query string, threshold float64) []IntentMatch {
	q := m.tfidf(Tokenize(query))
	if len(q) == 0 {
		return nil
	}

	best := make(map[string]IntentMatch)
	for _, im := range m.IntentMappings {
		sim := cosine(q, im.Vector)
		if sim == 0 {
			continue
		}
		boost := 1 + math.Max(0, math.Log(float64(im.SuccessCount)))*0.1
		score := sim * im.Confidence * boost
		if score < threshold {
			continue
		}
		if prev, ok := best[im.Command]; !ok || score > prev.Score {
			best[im.Command] = IntentMatch{Command: im.Command, Intent: im.Intent, Score: score}
		}
	}

	matches := make([]IntentMatch, 0, len(best))
	for _, match := range best {
		matches = append(matches, match)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Command < matches[j].Command
	})
	if len(matches) > maxIntentMatches {
		matches = matches[:maxIntentMatches]
	}
	return matches
}
