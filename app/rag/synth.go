package rag

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"placement-ai/index"
	"placement-ai/types"
)

// DefaultRelevanceThreshold is the minimum similarity a chunk needs to
// count as evidence. Below it the synthesizer refuses to answer rather
// than free-generating around weak matches.
const DefaultRelevanceThreshold = 0.25

const insufficientMessage = "I couldn't find any relevant interview experiences matching your query. " +
	"Try broadening your search or asking about specific companies or topics."

// Generator produces a natural-language answer constrained to the given
// evidence. Implementations must not invent content outside it.
type Generator interface {
	Generate(ctx context.Context, evidence, question string) (string, error)
}

// Answer is the synthesizer output. Used lists the chunks the answer was
// built from; every claim in Text traces back to one of them.
type Answer struct {
	Text         string
	Confidence   float64
	Insufficient bool
	Used         []index.Result
}

// Synthesizer turns retrieved chunks into a grounded answer. Without a
// generator it stays fully extractive: answers are assembled from chunk
// text by intent-specific templates, so attribution is exact by
// construction. With a generator, the same retained evidence becomes the
// prompt context and the attribution set.
//
// Confidence is a decayed aggregate over the retained scores:
//
//	confidence = clamp(0.2 + Σ max(score_i, 0) / 2^(i+1))
//
// with scores in descending order. It is monotonic: raising any retained
// score, or adding evidence, never lowers it. No retained evidence means
// confidence 0.
type Synthesizer struct {
	threshold float64
	generator Generator
}

func NewSynthesizer(threshold float64, generator Generator) *Synthesizer {
	if threshold <= 0 {
		threshold = DefaultRelevanceThreshold
	}
	return &Synthesizer{threshold: threshold, generator: generator}
}

func (s *Synthesizer) Synthesize(ctx context.Context, query string, retrieved []index.Result) (*Answer, error) {
	retained := make([]index.Result, 0, len(retrieved))
	for _, r := range retrieved {
		if r.Score >= s.threshold {
			retained = append(retained, r)
		}
	}
	if len(retained) == 0 {
		return &Answer{Text: insufficientMessage, Confidence: 0, Insufficient: true}, nil
	}

	text := s.buildAnswer(query, retained)
	if s.generator != nil {
		polished, err := s.generator.Generate(ctx, evidenceText(retained), query)
		if err != nil {
			return nil, &types.SynthesisError{Unavailable: true, Err: err}
		}
		text = polished
	}

	return &Answer{
		Text:       text + attributionFooter(retained),
		Confidence: Confidence(retained),
		Used:       retained,
	}, nil
}

// Confidence implements the canonical confidence formula over a
// descending-score result list.
func Confidence(results []index.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	conf := 0.2
	weight := 0.5
	for _, r := range results {
		score := r.Score
		if score < 0 {
			score = 0
		}
		conf += score * weight
		weight /= 2
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

var (
	questionLineRe = regexp.MustCompile(`Question[^:]*:\s*([^\n]+)`)
	roundLineRe    = regexp.MustCompile(`Round\s*\d+[^:]*:\s*([^\n]+)`)
	difficultyRe   = regexp.MustCompile(`Difficulty:\s*(\d)/5`)
	tipsLineRe     = regexp.MustCompile(`Tips:\s*([^\n]+)`)
)

func (s *Synthesizer) buildAnswer(query string, retained []index.Result) string {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "dsa", "data structure", "algorithm", "coding question"):
		return buildLineAnswer("Questions asked in campus interviews:", questionLineRe, retained)
	case containsAny(q, "process", "rounds", "pattern"):
		return buildLineAnswer("Interview process overview:", roundLineRe, retained)
	case containsAny(q, "difficulty", "hard", "easy"):
		return buildDifficultyAnswer(retained)
	case containsAny(q, "tips", "prepare", "preparation", "advice"):
		return buildLineAnswer("Preparation tips from candidates:", tipsLineRe, retained)
	default:
		return buildGeneralAnswer(retained)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// buildLineAnswer extracts matching lines from the retained chunk text,
// grouped by company. Falls back to plain snippets when no chunk carries
// a matching line, so the answer never quotes anything unretrieved.
func buildLineAnswer(heading string, re *regexp.Regexp, retained []index.Result) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")

	found := false
	for _, r := range retained {
		matches := re.FindAllStringSubmatch(r.Chunk.Text, 3)
		if len(matches) == 0 {
			continue
		}
		found = true
		b.WriteString(fmt.Sprintf("\n%s (%s, %d):\n", orUnknown(r.Chunk.Company), orUnknown(r.Chunk.Role), r.Chunk.Year))
		for _, m := range matches {
			b.WriteString("- " + strings.TrimSpace(m[1]) + "\n")
		}
	}
	if !found {
		return buildGeneralAnswer(retained)
	}
	return b.String()
}

func buildDifficultyAnswer(retained []index.Result) string {
	type diff struct {
		company string
		level   int
	}
	var diffs []diff
	for _, r := range retained {
		if m := difficultyRe.FindStringSubmatch(r.Chunk.Text); m != nil {
			diffs = append(diffs, diff{company: orUnknown(r.Chunk.Company), level: int(m[1][0] - '0')})
		}
	}
	if len(diffs) == 0 {
		return buildGeneralAnswer(retained)
	}

	labels := []string{"Easy", "Easy-Medium", "Medium", "Medium-Hard", "Hard"}
	total := 0
	var b strings.Builder
	b.WriteString("Difficulty reported by candidates:\n\n")
	for _, d := range diffs {
		label := "Unrated"
		if d.level >= 1 && d.level <= 5 {
			label = labels[d.level-1]
		}
		b.WriteString(fmt.Sprintf("- %s: %d/5 (%s)\n", d.company, d.level, label))
		total += d.level
	}
	b.WriteString(fmt.Sprintf("\nAverage difficulty: %.1f/5\n", float64(total)/float64(len(diffs))))
	return b.String()
}

func buildGeneralAnswer(retained []index.Result) string {
	var b strings.Builder
	b.WriteString("Based on interview experiences from your campus:\n")
	limit := 3
	if len(retained) < limit {
		limit = len(retained)
	}
	for _, r := range retained[:limit] {
		b.WriteString(fmt.Sprintf("\n%s (%s, %d):\n", orUnknown(r.Chunk.Company), orUnknown(r.Chunk.Role), r.Chunk.Year))
		b.WriteString(Snippet(r.Chunk.Text, 200))
		b.WriteString("\n")
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// Snippet returns at most n runes of text.
func Snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func evidenceText(retained []index.Result) string {
	var b strings.Builder
	for i, r := range retained {
		b.WriteString(fmt.Sprintf("[%d] %s (%s, %d)\n%s\n\n", i+1, orUnknown(r.Chunk.Company), orUnknown(r.Chunk.Role), r.Chunk.Year, r.Chunk.Text))
	}
	return b.String()
}

func attributionFooter(retained []index.Result) string {
	companies := make([]string, 0, len(retained))
	seen := make(map[string]struct{})
	experiences := make(map[string]struct{})
	minYear, maxYear := 0, 0
	for _, r := range retained {
		experiences[r.Chunk.ExperienceID.String()] = struct{}{}
		if c := strings.TrimSpace(r.Chunk.Company); c != "" {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				companies = append(companies, c)
			}
		}
		if y := r.Chunk.Year; y > 0 {
			if minYear == 0 || y < minYear {
				minYear = y
			}
			if y > maxYear {
				maxYear = y
			}
		}
	}
	sort.Strings(companies)
	if len(companies) > 3 {
		companies = companies[:3]
	}

	footer := fmt.Sprintf("\n\nBased on %d interview experience(s)", len(experiences))
	if len(companies) > 0 {
		footer += " from " + strings.Join(companies, ", ")
	}
	if minYear > 0 {
		if minYear == maxYear {
			footer += fmt.Sprintf(" (%d)", minYear)
		} else {
			footer += fmt.Sprintf(" (%d-%d)", minYear, maxYear)
		}
	}
	return footer
}
