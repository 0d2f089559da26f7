package memory

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/rcliao/emotion-memory/internal/model"
)

const (
	patternConfidence  = 0.5
	negativeConfidence = 0.7

	calmingSuggestion = "Provide more calming and supportive responses"
	energySuggestion  = "Maintain positive energy and enthusiasm"
)

// negativeSuggestions is attached to every negative-interaction pattern.
var negativeSuggestions = []string{
	"Adjust response tone",
	"Provide more empathetic responses",
	"Ask clarifying questions",
}

// analyze stages the pattern updates caused by storing m: one emotional
// pattern keyed by emotion and, for behavioral memories, one bucketed
// behavioral pattern.
func (c *change) analyze(m model.MemoryEntry, at time.Time) {
	ec := m.EmotionalContext.Clamped()

	id := emotionPatternID(ec.PrimaryEmotion)
	if p, ok := c.pattern(id); ok {
		p.Frequency++
		p.LastObserved = at
		// Recency-weighted: each observation counts as much as all before it.
		p.EmotionalContext.Intensity = (p.EmotionalContext.Intensity + ec.Intensity) / 2
		c.putPattern(p)
	} else {
		c.putPattern(model.MemoryPattern{
			PatternID:             id,
			PatternType:           model.EmotionalPatternType,
			Frequency:             1,
			EmotionalContext:      ec.Clone(),
			Confidence:            patternConfidence,
			LastObserved:          at,
			AdaptationSuggestions: []string{},
		})
	}

	if m.MemoryType != model.BehavioralPattern {
		return
	}
	id = behaviorPatternID(m.Content)
	if p, ok := c.pattern(id); ok {
		p.Frequency++
		p.LastObserved = at
		c.putPattern(p)
		return
	}
	c.putPattern(model.MemoryPattern{
		PatternID:             id,
		PatternType:           model.BehavioralPatternType,
		Frequency:             1,
		EmotionalContext:      ec.Clone(),
		Confidence:            patternConfidence,
		LastObserved:          at,
		AdaptationSuggestions: []string{},
	})
}

// negativePattern builds a fresh negative-interaction pattern. Each call
// gets its own id; these patterns are never merged.
func (s *MemoryStore) negativePattern(ec model.EmotionalContext, at time.Time) model.MemoryPattern {
	return model.MemoryPattern{
		PatternID:             "negative_pattern_" + s.newULID(at),
		PatternType:           model.NegativeInteractionType,
		Frequency:             1,
		EmotionalContext:      ec.Clamped().Clone(),
		Confidence:            negativeConfidence,
		LastObserved:          at,
		AdaptationSuggestions: append([]string{}, negativeSuggestions...),
	}
}

// AdaptationSuggestions returns the deduplicated suggestions implied by the
// current patterns, in first-seen order.
func (s *MemoryStore) AdaptationSuggestions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suggestions()
}

func (s *MemoryStore) suggestions() []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	for _, p := range s.patterns {
		switch p.PatternType {
		case model.NegativeInteractionType:
			if p.Frequency > 2 {
				for _, v := range p.AdaptationSuggestions {
					add(v)
				}
			}
		case model.EmotionalPatternType:
			switch p.EmotionalContext.PrimaryEmotion {
			case model.Stressed, model.Anxious:
				add(calmingSuggestion)
			case model.Excited, model.Happy:
				add(energySuggestion)
			}
		}
	}
	return out
}

// Patterns returns copies of all patterns in insertion order.
func (s *MemoryStore) Patterns() []model.MemoryPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MemoryPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.Clone())
	}
	return out
}

// SetPatternConfidence revises a pattern's confidence. Unknown ids and
// values outside [0, 1] are rejected.
func (s *MemoryStore) SetPatternConfidence(ctx context.Context, patternID string, confidence float64) error {
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return &model.ValidationError{Field: "confidence", Value: strconv.FormatFloat(confidence, 'g', -1, 64), Reason: "must be within [0, 1]"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.begin()
	p, ok := c.pattern(patternID)
	if !ok {
		return &model.ValidationError{Field: "pattern_id", Value: patternID, Reason: "no such pattern"}
	}
	p.Confidence = confidence
	c.putPattern(p)
	return s.commit(ctx, c)
}
