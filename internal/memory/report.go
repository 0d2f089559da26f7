package memory

import (
	"context"
	"time"

	"github.com/rcliao/emotion-memory/internal/model"
	"github.com/rcliao/emotion-memory/internal/store"
)

// DefaultWindowHours is the summary window used when none is given.
const DefaultWindowHours = 24

// SummaryReport aggregates the emotions of recently accessed memories.
type SummaryReport struct {
	TimeWindowHours       int            `json:"time_window_hours"`
	TotalMemories         int            `json:"total_memories"`
	EmotionalDistribution map[string]int `json:"emotional_distribution"`
	AverageIntensity      float64        `json:"average_intensity"`
	AverageConfidence     float64        `json:"average_confidence"`
	DominantEmotion       model.Emotion  `json:"dominant_emotion"`
}

// Summary reports on entries whose last access falls within the past
// windowHours, inclusive at both ends. windowHours <= 0 means 24.
func (s *MemoryStore) Summary(windowHours int) SummaryReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary(windowHours)
}

func (s *MemoryStore) summary(windowHours int) SummaryReport {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(windowHours) * time.Hour)

	r := SummaryReport{
		TimeWindowHours:       windowHours,
		EmotionalDistribution: map[string]int{},
		DominantEmotion:       model.Neutral,
	}
	var order []model.Emotion
	var intensity, confidence float64
	for _, m := range s.entries {
		if m.LastAccessed.Before(cutoff) || m.LastAccessed.After(now) {
			continue
		}
		ec := m.EmotionalContext.Clamped()
		if r.EmotionalDistribution[string(ec.PrimaryEmotion)] == 0 {
			order = append(order, ec.PrimaryEmotion)
		}
		r.EmotionalDistribution[string(ec.PrimaryEmotion)]++
		intensity += ec.Intensity
		confidence += ec.Confidence
		r.TotalMemories++
	}
	if r.TotalMemories == 0 {
		return r
	}

	r.AverageIntensity = intensity / float64(r.TotalMemories)
	r.AverageConfidence = confidence / float64(r.TotalMemories)
	best := 0
	for _, e := range order {
		if n := r.EmotionalDistribution[string(e)]; n > best {
			best = n
			r.DominantEmotion = e
		}
	}
	return r
}

// PatternSummary is the exported view of one pattern.
type PatternSummary struct {
	Type         string    `json:"type"`
	Frequency    int       `json:"frequency"`
	Confidence   float64   `json:"confidence"`
	LastObserved time.Time `json:"last_observed"`
}

// ExportReport is the full reporting view of the store.
type ExportReport struct {
	TotalMemories         int                       `json:"total_memories"`
	MemoryTypeCounts      map[string]int            `json:"memory_type_counts"`
	Summary               SummaryReport             `json:"summary"`
	PatternSummaries      map[string]PatternSummary `json:"pattern_summaries"`
	LearningMomentCount   int                       `json:"learning_moment_count"`
	AdaptationSuggestions []string                  `json:"adaptation_suggestions"`
}

// Export builds the reporting view: totals, per-type counts (every type is
// present), the 24 hour summary, pattern summaries, the learning moment
// count and the current suggestions.
func (s *MemoryStore) Export() ExportReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := ExportReport{
		TotalMemories:         len(s.entries),
		MemoryTypeCounts:      make(map[string]int, len(model.MemoryTypes)),
		Summary:               s.summary(DefaultWindowHours),
		PatternSummaries:      make(map[string]PatternSummary, len(s.patterns)),
		LearningMomentCount:   len(s.learning),
		AdaptationSuggestions: s.suggestions(),
	}
	for _, t := range model.MemoryTypes {
		r.MemoryTypeCounts[string(t)] = 0
	}
	for _, m := range s.entries {
		r.MemoryTypeCounts[string(m.MemoryType)]++
	}
	for _, p := range s.patterns {
		r.PatternSummaries[p.PatternID] = PatternSummary{
			Type:         p.PatternType,
			Frequency:    p.Frequency,
			Confidence:   p.Confidence,
			LastObserved: p.LastObserved,
		}
	}
	return r
}

// Stats combines the in-process counts with the backend's own view.
type Stats struct {
	Memories        int          `json:"memories"`
	Patterns        int          `json:"patterns"`
	LearningMoments int          `json:"learning_moments"`
	HistoryRecords  int          `json:"history_records"`
	PendingAccesses int          `json:"pending_accesses"`
	Backend         *store.Stats `json:"backend"`
}

// Stats returns store statistics.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	st := &Stats{
		Memories:        len(s.entries),
		Patterns:        len(s.patterns),
		LearningMoments: len(s.learning),
		HistoryRecords:  s.history,
		PendingAccesses: len(s.dirty),
	}
	s.mu.RUnlock()

	bs, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.Backend = bs
	return st, nil
}
