package memory

import (
	"context"

	"github.com/rcliao/emotion-memory/internal/model"
)

// Dump is a full copy of the store's records, used to move data between
// backends.
type Dump struct {
	Memories        []model.MemoryEntry    `json:"memories"`
	Patterns        []model.MemoryPattern  `json:"patterns"`
	LearningMoments []model.LearningMoment `json:"learning_moments"`
}

// Entries returns a full dump in insertion order.
func (s *MemoryStore) Entries() Dump {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Dump{
		Memories:        make([]model.MemoryEntry, 0, len(s.entries)),
		Patterns:        make([]model.MemoryPattern, 0, len(s.patterns)),
		LearningMoments: append([]model.LearningMoment{}, s.learning...),
	}
	for _, m := range s.entries {
		d.Memories = append(d.Memories, m.Clone())
	}
	for _, p := range s.patterns {
		d.Patterns = append(d.Patterns, p.Clone())
	}
	return d
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Memories        int `json:"memories"`
	Skipped         int `json:"skipped"`
	Patterns        int `json:"patterns"`
	LearningMoments int `json:"learning_moments"`
}

// Import restores a dump, keeping ids. Memories whose id already exists are
// skipped. When the dump carries patterns they replace patterns with the
// same id; otherwise patterns are derived from the imported memories the
// same way Store derives them. Everything commits in one transaction.
func (s *MemoryStore) Import(ctx context.Context, d Dump) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &ImportResult{}
	c := s.begin()
	now := s.now()

	for _, m := range d.Memories {
		if m.ID == "" || c.hasID(m.ID) {
			res.Skipped++
			continue
		}
		m = m.Clone()
		s.normalizeEntry(&m)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.LastAccessed.IsZero() {
			m.LastAccessed = m.CreatedAt
		}
		c.putEntry(m)
		c.history = append(c.history, model.HistoryRecord{MemoryID: m.ID, EmotionalContext: m.EmotionalContext.Clone()})
		if len(d.Patterns) == 0 {
			c.analyze(m, now)
		}
		res.Memories++
	}

	for _, p := range d.Patterns {
		if p.PatternID == "" {
			continue
		}
		p = p.Clone()
		s.normalizePattern(&p)
		c.putPattern(p)
		res.Patterns++
	}

	known := make(map[string]bool, len(s.learning))
	for _, lm := range s.learning {
		known[lm.ID] = true
	}
	for _, lm := range d.LearningMoments {
		if lm.ID == "" || known[lm.ID] {
			continue
		}
		known[lm.ID] = true
		c.learning = append(c.learning, lm)
		res.LearningMoments++
	}

	if err := s.commit(ctx, c); err != nil {
		return nil, err
	}
	if !d.empty() {
		s.obs.Log().Info().Int("memories", res.Memories).Int("skipped", res.Skipped).
			Int("patterns", res.Patterns).Msg("imported dump")
	}
	return res, nil
}

func (d Dump) empty() bool {
	return len(d.Memories) == 0 && len(d.Patterns) == 0 && len(d.LearningMoments) == 0
}
