package memory

import (
	"context"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/rcliao/emotion-memory/internal/model"
	"github.com/rcliao/emotion-memory/internal/observe"
)

// StoreParams holds parameters for storing a memory.
type StoreParams struct {
	Content          string
	MemoryType       model.MemoryType
	EmotionalContext model.EmotionalContext
	ImportanceScore  float64
	Tags             []string
}

// Store records a new memory, updates the derived patterns and persists
// everything in one backend transaction. It returns the new entry's id.
func (s *MemoryStore) Store(ctx context.Context, p StoreParams) (string, error) {
	if _, err := model.ParseMemoryType(string(p.MemoryType)); err != nil {
		return "", err
	}
	if _, err := model.ParseEmotion(string(p.EmotionalContext.PrimaryEmotion)); err != nil {
		return "", err
	}

	ctx, span := s.obs.StartSpan(ctx, "memory.store", "memory_type", string(p.MemoryType))
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.begin()
	m := c.stage(p, s.now())
	err := s.commit(ctx, c)
	observe.EndSpan(span, err)
	if err != nil {
		return "", err
	}

	s.obs.Log().Info().Str("memory_id", m.ID).Str("memory_type", string(m.MemoryType)).
		Str("emotion", string(m.EmotionalContext.PrimaryEmotion)).Msg("stored memory")
	return m.ID, nil
}

// stage builds a new entry, its history record and its pattern updates.
func (c *change) stage(p StoreParams, at time.Time) model.MemoryEntry {
	ec := p.EmotionalContext.Clamped().Clone()
	if ec.Timestamp.IsZero() {
		ec.Timestamp = at
	}
	if ec.Triggers == nil {
		ec.Triggers = []string{}
	}
	if ec.Responses == nil {
		ec.Responses = []string{}
	}

	m := model.MemoryEntry{
		ID:               entryID(p.MemoryType, p.Content, at, c.hasID),
		Content:          p.Content,
		MemoryType:       p.MemoryType,
		EmotionalContext: ec,
		ImportanceScore:  model.Clamp01(p.ImportanceScore),
		LastAccessed:     at,
		CreatedAt:        at,
		Tags:             append([]string{}, p.Tags...),
		RelatedMemories:  []string{},
		UserFeedback:     map[string]any{},
	}
	c.putEntry(m)
	c.history = append(c.history, model.HistoryRecord{MemoryID: m.ID, EmotionalContext: ec.Clone()})
	c.analyze(m, at)
	return m
}

// Get returns a copy of one entry without touching its access counters.
func (s *MemoryStore) Get(id string) (model.MemoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return model.MemoryEntry{}, false
	}
	return m.Clone(), true
}

// ListParams holds parameters for listing memories.
type ListParams struct {
	MemoryType model.MemoryType
	Tags       []string
	Limit      int
}

// List returns entries newest first, filtered by type and tags (all tags
// must match). A non-positive limit returns everything.
func (s *MemoryStore) List(p ListParams) []model.MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.MemoryEntry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		m := s.entries[i]
		if p.MemoryType != "" && m.MemoryType != p.MemoryType {
			continue
		}
		if !hasAllTags(m, p.Tags) {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

func hasAllTags(m *model.MemoryEntry, tags []string) bool {
	for _, t := range tags {
		if !m.HasTag(t) {
			return false
		}
	}
	return true
}

// update stages a modified copy of an existing entry and commits it.
// Caller holds the write lock.
func (s *MemoryStore) update(ctx context.Context, id string, fn func(*model.MemoryEntry)) error {
	cur, ok := s.byID[id]
	if !ok {
		return &model.ValidationError{Field: "memory_id", Value: id, Reason: "no such memory"}
	}
	m := cur.Clone()
	fn(&m)
	c := s.begin()
	c.putEntry(m)
	return s.commit(ctx, c)
}

// AttachFeedback merges feedback into the entry's user feedback map.
func (s *MemoryStore) AttachFeedback(ctx context.Context, id string, feedback map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(ctx, id, func(m *model.MemoryEntry) {
		if m.UserFeedback == nil {
			m.UserFeedback = map[string]any{}
		}
		maps.Copy(m.UserFeedback, feedback)
	})
}

// SetImportance replaces an entry's importance score.
func (s *MemoryStore) SetImportance(ctx context.Context, id string, score float64) error {
	if score < 0 || score > 1 || math.IsNaN(score) {
		return &model.ValidationError{Field: "importance_score", Value: strconv.FormatFloat(score, 'g', -1, 64), Reason: "must be within [0, 1]"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(ctx, id, func(m *model.MemoryEntry) {
		m.ImportanceScore = score
	})
}

// LinkMemories records relatedID as related to id. The target does not
// have to exist; linking twice is a no-op.
func (s *MemoryStore) LinkMemories(ctx context.Context, id, relatedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byID[id]; ok && slices.Contains(cur.RelatedMemories, relatedID) {
		return nil
	}
	return s.update(ctx, id, func(m *model.MemoryEntry) {
		m.RelatedMemories = append(m.RelatedMemories, relatedID)
	})
}
