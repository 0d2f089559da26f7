// Package memory implements the emotional memory store: an in-process index
// of memory entries and derived patterns, kept in step with a persistence
// backend, with relevance-scored recall and summary reporting.
package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/emotion-memory/internal/model"
	"github.com/rcliao/emotion-memory/internal/observe"
	"github.com/rcliao/emotion-memory/internal/store"
)

// DefaultImportance is the importance used when the caller has no opinion.
const DefaultImportance = 0.5

// Options configures a MemoryStore.
type Options struct {
	// Observer receives logs and spans. Nil discards logs.
	Observer *observe.Observer

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// MemoryStore owns all memory entries and patterns. Every method is safe for
// concurrent use; callers only ever see copies.
type MemoryStore struct {
	mu      sync.RWMutex
	backend store.Backend
	obs     *observe.Observer
	now     func() time.Time
	entropy *rand.Rand

	entries   []*model.MemoryEntry
	byID      map[string]*model.MemoryEntry
	patterns  []*model.MemoryPattern
	byPattern map[string]*model.MemoryPattern
	learning  []model.LearningMoment
	history   int

	// dirty holds ids whose access counters changed since the last commit.
	dirty map[string]struct{}
}

// Open loads every persisted record from backend and returns a ready store.
func Open(ctx context.Context, backend store.Backend, opts Options) (*MemoryStore, error) {
	s := &MemoryStore{
		backend:   backend,
		obs:       opts.Observer,
		now:       opts.Now,
		byID:      make(map[string]*model.MemoryEntry),
		byPattern: make(map[string]*model.MemoryPattern),
		dirty:     make(map[string]struct{}),
	}
	if s.obs == nil {
		s.obs = observe.Nop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	s.entropy = rand.New(rand.NewSource(s.now().UnixNano()))

	ctx, span := s.obs.StartSpan(ctx, "memory.open", "backend", backend.Name())
	snap, err := backend.Load(ctx)
	observe.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	for i := range snap.Memories {
		m := snap.Memories[i]
		s.normalizeEntry(&m)
		s.defaultTimes(&m)
		if _, dup := s.byID[m.ID]; dup {
			s.obs.Log().Warn().Str("memory_id", m.ID).Msg("duplicate memory id on load, keeping first")
			continue
		}
		s.entries = append(s.entries, &m)
		s.byID[m.ID] = &m
	}
	for i := range snap.Patterns {
		p := snap.Patterns[i]
		s.normalizePattern(&p)
		if p.LastObserved.IsZero() {
			s.obs.Log().Warn().Str("pattern_id", p.PatternID).Msg("pattern has no last_observed time")
		}
		if _, dup := s.byPattern[p.PatternID]; dup {
			continue
		}
		s.patterns = append(s.patterns, &p)
		s.byPattern[p.PatternID] = &p
	}
	s.learning = snap.Learning
	s.history = snap.HistoryCount

	s.obs.Log().Info().
		Str("backend", backend.Name()).
		Int("memories", len(s.entries)).
		Int("patterns", len(s.patterns)).
		Int("learning_moments", len(s.learning)).
		Msg("memory store loaded")
	return s, nil
}

// normalizeEntry defaults data written by older or foreign writers so that
// scoring never has to fail on it.
func (s *MemoryStore) normalizeEntry(m *model.MemoryEntry) {
	if _, err := model.ParseMemoryType(string(m.MemoryType)); err != nil {
		s.obs.Log().Warn().Str("memory_id", m.ID).Str("memory_type", string(m.MemoryType)).
			Msg("unknown memory type, defaulting to conversation_context")
		m.MemoryType = model.ConversationContext
	}
	s.normalizeContext(&m.EmotionalContext, m.ID)
	m.ImportanceScore = model.Clamp01(m.ImportanceScore)
	if m.AccessCount < 0 {
		m.AccessCount = 0
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.RelatedMemories == nil {
		m.RelatedMemories = []string{}
	}
	if m.UserFeedback == nil {
		m.UserFeedback = map[string]any{}
	}
}

// defaultTimes fills a missing creation or access time from the other one.
// Entries with neither keep zero times and score no recency.
func (s *MemoryStore) defaultTimes(m *model.MemoryEntry) {
	if !m.CreatedAt.IsZero() && !m.LastAccessed.IsZero() {
		return
	}
	s.obs.Log().Warn().Str("memory_id", m.ID).Msg("missing timestamp, defaulting")
	switch {
	case m.CreatedAt.IsZero() && m.LastAccessed.IsZero():
	case m.CreatedAt.IsZero():
		m.CreatedAt = m.LastAccessed
	default:
		m.LastAccessed = m.CreatedAt
	}
}

func (s *MemoryStore) normalizePattern(p *model.MemoryPattern) {
	s.normalizeContext(&p.EmotionalContext, p.PatternID)
	if p.Frequency < 1 {
		p.Frequency = 1
	}
	p.Confidence = model.Clamp01(p.Confidence)
	if p.AdaptationSuggestions == nil {
		p.AdaptationSuggestions = []string{}
	}
}

func (s *MemoryStore) normalizeContext(c *model.EmotionalContext, owner string) {
	if _, err := model.ParseEmotion(string(c.PrimaryEmotion)); err != nil {
		s.obs.Log().Warn().Str("id", owner).Str("emotion", string(c.PrimaryEmotion)).
			Msg("unknown emotion, defaulting to neutral")
		c.PrimaryEmotion = model.Neutral
	}
	*c = c.Clamped()
	if c.Triggers == nil {
		c.Triggers = []string{}
	}
	if c.Responses == nil {
		c.Responses = []string{}
	}
}

func (s *MemoryStore) newULID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

// change is a set of writes staged against the current index. Nothing in
// the index moves until the backend has committed the change.
type change struct {
	s        *MemoryStore
	entries  []model.MemoryEntry
	staged   map[string]int
	patterns []model.MemoryPattern
	pstaged  map[string]int
	history  []model.HistoryRecord
	learning []model.LearningMoment
}

func (s *MemoryStore) begin() *change {
	return &change{s: s, staged: map[string]int{}, pstaged: map[string]int{}}
}

// hasID reports whether id is taken in the index or in this change.
func (c *change) hasID(id string) bool {
	if _, ok := c.s.byID[id]; ok {
		return true
	}
	_, ok := c.staged[id]
	return ok
}

func (c *change) putEntry(m model.MemoryEntry) {
	if i, ok := c.staged[m.ID]; ok {
		c.entries[i] = m
		return
	}
	c.staged[m.ID] = len(c.entries)
	c.entries = append(c.entries, m)
}

// pattern returns the current value of a pattern, preferring staged writes.
func (c *change) pattern(id string) (model.MemoryPattern, bool) {
	if i, ok := c.pstaged[id]; ok {
		return c.patterns[i].Clone(), true
	}
	if p, ok := c.s.byPattern[id]; ok {
		return p.Clone(), true
	}
	return model.MemoryPattern{}, false
}

func (c *change) putPattern(p model.MemoryPattern) {
	if i, ok := c.pstaged[p.PatternID]; ok {
		c.patterns[i] = p
		return
	}
	c.pstaged[p.PatternID] = len(c.patterns)
	c.patterns = append(c.patterns, p)
}

// batch builds the backend write, carrying along any entries whose access
// counters changed since the last commit.
func (c *change) batch() store.Batch {
	var b store.Batch
	for _, e := range c.s.entries {
		if _, ok := c.s.dirty[e.ID]; !ok {
			continue
		}
		if _, ok := c.staged[e.ID]; ok {
			continue
		}
		b.Memories = append(b.Memories, e.Clone())
	}
	b.Memories = append(b.Memories, c.entries...)
	b.Patterns = c.patterns
	b.History = c.history
	b.Learning = c.learning
	return b
}

// commit persists the change and then applies it to the index. On error the
// index is left exactly as it was. Caller holds the write lock.
func (s *MemoryStore) commit(ctx context.Context, c *change) error {
	if err := s.backend.Commit(ctx, c.batch()); err != nil {
		s.obs.Log().Error().Err(err).Str("backend", s.backend.Name()).Msg("commit failed")
		return err
	}

	for _, m := range c.entries {
		m := m.Clone()
		if cur, ok := s.byID[m.ID]; ok {
			*cur = m
			continue
		}
		s.entries = append(s.entries, &m)
		s.byID[m.ID] = &m
	}
	for _, p := range c.patterns {
		p := p.Clone()
		if cur, ok := s.byPattern[p.PatternID]; ok {
			*cur = p
			continue
		}
		s.patterns = append(s.patterns, &p)
		s.byPattern[p.PatternID] = &p
	}
	s.history += len(c.history)
	s.learning = append(s.learning, c.learning...)
	clear(s.dirty)
	return nil
}

// Flush persists access counters touched by recall since the last write.
func (s *MemoryStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	return s.commit(ctx, s.begin())
}

// Close flushes pending access counters and closes the backend.
func (s *MemoryStore) Close(ctx context.Context) error {
	ferr := s.Flush(ctx)
	cerr := s.backend.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// Backend returns the persistence backend.
func (s *MemoryStore) Backend() store.Backend {
	return s.backend
}
