package memory

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/emotion-memory/internal/model"
	"github.com/rcliao/emotion-memory/internal/observe"
	"github.com/rcliao/emotion-memory/internal/store"
)

// fakeBackend keeps committed batches in memory and can be told to fail.
type fakeBackend struct {
	mu      sync.Mutex
	snap    store.Snapshot
	commits int
	fail    error
}

func (b *fakeBackend) Load(ctx context.Context) (*store.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.snap
	return &snap, nil
}

func (b *fakeBackend) Commit(ctx context.Context, batch store.Batch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.commits++
	for _, m := range batch.Memories {
		replaced := false
		for i := range b.snap.Memories {
			if b.snap.Memories[i].ID == m.ID {
				b.snap.Memories[i] = m.Clone()
				replaced = true
			}
		}
		if !replaced {
			b.snap.Memories = append(b.snap.Memories, m.Clone())
		}
	}
	for _, p := range batch.Patterns {
		replaced := false
		for i := range b.snap.Patterns {
			if b.snap.Patterns[i].PatternID == p.PatternID {
				b.snap.Patterns[i] = p.Clone()
				replaced = true
			}
		}
		if !replaced {
			b.snap.Patterns = append(b.snap.Patterns, p.Clone())
		}
	}
	b.snap.HistoryCount += len(batch.History)
	b.snap.Learning = append(b.snap.Learning, batch.Learning...)
	return nil
}

func (b *fakeBackend) Name() string     { return "fake" }
func (b *fakeBackend) Location() string { return "memory" }
func (b *fakeBackend) Close() error     { return nil }

func (b *fakeBackend) Stats(ctx context.Context) (*store.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &store.Stats{Backend: "fake", TotalMemories: len(b.snap.Memories), TotalPatterns: len(b.snap.Patterns)}, nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func newTestStore(t *testing.T) (*MemoryStore, *fakeBackend, *fakeClock) {
	t.Helper()
	b := &fakeBackend{}
	clk := newClock()
	s, err := Open(context.Background(), b, Options{Now: clk.Now})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, b, clk
}

func emo(e model.Emotion, intensity, confidence float64) model.EmotionalContext {
	return model.NewEmotionalContext(e, intensity, confidence)
}

func mustStore(t *testing.T, s *MemoryStore, content string, typ model.MemoryType, ec model.EmotionalContext, importance float64) string {
	t.Helper()
	id, err := s.Store(context.Background(), StoreParams{
		Content: content, MemoryType: typ, EmotionalContext: ec, ImportanceScore: importance,
	})
	if err != nil {
		t.Fatalf("store %q: %v", content, err)
	}
	return id
}

func TestStoreAndGet(t *testing.T) {
	s, b, clk := newTestStore(t)

	id := mustStore(t, s, "hello", model.EmotionalExperience, emo(model.Happy, 0.8, 0.9), DefaultImportance)
	want := "emotional_experience_5d41402a_" + strconv.FormatInt(clk.t.UnixMilli(), 10)
	if id != want {
		t.Errorf("expected id %s, got %s", want, id)
	}

	m, ok := s.Get(id)
	if !ok {
		t.Fatal("expected entry")
	}
	if m.Content != "hello" || m.ImportanceScore != 0.5 || m.AccessCount != 0 {
		t.Errorf("unexpected entry: %+v", m)
	}
	if !m.CreatedAt.Equal(clk.t) || !m.LastAccessed.Equal(clk.t) {
		t.Errorf("timestamps: created %v accessed %v", m.CreatedAt, m.LastAccessed)
	}
	if b.commits != 1 || len(b.snap.Memories) != 1 || b.snap.HistoryCount != 1 {
		t.Errorf("expected one committed memory and history row, got %+v commits=%d", b.snap, b.commits)
	}

	// Mutating the copy must not leak into the store.
	m.Tags = append(m.Tags, "leak")
	again, _ := s.Get(id)
	if again.HasTag("leak") {
		t.Error("Get returned shared state")
	}
}

func TestStoreClampsNonFiniteValues(t *testing.T) {
	ctx := context.Background()
	b, err := store.NewSQLiteBackend(filepath.Join(t.TempDir(), "memory.db"), store.Options{})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	s, err := Open(ctx, b, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(ctx)

	tests := []struct {
		name       string
		intensity  float64
		confidence float64
		want       float64
	}{
		{"above one", 1.5, 0.8, 1},
		{"positive infinity", math.Inf(1), 0.8, 1},
		{"negative infinity", math.Inf(-1), 0.8, 0},
		{"not a number", math.NaN(), math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := model.EmotionalContext{PrimaryEmotion: model.Anxious, Intensity: tt.intensity, Confidence: tt.confidence}
			id, err := s.Store(ctx, StoreParams{
				Content: "odd reading " + tt.name, MemoryType: model.EmotionalExperience, EmotionalContext: ec, ImportanceScore: 0.5,
			})
			if err != nil {
				t.Fatalf("store: %v", err)
			}
			m, _ := s.Get(id)
			got := m.EmotionalContext
			if got.Intensity != tt.want {
				t.Errorf("expected intensity %v, got %v", tt.want, got.Intensity)
			}
			if got.Confidence < 0 || got.Confidence > 1 || math.IsNaN(got.Confidence) {
				t.Errorf("confidence out of range: %v", got.Confidence)
			}
		})
	}
}

func TestStoreRejectsUnknownEnums(t *testing.T) {
	s, b, _ := newTestStore(t)

	_, err := s.Store(context.Background(), StoreParams{Content: "x", MemoryType: "dream", EmotionalContext: emo(model.Happy, 1, 1)})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for memory type, got %v", err)
	}
	_, err = s.Store(context.Background(), StoreParams{
		Content: "x", MemoryType: model.EmotionalExperience,
		EmotionalContext: model.EmotionalContext{PrimaryEmotion: "ecstatic"},
	})
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for emotion, got %v", err)
	}
	if b.commits != 0 {
		t.Errorf("expected no commits, got %d", b.commits)
	}
}

func TestIDsUniqueAtSameMillisecond(t *testing.T) {
	s, _, _ := newTestStore(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := mustStore(t, s, "same content", model.ConversationContext, emo(model.Neutral, 0.5, 0.5), 0.5)
		if seen[id] {
			t.Fatalf("duplicate id %s at iteration %d", id, i)
		}
		seen[id] = true
	}
	if got := len(s.List(ListParams{})); got != 50 {
		t.Errorf("expected 50 entries, got %d", got)
	}
}

func TestEntryIDSuffixes(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	taken := map[string]bool{}
	has := func(id string) bool { return taken[id] }

	first := entryID(model.RapportBuilder, "hi", at, has)
	taken[first] = true
	second := entryID(model.RapportBuilder, "hi", at, has)
	taken[second] = true
	third := entryID(model.RapportBuilder, "hi", at, has)

	if second != first+"_1" || third != first+"_2" {
		t.Errorf("unexpected suffixes: %s %s %s", first, second, third)
	}
}

func TestBehaviorBucketIsStable(t *testing.T) {
	a := behaviorBucket("user interrupts when frustrated")
	b := behaviorBucket("user interrupts when frustrated")
	if a != b {
		t.Errorf("bucket not deterministic: %d vs %d", a, b)
	}
	if a >= behaviorBuckets {
		t.Errorf("bucket %d out of range", a)
	}
	// FNV-1a 32 of the empty string is the offset basis 2166136261.
	if got := behaviorBucket(""); got != 2166136261%behaviorBuckets {
		t.Errorf("empty bucket: got %d", got)
	}
}

func TestFailingBackendLeavesStateUnchanged(t *testing.T) {
	s, b, _ := newTestStore(t)
	mustStore(t, s, "first", model.EmotionalExperience, emo(model.Happy, 0.2, 0.9), 0.5)
	before := s.Patterns()

	b.fail = &store.StorageError{Op: "commit", Err: errors.New("disk full")}
	_, err := s.Store(context.Background(), StoreParams{
		Content: "second", MemoryType: model.BehavioralPattern, EmotionalContext: emo(model.Happy, 0.8, 0.9),
	})
	if !store.IsStorageError(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}

	if got := len(s.List(ListParams{})); got != 1 {
		t.Errorf("expected 1 entry after failed store, got %d", got)
	}
	after := s.Patterns()
	if len(after) != len(before) {
		t.Fatalf("pattern count changed: %d -> %d", len(before), len(after))
	}
	if after[0].Frequency != 1 || after[0].EmotionalContext.Intensity != 0.2 {
		t.Errorf("pattern mutated by failed store: %+v", after[0])
	}
	if st, _ := s.Stats(context.Background()); st.HistoryRecords != 1 {
		t.Errorf("history grew on failure: %d", st.HistoryRecords)
	}

	err = s.LearnFromInteraction(context.Background(), model.Interaction{AdaptationNeeded: true})
	if !store.IsStorageError(err) {
		t.Errorf("expected StorageError from learn, got %v", err)
	}
	if len(s.LearningMoments()) != 0 {
		t.Error("learning moment recorded despite failure")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	clk := newClock()

	open := func() *MemoryStore {
		b, err := store.NewSQLiteBackend(dbPath, store.Options{})
		if err != nil {
			t.Fatalf("backend: %v", err)
		}
		s, err := Open(ctx, b, Options{Now: clk.Now})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	}

	s := open()
	id := mustStore(t, s, "likes green tea", model.PersonalPreference, emo(model.Content, 0.4, 0.8), 0.7)
	mustStore(t, s, "snaps when rushed", model.BehavioralPattern, emo(model.Stressed, 0.9, 0.6), 0.6)
	if err := s.LearnFromInteraction(ctx, model.Interaction{UserResponse: map[string]any{"satisfaction": 0.2}}); err != nil {
		t.Fatalf("learn: %v", err)
	}
	clk.Advance(time.Minute)
	s.Recall(ctx, RecallParams{Query: "tea", Limit: 5})
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = open()
	defer s.Close(ctx)

	m, ok := s.Get(id)
	if !ok {
		t.Fatalf("entry %s lost across restart", id)
	}
	if m.AccessCount != 1 || !m.LastAccessed.Equal(clk.t) {
		t.Errorf("access counters not flushed: count=%d last=%v", m.AccessCount, m.LastAccessed)
	}
	if len(s.List(ListParams{})) != 2 {
		t.Errorf("expected 2 entries after restart")
	}
	if got := len(s.Patterns()); got != 4 {
		t.Errorf("expected 4 patterns (2 emotional, 1 behavioral, 1 negative), got %d", got)
	}
	if got := len(s.LearningMoments()); got != 1 {
		t.Errorf("expected 1 learning moment, got %d", got)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.HistoryRecords != 2 || st.Backend.TotalMemories != 2 {
		t.Errorf("unexpected stats: %+v backend=%+v", st, st.Backend)
	}
}

func TestLoadDefaultsUnreadableTimestamps(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	clk := newClock()

	b, err := store.NewSQLiteBackend(dbPath, store.Options{})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	s, err := Open(ctx, b, Options{Now: clk.Now})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id := mustStore(t, s, "garbled row", model.ConversationContext, emo(model.Calm, 0.3, 0.6), 0.5)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("raw open: %v", err)
	}
	if _, err := db.Exec(`UPDATE memories SET created_at = 'not a time' WHERE id = ?`, id); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	db.Close()

	b, err = store.NewSQLiteBackend(dbPath, store.Options{})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	logs := &bytes.Buffer{}
	s, err = Open(ctx, b, Options{Now: clk.Now, Observer: observe.New(logs, false)})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close(ctx)

	m, ok := s.Get(id)
	if !ok {
		t.Fatal("entry lost")
	}
	if !m.CreatedAt.Equal(clk.t) || !m.LastAccessed.Equal(clk.t) {
		t.Errorf("expected created_at defaulted to last_accessed, got created %v accessed %v", m.CreatedAt, m.LastAccessed)
	}
	if !strings.Contains(logs.String(), "missing timestamp") {
		t.Errorf("expected a warning, got %q", logs.String())
	}
}

func TestLoadDefaultsUnknownValues(t *testing.T) {
	b := &fakeBackend{}
	at := time.Now().UTC()
	b.snap.Memories = []model.MemoryEntry{{
		ID:               "legacy",
		Content:          "from an older schema",
		MemoryType:       "dream",
		EmotionalContext: model.EmotionalContext{PrimaryEmotion: "ecstatic", Intensity: 3, Confidence: -1},
		ImportanceScore:  7,
		LastAccessed:     at,
		CreatedAt:        at,
	}}
	b.snap.Patterns = []model.MemoryPattern{{PatternID: "emotion_ecstatic", PatternType: model.EmotionalPatternType}}

	s, err := Open(context.Background(), b, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m, _ := s.Get("legacy")
	if m.MemoryType != model.ConversationContext {
		t.Errorf("expected conversation_context, got %s", m.MemoryType)
	}
	if m.EmotionalContext.PrimaryEmotion != model.Neutral {
		t.Errorf("expected neutral, got %s", m.EmotionalContext.PrimaryEmotion)
	}
	if m.EmotionalContext.Intensity != 1 || m.EmotionalContext.Confidence != 0 || m.ImportanceScore != 1 {
		t.Errorf("expected clamped values, got %+v importance=%v", m.EmotionalContext, m.ImportanceScore)
	}
	if m.Tags == nil || m.UserFeedback == nil || m.RelatedMemories == nil {
		t.Error("expected optional fields defaulted")
	}
	p := s.Patterns()[0]
	if p.Frequency != 1 || p.EmotionalContext.PrimaryEmotion != model.Neutral {
		t.Errorf("pattern not defaulted: %+v", p)
	}

	// Scoring and reporting must work on the defaulted data.
	if got := s.Recall(context.Background(), RecallParams{Query: "older", Limit: 3}); len(got) != 1 {
		t.Errorf("expected 1 recall result, got %d", len(got))
	}
	_ = s.Export()
}

func TestExplicitMutators(t *testing.T) {
	ctx := context.Background()
	s, b, _ := newTestStore(t)
	id := mustStore(t, s, "birthday in May", model.PersonalPreference, emo(model.Happy, 0.6, 0.8), 0.4)

	if err := s.AttachFeedback(ctx, id, map[string]any{"helpful": true}); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if err := s.AttachFeedback(ctx, id, map[string]any{"rating": 5.0}); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if err := s.SetImportance(ctx, id, 0.9); err != nil {
		t.Fatalf("importance: %v", err)
	}
	if err := s.LinkMemories(ctx, id, "missing_memory"); err != nil {
		t.Fatalf("link dangling: %v", err)
	}
	if err := s.LinkMemories(ctx, id, "missing_memory"); err != nil {
		t.Fatalf("link twice: %v", err)
	}

	m, _ := s.Get(id)
	if m.UserFeedback["helpful"] != true || m.UserFeedback["rating"] != 5.0 {
		t.Errorf("feedback not merged: %v", m.UserFeedback)
	}
	if m.ImportanceScore != 0.9 {
		t.Errorf("expected importance 0.9, got %v", m.ImportanceScore)
	}
	if len(m.RelatedMemories) != 1 || m.RelatedMemories[0] != "missing_memory" {
		t.Errorf("unexpected related memories: %v", m.RelatedMemories)
	}
	if b.snap.Memories[0].ImportanceScore != 0.9 {
		t.Error("importance change not persisted")
	}

	var ve *model.ValidationError
	if err := s.SetImportance(ctx, "nope", 0.5); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for unknown id, got %v", err)
	}
	if err := s.SetImportance(ctx, id, 1.5); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for range, got %v", err)
	}
	if err := s.AttachFeedback(ctx, "nope", nil); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if err := s.SetPatternConfidence(ctx, "emotion_happy", 0.95); err != nil {
		t.Fatalf("set confidence: %v", err)
	}
	if p := s.Patterns()[0]; p.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", p.Confidence)
	}
	if err := s.SetPatternConfidence(ctx, "emotion_sad", 0.5); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for unknown pattern, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	s, _, clk := newTestStore(t)
	ctx := context.Background()

	s.Store(ctx, StoreParams{Content: "a", MemoryType: model.PersonalPreference, EmotionalContext: emo(model.Calm, 0.3, 0.5), Tags: []string{"food"}})
	clk.Advance(time.Second)
	s.Store(ctx, StoreParams{Content: "b", MemoryType: model.PersonalPreference, EmotionalContext: emo(model.Calm, 0.3, 0.5), Tags: []string{"food", "sweet"}})
	clk.Advance(time.Second)
	s.Store(ctx, StoreParams{Content: "c", MemoryType: model.EmotionalTrigger, EmotionalContext: emo(model.Angry, 0.9, 0.5)})

	all := s.List(ListParams{})
	if len(all) != 3 || all[0].Content != "c" || all[2].Content != "a" {
		t.Errorf("expected newest first, got %v", contents(all))
	}
	prefs := s.List(ListParams{MemoryType: model.PersonalPreference})
	if len(prefs) != 2 {
		t.Errorf("expected 2 preferences, got %d", len(prefs))
	}
	sweet := s.List(ListParams{Tags: []string{"food", "sweet"}})
	if len(sweet) != 1 || sweet[0].Content != "b" {
		t.Errorf("expected only b, got %v", contents(sweet))
	}
	if got := s.List(ListParams{Limit: 2}); len(got) != 2 {
		t.Errorf("expected limit 2, got %d", len(got))
	}
}

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newTestStore(t)
	mustStore(t, src, "went hiking", model.EmotionalExperience, emo(model.Excited, 0.7, 0.9), 0.6)
	mustStore(t, src, "taps desk when nervous", model.BehavioralPattern, emo(model.Anxious, 0.5, 0.6), 0.5)
	src.LearnFromInteraction(ctx, model.Interaction{UserResponse: map[string]any{"satisfaction": 0.1}})
	dump := src.Entries()

	dst, _, _ := newTestStore(t)
	res, err := dst.Import(ctx, dump)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Memories != 2 || res.Patterns != len(dump.Patterns) || res.LearningMoments != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	for _, m := range dump.Memories {
		if _, ok := dst.Get(m.ID); !ok {
			t.Errorf("id %s not preserved", m.ID)
		}
	}
	if got := dst.Patterns(); len(got) != len(dump.Patterns) || got[0].Frequency != dump.Patterns[0].Frequency {
		t.Errorf("patterns not restored: %+v", got)
	}

	again, err := dst.Import(ctx, dump)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if again.Memories != 0 || again.Skipped != 2 || again.LearningMoments != 0 {
		t.Errorf("expected duplicates skipped, got %+v", again)
	}
}

func TestImportDerivesPatternsWithoutDumpPatterns(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)
	d := Dump{Memories: []model.MemoryEntry{
		{ID: "m1", Content: "one", MemoryType: model.EmotionalExperience, EmotionalContext: emo(model.Sad, 0.2, 0.5), CreatedAt: clk.t},
		{ID: "m2", Content: "two", MemoryType: model.EmotionalExperience, EmotionalContext: emo(model.Sad, 0.8, 0.5), CreatedAt: clk.t},
	}}
	if _, err := s.Import(ctx, d); err != nil {
		t.Fatalf("import: %v", err)
	}
	ps := s.Patterns()
	if len(ps) != 1 || ps[0].PatternID != "emotion_sad" || ps[0].Frequency != 2 || ps[0].EmotionalContext.Intensity != 0.5 {
		t.Errorf("unexpected derived patterns: %+v", ps)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	mustStore(t, s, "shared topic", model.ConversationContext, emo(model.Neutral, 0.5, 0.5), 0.5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Recall(ctx, RecallParams{Query: "shared", Limit: 1})
			s.Summary(24)
			s.Export()
		}()
	}
	wg.Wait()

	got := s.List(ListParams{})
	if got[0].AccessCount != 20 {
		t.Errorf("expected 20 accesses, got %d", got[0].AccessCount)
	}
}

func contents(ms []model.MemoryEntry) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Content
	}
	return out
}
