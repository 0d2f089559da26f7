package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/emotion-memory/internal/model"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteBackend(filepath.Join(dir, "test.db"), Options{})
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(id, content string, at time.Time) model.MemoryEntry {
	ec := model.NewEmotionalContext(model.Happy, 0.8, 0.9)
	ec.Timestamp = at
	ec.Triggers = []string{"positive_words"}
	return model.MemoryEntry{
		ID:               id,
		Content:          content,
		MemoryType:       model.EmotionalExperience,
		EmotionalContext: ec,
		ImportanceScore:  0.6,
		LastAccessed:     at,
		CreatedAt:        at,
		Tags:             []string{"work"},
		RelatedMemories:  []string{},
		UserFeedback:     map[string]any{"rating": 4.0},
	}
}

func testPattern(id string, at time.Time) model.MemoryPattern {
	ec := model.NewEmotionalContext(model.Happy, 0.5, 0.9)
	ec.Timestamp = at
	return model.MemoryPattern{
		PatternID:             id,
		PatternType:           model.EmotionalPatternType,
		Frequency:             1,
		EmotionalContext:      ec,
		Confidence:            0.5,
		LastObserved:          at,
		AdaptationSuggestions: []string{},
	}
}

func TestNewSQLiteBackendCreatesDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteBackend(dbPath, Options{})
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected db file at %s: %v", dbPath, err)
	}
	if s.Name() != "sqlite" || s.Location() != dbPath {
		t.Errorf("unexpected name/location: %s %s", s.Name(), s.Location())
	}
}

func TestLoadEmpty(t *testing.T) {
	s := newTestBackend(t)
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Memories) != 0 || len(snap.Patterns) != 0 || len(snap.Learning) != 0 || snap.HistoryCount != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestCommitAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	m := testEntry("emotional_experience_abcd1234_1", "User got promoted today!", at)
	err := s.Commit(ctx, Batch{
		Memories: []model.MemoryEntry{m},
		Patterns: []model.MemoryPattern{testPattern("emotion_happy", at)},
		History:  []model.HistoryRecord{{MemoryID: m.ID, EmotionalContext: m.EmotionalContext}},
		Learning: []model.LearningMoment{{ID: "lm1", Timestamp: at, InteractionType: "conversation"}},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(snap.Memories))
	}
	got := snap.Memories[0]
	if got.Content != m.Content || got.MemoryType != m.MemoryType {
		t.Errorf("unexpected memory: %+v", got)
	}
	if !got.CreatedAt.Equal(at) || !got.LastAccessed.Equal(at) {
		t.Errorf("timestamps not preserved: %v %v", got.CreatedAt, got.LastAccessed)
	}
	if got.EmotionalContext.PrimaryEmotion != model.Happy || got.EmotionalContext.Intensity != 0.8 {
		t.Errorf("emotional context not preserved: %+v", got.EmotionalContext)
	}
	if len(got.EmotionalContext.Triggers) != 1 || got.EmotionalContext.Triggers[0] != "positive_words" {
		t.Errorf("triggers not preserved: %v", got.EmotionalContext.Triggers)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "work" {
		t.Errorf("tags not preserved: %v", got.Tags)
	}
	if got.UserFeedback["rating"] != 4.0 {
		t.Errorf("feedback not preserved: %v", got.UserFeedback)
	}
	if len(snap.Patterns) != 1 || snap.Patterns[0].PatternID != "emotion_happy" {
		t.Errorf("unexpected patterns: %+v", snap.Patterns)
	}
	if len(snap.Learning) != 1 || snap.Learning[0].ID != "lm1" {
		t.Errorf("unexpected learning moments: %+v", snap.Learning)
	}
	if snap.HistoryCount != 1 {
		t.Errorf("expected 1 history row, got %d", snap.HistoryCount)
	}
}

func TestUpsertKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	at := time.Now().UTC()

	a := testEntry("a", "first", at)
	b := testEntry("b", "second", at)
	if err := s.Commit(ctx, Batch{Memories: []model.MemoryEntry{a, b}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	a.AccessCount = 7
	a.LastAccessed = at.Add(time.Hour)
	if err := s.Commit(ctx, Batch{Memories: []model.MemoryEntry{a}}); err != nil {
		t.Fatalf("commit update: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Memories) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(snap.Memories))
	}
	if snap.Memories[0].ID != "a" || snap.Memories[1].ID != "b" {
		t.Errorf("expected order a,b got %s,%s", snap.Memories[0].ID, snap.Memories[1].ID)
	}
	if snap.Memories[0].AccessCount != 7 {
		t.Errorf("expected access_count 7, got %d", snap.Memories[0].AccessCount)
	}
	if !snap.Memories[0].CreatedAt.Equal(at) {
		t.Errorf("created_at changed on update: %v", snap.Memories[0].CreatedAt)
	}
}

func TestLearningMomentsAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	at := time.Now().UTC()

	lm := model.LearningMoment{ID: "same", Timestamp: at, InteractionType: "first"}
	if err := s.Commit(ctx, Batch{Learning: []model.LearningMoment{lm}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	lm.InteractionType = "second"
	if err := s.Commit(ctx, Batch{Learning: []model.LearningMoment{lm}}); err != nil {
		t.Fatalf("commit duplicate: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Learning) != 1 || snap.Learning[0].InteractionType != "first" {
		t.Errorf("expected original learning moment kept, got %+v", snap.Learning)
	}
}

func TestCommitEmptyBatch(t *testing.T) {
	s := newTestBackend(t)
	if err := s.Commit(context.Background(), Batch{}); err != nil {
		t.Errorf("empty commit: %v", err)
	}
}

func TestCommitCanceledContext(t *testing.T) {
	s := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Commit(ctx, Batch{Memories: []model.MemoryEntry{testEntry("x", "y", time.Now())}})
	if err == nil {
		t.Fatal("expected error on canceled context")
	}
	if !IsStorageError(err) {
		t.Errorf("expected StorageError, got %T: %v", err, err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	at := time.Now().UTC()

	pref := testEntry("p", "likes tea", at)
	pref.MemoryType = model.PersonalPreference
	err := s.Commit(ctx, Batch{
		Memories: []model.MemoryEntry{testEntry("a", "one", at), testEntry("b", "two", at), pref},
		Patterns: []model.MemoryPattern{testPattern("emotion_happy", at)},
		History:  []model.HistoryRecord{{MemoryID: "a"}, {MemoryID: "b"}, {MemoryID: "p"}},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalMemories != 3 || st.TotalPatterns != 1 || st.HistoryRecords != 3 || st.LearningMoments != 0 {
		t.Errorf("unexpected counts: %+v", st)
	}
	if st.SizeBytes <= 0 {
		t.Errorf("expected positive db size, got %d", st.SizeBytes)
	}
	if len(st.MemoryTypes) != 2 {
		t.Fatalf("expected 2 type counts, got %+v", st.MemoryTypes)
	}
	if st.MemoryTypes[0].MemoryType != string(model.EmotionalExperience) || st.MemoryTypes[0].Count != 2 {
		t.Errorf("unexpected first type count: %+v", st.MemoryTypes[0])
	}
}

func TestSealedBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sealed.db")
	at := time.Now().UTC()

	s, err := NewSQLiteBackend(dbPath, Options{Passphrase: "correct horse"})
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	if err := s.Commit(ctx, Batch{Memories: []model.MemoryEntry{testEntry("a", "secret diary", at)}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	s.Close()

	raw, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("read db: %v", err)
	}
	if strings.Contains(string(raw), "secret diary") {
		t.Error("content stored in plaintext")
	}

	s, err = NewSQLiteBackend(dbPath, Options{Passphrase: "correct horse"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, err := s.Load(ctx)
	s.Close()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Memories) != 1 || snap.Memories[0].Content != "secret diary" {
		t.Errorf("unexpected memories: %+v", snap.Memories)
	}
}

func TestSealedBackendWrongPassphrase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sealed.db")
	s, err := NewSQLiteBackend(dbPath, Options{Passphrase: "right"})
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	s.Close()

	for _, pass := range []string{"wrong", ""} {
		_, err := NewSQLiteBackend(dbPath, Options{Passphrase: pass})
		if err == nil {
			t.Fatalf("passphrase %q: expected error", pass)
		}
		if !IsStorageError(err) {
			t.Errorf("passphrase %q: expected StorageError, got %T", pass, err)
		}
		if !errors.Is(err, ErrWrongPassphrase) {
			t.Errorf("passphrase %q: expected ErrWrongPassphrase, got %v", pass, err)
		}
	}
}
