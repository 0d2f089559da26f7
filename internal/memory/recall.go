package memory

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/emotion-memory/internal/model"
)

// Scoring weights.
const (
	wordMatchWeight   = 0.2
	emotionMatchBonus = 0.3
	intensityWindow   = 0.2
	recencyMax        = 0.1
	recencyHorizon    = 24 * time.Hour
	importanceWeight  = 0.3
	accessWeight      = 0.01
	accessCap         = 0.2
)

// RecallParams holds parameters for recall.
type RecallParams struct {
	Query string
	// EmotionalContext, when set, rewards entries with a similar emotion.
	EmotionalContext *model.EmotionalContext
	Limit            int
}

// Score is the per-term breakdown of an entry's relevance.
type Score struct {
	Content    float64 `json:"content"`
	Emotional  float64 `json:"emotional"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
	Frequency  float64 `json:"frequency"`
}

// Total is the sum of all terms, floored at zero.
func (s Score) Total() float64 {
	return math.Max(0, s.Content+s.Emotional+s.Recency+s.Importance+s.Frequency)
}

// ScoredEntry is a recalled entry with its score.
type ScoredEntry struct {
	Memory model.MemoryEntry `json:"memory"`
	Score  Score             `json:"score"`
	Total  float64           `json:"total"`
}

// score computes an entry's relevance. queryWords must already be
// lower-cased.
func score(m *model.MemoryEntry, queryWords []string, qctx *model.EmotionalContext, now time.Time) Score {
	var sc Score

	if len(queryWords) > 0 {
		words := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(m.Content)) {
			words[w] = struct{}{}
		}
		for _, w := range queryWords {
			if _, ok := words[w]; ok {
				sc.Content += wordMatchWeight
			}
		}
	}

	if qctx != nil {
		q, e := qctx.Clamped(), m.EmotionalContext.Clamped()
		if q.PrimaryEmotion == e.PrimaryEmotion {
			sc.Emotional += emotionMatchBonus
		}
		sc.Emotional += math.Max(0, intensityWindow-math.Abs(q.Intensity-e.Intensity))
	}

	age := now.Sub(m.LastAccessed).Seconds()
	sc.Recency = math.Max(0, recencyMax-age/recencyHorizon.Seconds())

	sc.Importance = model.Clamp01(m.ImportanceScore) * importanceWeight
	sc.Frequency = math.Min(accessCap, float64(m.AccessCount)*accessWeight)
	return sc
}

// Recall returns up to Limit entries ranked by relevance. Every entry whose
// content contains the query (case-insensitive) is marked accessed first,
// including entries that do not make the cut.
func (s *MemoryStore) Recall(ctx context.Context, p RecallParams) []model.MemoryEntry {
	scored := s.RecallScored(ctx, p)
	out := make([]model.MemoryEntry, len(scored))
	for i, r := range scored {
		out[i] = r.Memory
	}
	return out
}

// RecallScored is Recall with each entry's score breakdown.
func (s *MemoryStore) RecallScored(ctx context.Context, p RecallParams) []ScoredEntry {
	_, span := s.obs.StartSpan(ctx, "memory.recall", "limit", strconv.Itoa(p.Limit))
	defer span.End()

	if p.Limit <= 0 {
		return []ScoredEntry{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	needle := strings.ToLower(p.Query)
	touched := 0
	for _, m := range s.entries {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			m.AccessCount++
			m.LastAccessed = now
			s.dirty[m.ID] = struct{}{}
			touched++
		}
	}

	queryWords := strings.Fields(needle)
	results := make([]ScoredEntry, len(s.entries))
	for i, m := range s.entries {
		sc := score(m, queryWords, p.EmotionalContext, now)
		results[i] = ScoredEntry{Score: sc, Total: sc.Total()}
	}
	// Stable sort over insertion order breaks ties deterministically.
	order := make([]int, len(s.entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].Total > results[order[b]].Total
	})

	if len(order) > p.Limit {
		order = order[:p.Limit]
	}
	out := make([]ScoredEntry, 0, len(order))
	for _, i := range order {
		r := results[i]
		r.Memory = s.entries[i].Clone()
		out = append(out, r)
	}

	s.obs.Log().Debug().Str("query", p.Query).Int("touched", touched).Int("returned", len(out)).Msg("recall")
	return out
}
