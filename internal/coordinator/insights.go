package coordinator

import (
	"slices"
	"time"

	"github.com/rcliao/emotion-memory/internal/memory"
	"github.com/rcliao/emotion-memory/internal/model"
)

const (
	// More corrections than this within a day suggests a gentler tone.
	correctionLimit = 2

	gentlerSuggestion    = "Consider increasing empathy and patience in responses"
	calmingSuggestion    = "Focus on calming and supportive communication"
	empatheticSuggestion = "Increase empathetic and understanding responses"
	energySuggestion     = "Maintain positive energy and enthusiasm"
)

// Rapport scores the most recent turn.
type Rapport struct {
	Score              float64 `json:"current_score"`
	EmotionalAlignment float64 `json:"emotional_alignment"`
	MemoryRelevance    float64 `json:"memory_relevance"`
	LearningEngagement float64 `json:"learning_engagement"`
	TotalInteractions  int     `json:"total_interactions"`
	LearningSessions   int     `json:"learning_sessions"`
}

// LearningMetrics summarizes feedback received in the last 24 hours.
type LearningMetrics struct {
	SuccessRate        float64 `json:"adaptation_success_rate"`
	EmotionalAccuracy  float64 `json:"emotional_accuracy"`
	TotalSessions      int     `json:"total_learning_sessions"`
	RecentInteractions int     `json:"recent_interactions"`
}

// Insights is the combined report of the store and the personality.
type Insights struct {
	EmotionalSummary      memory.SummaryReport `json:"emotional_summary"`
	Personality           PersonalitySummary   `json:"personality_summary"`
	Rapport               Rapport              `json:"rapport_metrics"`
	Learning              LearningMetrics      `json:"learning_metrics"`
	AdaptationSuggestions []string             `json:"adaptation_suggestions"`
}

// Insights reports the current state.
func (c *Coordinator) Insights() Insights {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := c.mem.Summary(memory.DefaultWindowHours)
	now := c.now()
	cutoff := now.Add(-24 * time.Hour)

	suggestions := c.mem.AdaptationSuggestions()
	add := func(s string) {
		if !slices.Contains(suggestions, s) {
			suggestions = append(suggestions, s)
		}
	}
	recent := 0
	for _, at := range c.corrections {
		if !at.Before(cutoff) {
			recent++
		}
	}
	if recent > correctionLimit {
		add(gentlerSuggestion)
	}
	switch summary.DominantEmotion {
	case model.Anxious, model.Stressed:
		add(calmingSuggestion)
	case model.Sad, model.Frustrated:
		add(empatheticSuggestion)
	case model.Excited, model.Happy:
		add(energySuggestion)
	}

	var lm LearningMetrics
	var positive int
	var confidence float64
	for _, s := range c.sessions {
		if s.at.Before(cutoff) {
			continue
		}
		lm.TotalSessions++
		confidence += s.confidence
		if s.positive {
			positive++
		}
	}
	if lm.TotalSessions > 0 {
		lm.SuccessRate = float64(positive) / float64(lm.TotalSessions)
		lm.EmotionalAccuracy = confidence / float64(lm.TotalSessions)
	}
	lm.RecentInteractions = min(c.interactions, recentInteractions)

	return Insights{
		EmotionalSummary:      summary,
		Personality:           c.personality(),
		Rapport:               c.rapport,
		Learning:              lm,
		AdaptationSuggestions: suggestions,
	}
}
