// Package model defines the core memory data types.
package model

import (
	"maps"
	"slices"
	"time"
)

// EmotionalContext is the emotion attached to a memory or a recall query.
type EmotionalContext struct {
	PrimaryEmotion Emotion   `json:"primary_emotion"`
	Intensity      float64   `json:"intensity"`
	Confidence     float64   `json:"confidence"`
	Triggers       []string  `json:"triggers"`
	Responses      []string  `json:"responses"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEmotionalContext builds a context stamped with the current time.
// Intensity and confidence are clamped to [0, 1].
func NewEmotionalContext(e Emotion, intensity, confidence float64) EmotionalContext {
	return EmotionalContext{
		PrimaryEmotion: e,
		Intensity:      Clamp01(intensity),
		Confidence:     Clamp01(confidence),
		Triggers:       []string{},
		Responses:      []string{},
		Timestamp:      time.Now().UTC(),
	}
}

// Clamped returns a copy with intensity and confidence bounded to [0, 1].
func (c EmotionalContext) Clamped() EmotionalContext {
	c.Intensity = Clamp01(c.Intensity)
	c.Confidence = Clamp01(c.Confidence)
	return c
}

// Clone returns a deep copy.
func (c EmotionalContext) Clone() EmotionalContext {
	c.Triggers = slices.Clone(c.Triggers)
	c.Responses = slices.Clone(c.Responses)
	return c
}

// MemoryEntry represents a stored memory.
type MemoryEntry struct {
	ID               string           `json:"id"`
	Content          string           `json:"content"`
	MemoryType       MemoryType       `json:"memory_type"`
	EmotionalContext EmotionalContext `json:"emotional_context"`
	ImportanceScore  float64          `json:"importance_score"`
	AccessCount      int              `json:"access_count"`
	LastAccessed     time.Time        `json:"last_accessed"`
	CreatedAt        time.Time        `json:"created_at"`
	Tags             []string         `json:"tags"`
	RelatedMemories  []string         `json:"related_memories"`
	UserFeedback     map[string]any   `json:"user_feedback"`
}

// Clone returns a deep copy so callers never share state with the store.
func (m MemoryEntry) Clone() MemoryEntry {
	m.EmotionalContext = m.EmotionalContext.Clone()
	m.Tags = slices.Clone(m.Tags)
	m.RelatedMemories = slices.Clone(m.RelatedMemories)
	m.UserFeedback = maps.Clone(m.UserFeedback)
	return m
}

// HasTag reports whether the entry carries tag.
func (m MemoryEntry) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// Pattern types.
const (
	EmotionalPatternType    = "emotional_pattern"
	BehavioralPatternType   = "behavioral_pattern"
	NegativeInteractionType = "negative_interaction"
)

// MemoryPattern is an aggregate derived from repeated emotional or
// behavioral signals.
type MemoryPattern struct {
	PatternID             string           `json:"pattern_id"`
	PatternType           string           `json:"pattern_type"`
	Frequency             int              `json:"frequency"`
	EmotionalContext      EmotionalContext `json:"emotional_context"`
	Confidence            float64          `json:"confidence"`
	LastObserved          time.Time        `json:"last_observed"`
	AdaptationSuggestions []string         `json:"adaptation_suggestions"`
}

// Clone returns a deep copy.
func (p MemoryPattern) Clone() MemoryPattern {
	p.EmotionalContext = p.EmotionalContext.Clone()
	p.AdaptationSuggestions = slices.Clone(p.AdaptationSuggestions)
	return p
}

// LearningMoment records one observed interaction.
type LearningMoment struct {
	ID                string         `json:"id"`
	Timestamp         time.Time      `json:"timestamp"`
	InteractionType   string         `json:"interaction_type"`
	UserResponse      map[string]any `json:"user_response"`
	AIResponse        map[string]any `json:"ai_response"`
	EmotionalContext  map[string]any `json:"emotional_context"`
	SuccessIndicators []string       `json:"success_indicators"`
	AdaptationNeeded  bool           `json:"adaptation_needed"`
}

// HistoryRecord is one row of the emotional history log.
type HistoryRecord struct {
	MemoryID         string           `json:"memory_id"`
	EmotionalContext EmotionalContext `json:"emotional_context"`
}
