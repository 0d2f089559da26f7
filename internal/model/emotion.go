package model

import (
	"fmt"
	"math"
	"strings"
)

// Emotion is the primary emotional label attached to a memory or query.
type Emotion string

const (
	Happy      Emotion = "happy"
	Sad        Emotion = "sad"
	Angry      Emotion = "angry"
	Anxious    Emotion = "anxious"
	Excited    Emotion = "excited"
	Calm       Emotion = "calm"
	Frustrated Emotion = "frustrated"
	Content    Emotion = "content"
	Stressed   Emotion = "stressed"
	Neutral    Emotion = "neutral"
)

// Emotions lists every valid emotion in declaration order.
var Emotions = []Emotion{Happy, Sad, Angry, Anxious, Excited, Calm, Frustrated, Content, Stressed, Neutral}

// ParseEmotion parses a label into an Emotion. It never falls back to a
// default; unknown labels yield a *ValidationError.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Emotions {
		if v == e {
			return e, nil
		}
	}
	return "", &ValidationError{Field: "emotion", Value: s, Reason: "unknown emotion"}
}

// MemoryType classifies what a memory entry records.
type MemoryType string

const (
	EmotionalExperience  MemoryType = "emotional_experience"
	PersonalPreference   MemoryType = "personal_preference"
	ConversationContext  MemoryType = "conversation_context"
	BehavioralPattern    MemoryType = "behavioral_pattern"
	EmotionalTrigger     MemoryType = "emotional_trigger"
	RapportBuilder       MemoryType = "rapport_builder"
	LearningMomentMemory MemoryType = "learning_moment"
	AdaptationPoint      MemoryType = "adaptation_point"
)

// MemoryTypes lists every valid memory type in declaration order.
var MemoryTypes = []MemoryType{
	EmotionalExperience, PersonalPreference, ConversationContext, BehavioralPattern,
	EmotionalTrigger, RapportBuilder, LearningMomentMemory, AdaptationPoint,
}

// ParseMemoryType parses a memory type name. Unknown names yield a
// *ValidationError.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range MemoryTypes {
		if v == t {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "memory_type", Value: s, Reason: "unknown memory type"}
}

// ValidationError reports a caller-supplied value outside a closed set or
// range, or a reference to an unknown record.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
