package model

import (
	"fmt"
	"maps"
	"time"

	"github.com/tidwall/gjson"
)

// Interaction is an observed exchange fed to the learning loop. The nested
// maps are opaque to the store apart from the keys read by the accessors
// below.
type Interaction struct {
	Type              string         `json:"type"`
	UserResponse      map[string]any `json:"user_response"`
	AIResponse        map[string]any `json:"ai_response"`
	EmotionalContext  map[string]any `json:"emotional_context"`
	SuccessIndicators []string       `json:"success_indicators"`
	AdaptationNeeded  bool           `json:"adaptation_needed"`
}

// ParseInteraction decodes an interaction record from JSON. Missing fields
// are left at their zero values; an unknown emotion label is rejected.
func ParseInteraction(data []byte) (Interaction, error) {
	if !gjson.ValidBytes(data) {
		return Interaction{}, &ValidationError{Field: "interaction", Reason: "malformed JSON"}
	}
	root := gjson.ParseBytes(data)

	in := Interaction{
		Type:             root.Get("type").String(),
		UserResponse:     objectOf(root.Get("user_response")),
		AIResponse:       objectOf(root.Get("ai_response")),
		EmotionalContext: objectOf(root.Get("emotional_context")),
		AdaptationNeeded: root.Get("adaptation_needed").Bool(),
	}
	for _, v := range root.Get("success_indicators").Array() {
		in.SuccessIndicators = append(in.SuccessIndicators, v.String())
	}

	if label := root.Get("emotional_context.emotion"); label.Exists() {
		if _, err := ParseEmotion(label.String()); err != nil {
			return Interaction{}, err
		}
	}
	return in, nil
}

func objectOf(r gjson.Result) map[string]any {
	if !r.IsObject() {
		return map[string]any{}
	}
	m, ok := r.Value().(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// InteractionType returns the interaction type, defaulting to "conversation".
func (in Interaction) InteractionType() string {
	if in.Type == "" {
		return "conversation"
	}
	return in.Type
}

// Satisfaction returns user_response.satisfaction. A missing or non-numeric
// value reads as 0.
func (in Interaction) Satisfaction() float64 {
	v, _ := number(in.UserResponse["satisfaction"])
	return v
}

// Context builds an EmotionalContext from the interaction's emotional map,
// substituting the given defaults for missing keys.
func (in Interaction) Context(emotion Emotion, intensity, confidence float64) (EmotionalContext, error) {
	m := in.EmotionalContext
	if label, ok := m["emotion"].(string); ok && label != "" {
		e, err := ParseEmotion(label)
		if err != nil {
			return EmotionalContext{}, err
		}
		emotion = e
	}
	if v, ok := number(m["intensity"]); ok {
		intensity = v
	}
	if v, ok := number(m["confidence"]); ok {
		confidence = v
	}
	ctx := NewEmotionalContext(emotion, intensity, confidence)
	ctx.Triggers = stringsOf(m["triggers"])
	ctx.Responses = stringsOf(m["responses"])
	return ctx, nil
}

// Describe renders the interaction as the content of a learning memory.
func (in Interaction) Describe() string {
	return fmt.Sprintf("Learning moment: %s - %v", in.InteractionType(), in.UserResponse)
}

// Moment converts the interaction into a learning-moment record.
func (in Interaction) Moment(id string, at time.Time) LearningMoment {
	return LearningMoment{
		ID:                id,
		Timestamp:         at,
		InteractionType:   in.InteractionType(),
		UserResponse:      nonNil(in.UserResponse),
		AIResponse:        nonNil(in.AIResponse),
		EmotionalContext:  nonNil(in.EmotionalContext),
		SuccessIndicators: append([]string{}, in.SuccessIndicators...),
		AdaptationNeeded:  in.AdaptationNeeded,
	}
}

// nonNil returns a shallow copy of m, never nil.
func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringsOf(v any) []string {
	out := []string{}
	switch xs := v.(type) {
	case []string:
		out = append(out, xs...)
	case []any:
		for _, x := range xs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
