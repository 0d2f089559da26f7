package coordinator

import (
	"maps"

	"github.com/rcliao/emotion-memory/internal/model"
)

// Trait is an adjustable personality dimension in [0, 1].
type Trait string

const (
	Warmth     Trait = "warmth"
	Enthusiasm Trait = "enthusiasm"
	Formality  Trait = "formality"
	Humor      Trait = "humor"
	Empathy    Trait = "empathy"
	Directness Trait = "directness"
	Patience   Trait = "patience"
	Creativity Trait = "creativity"
)

// Style is the communication style chosen for a reply.
type Style string

const (
	Supportive   Style = "supportive"
	Enthusiastic Style = "enthusiastic"
	Calm         Style = "calm"
	Professional Style = "professional"
	Casual       Style = "casual"
	Empathetic   Style = "empathetic"
	Encouraging  Style = "encouraging"
	Analytical   Style = "analytical"
)

func baseTraits() map[Trait]float64 {
	return map[Trait]float64{
		Warmth:     0.7,
		Enthusiasm: 0.6,
		Formality:  0.4,
		Humor:      0.5,
		Empathy:    0.8,
		Directness: 0.6,
		Patience:   0.7,
		Creativity: 0.6,
	}
}

type adjustment struct {
	trait Trait
	delta float64
}

// response is the canned reaction to one emotion. Adjustments are scaled by
// the observed intensity.
type response struct {
	style       Style
	adjustments []adjustment
	templates   []string
	priority    float64
}

var responses = map[model.Emotion]response{
	model.Happy: {
		style:       Enthusiastic,
		adjustments: []adjustment{{Enthusiasm, 0.3}, {Warmth, 0.2}, {Humor, 0.2}},
		templates: []string{
			"That's wonderful! I'm so glad to hear that! 😊",
			"Fantastic! This is really exciting news!",
			"I love your positive energy! Keep it up! ✨",
		},
		priority: 0.8,
	},
	model.Sad: {
		style:       Empathetic,
		adjustments: []adjustment{{Empathy, 0.4}, {Warmth, 0.3}, {Patience, 0.3}},
		templates: []string{
			"I'm here for you. It's okay to feel this way. 💙",
			"I understand this is difficult. Would you like to talk about it?",
			"You're not alone in this. I'm listening.",
		},
		priority: 0.9,
	},
	model.Anxious: {
		style:       Calm,
		adjustments: []adjustment{{Patience, 0.4}, {Empathy, 0.3}},
		templates: []string{
			"Let's take a deep breath together. You're safe. 🌸",
			"I understand this is stressful. Let's work through it step by step.",
			"It's natural to feel anxious. I'm here to help you through this.",
		},
		priority: 0.9,
	},
	model.Angry: {
		style:       Calm,
		adjustments: []adjustment{{Patience, 0.5}, {Empathy, 0.3}},
		templates: []string{
			"I can see you're frustrated. Let's work through this together.",
			"Your feelings are valid. Would you like to talk about what happened?",
			"I'm here to listen. Sometimes it helps to talk it out.",
		},
		priority: 0.8,
	},
	model.Neutral: {
		style:       Supportive,
		adjustments: []adjustment{{Warmth, 0.2}, {Empathy, 0.2}, {Enthusiasm, 0.1}},
		templates: []string{
			"I'm here to help. What would you like to work on?",
			"How can I assist you today?",
			"I'm ready to support you in whatever you need.",
		},
		priority: 0.5,
	},
}

// responseFor returns the reaction for e, using the neutral one for
// emotions without their own entry.
func responseFor(e model.Emotion) (model.Emotion, response) {
	if r, ok := responses[e]; ok {
		return e, r
	}
	return model.Neutral, responses[model.Neutral]
}

// Issue names a specific complaint carried by feedback.
type Issue string

const (
	TooFormal       Issue = "too_formal"
	TooCasual       Issue = "too_casual"
	NotEmpathetic   Issue = "not_empathetic"
	TooDirect       Issue = "too_direct"
	NotEnthusiastic Issue = "not_enthusiastic"
)

var corrections = map[Issue]adjustment{
	TooFormal:       {Formality, -0.2},
	TooCasual:       {Formality, 0.2},
	NotEmpathetic:   {Empathy, 0.3},
	TooDirect:       {Directness, -0.2},
	NotEnthusiastic: {Enthusiasm, 0.3},
}

// Lowered traits never drop below this.
const traitFloor = 0.1

// correct applies the fixed correction for each known issue and returns the
// traits it touched. Unknown issues are ignored.
func correct(traits map[Trait]float64, issues []Issue) []Trait {
	var touched []Trait
	for _, is := range issues {
		adj, ok := corrections[is]
		if !ok {
			continue
		}
		v := traits[adj.trait] + adj.delta
		if adj.delta < 0 {
			v = max(traitFloor, v)
		}
		traits[adj.trait] = min(1, v)
		touched = append(touched, adj.trait)
	}
	return touched
}

// PersonalitySummary describes the current personality.
type PersonalitySummary struct {
	CommunicationStyle Style             `json:"communication_style"`
	AdaptiveTraits     map[Trait]float64 `json:"adaptive_traits"`
	BaseTraits         map[Trait]float64 `json:"base_traits"`
	Adaptations        int               `json:"adaptation_history_count"`
	Corrections        int               `json:"learning_moments_count"`
}

func (c *Coordinator) personality() PersonalitySummary {
	return PersonalitySummary{
		CommunicationStyle: c.style,
		AdaptiveTraits:     maps.Clone(c.traits),
		BaseTraits:         baseTraits(),
		Adaptations:        c.adaptations,
		Corrections:        len(c.corrections),
	}
}
