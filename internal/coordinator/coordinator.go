// Package coordinator runs one conversational turn through the memory
// store: it detects the emotion, recalls related memories, adapts the
// personality, picks a reply template and learns from feedback.
package coordinator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/emotion-memory/internal/classifier"
	"github.com/rcliao/emotion-memory/internal/memory"
	"github.com/rcliao/emotion-memory/internal/model"
	"github.com/rcliao/emotion-memory/internal/observe"
)

const (
	recallLimit = 5

	satisfactionDefault = 0.5
	satisfactionTarget  = 0.6

	rapportAlignment  = 0.4
	rapportRelevance  = 0.3
	rapportEngagement = 0.3
	passiveEngagement = 0.7

	recentInteractions = 10
)

// Options configures a Coordinator.
type Options struct {
	// Classifier labels text when the caller gives no emotion. Nil means
	// every Input must carry Detected.
	Classifier classifier.Classifier
	Observer   *observe.Observer
	Now        func() time.Time
}

// Coordinator holds the adaptive personality for one user. It is safe for
// concurrent use; turns are processed one at a time.
type Coordinator struct {
	mu         sync.Mutex
	mem        *memory.MemoryStore
	classifier classifier.Classifier
	obs        *observe.Observer
	now        func() time.Time

	traits      map[Trait]float64
	style       Style
	rotation    map[model.Emotion]int
	adaptations int
	corrections []time.Time

	interactions int
	sessions     []session
	rapport      Rapport
}

type session struct {
	at         time.Time
	positive   bool
	confidence float64
}

// New creates a Coordinator with the default personality.
func New(mem *memory.MemoryStore, opts Options) *Coordinator {
	c := &Coordinator{
		mem:        mem,
		classifier: opts.Classifier,
		obs:        opts.Observer,
		now:        opts.Now,
		traits:     baseTraits(),
		style:      Supportive,
		rotation:   make(map[model.Emotion]int),
	}
	if c.obs == nil {
		c.obs = observe.Nop()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Feedback is the user's reaction to the previous reply.
type Feedback struct {
	Satisfaction       *float64 `json:"satisfaction,omitempty"`
	Negative           bool     `json:"negative"`
	PositiveIndicators []string `json:"positive_indicators,omitempty"`
	Issues             []Issue  `json:"issues,omitempty"`
}

func (f *Feedback) satisfaction() float64 {
	if f.Satisfaction == nil {
		return satisfactionDefault
	}
	return model.Clamp01(*f.Satisfaction)
}

// Input is one user turn.
type Input struct {
	Text     string
	Detected *model.EmotionalContext
	Feedback *Feedback
}

// Result describes how the turn was handled.
type Result struct {
	InteractionID      string                 `json:"interaction_id"`
	EmotionalContext   model.EmotionalContext `json:"emotional_context"`
	CommunicationStyle Style                  `json:"communication_style"`
	ResponseTemplate   string                 `json:"response_template"`
	RelevantMemories   int                    `json:"relevant_memories"`
	AdaptationMemoryID string                 `json:"adaptation_memory_id"`
	TraitsModified     []Trait                `json:"traits_modified"`
	Traits             map[Trait]float64      `json:"traits"`
	Learned            bool                   `json:"learned"`
	RapportScore       float64                `json:"rapport_score"`
}

// ProcessInteraction handles one turn. The emotion comes from in.Detected
// when set, otherwise from the classifier. Feedback, when present, adjusts
// the personality and is recorded as a learning moment.
func (c *Coordinator) ProcessInteraction(ctx context.Context, in Input) (*Result, error) {
	id := uuid.NewString()
	ctx, span := c.obs.StartSpan(ctx, "coordinator.process", "interaction_id", id)
	res, err := c.process(ctx, id, in)
	observe.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	c.obs.Log().Info().Str("interaction_id", id).Str("emotion", string(res.EmotionalContext.PrimaryEmotion)).
		Str("style", string(res.CommunicationStyle)).Int("recalled", res.RelevantMemories).
		Str("rapport", strconv.FormatFloat(res.RapportScore, 'f', 2, 64)).Msg("processed interaction")
	return res, nil
}

func (c *Coordinator) process(ctx context.Context, id string, in Input) (*Result, error) {
	ec, err := c.detect(ctx, in)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	recalled := c.mem.Recall(ctx, memory.RecallParams{Query: in.Text, EmotionalContext: &ec, Limit: recallLimit})

	// Personality changes are staged on a copy and kept only once the
	// adaptation memory is stored.
	emotion, resp := responseFor(ec.PrimaryEmotion)
	traits := maps.Clone(c.traits)
	modified := make([]Trait, 0, len(resp.adjustments))
	for _, adj := range resp.adjustments {
		traits[adj.trait] = min(1, traits[adj.trait]+adj.delta*ec.Intensity)
		modified = append(modified, adj.trait)
	}

	memID, err := c.mem.Store(ctx, memory.StoreParams{
		Content:          fmt.Sprintf("Personality adaptation: %s (intensity: %g)", ec.PrimaryEmotion, ec.Intensity),
		MemoryType:       model.AdaptationPoint,
		EmotionalContext: ec,
		ImportanceScore:  resp.priority,
		Tags:             []string{"personality", "adaptation", string(ec.PrimaryEmotion)},
	})
	if err != nil {
		return nil, fmt.Errorf("store adaptation: %w", err)
	}
	c.traits = traits
	c.style = resp.style
	c.adaptations++

	n := c.rotation[emotion]
	template := resp.templates[n%len(resp.templates)]
	c.rotation[emotion] = n + 1

	res := &Result{
		InteractionID:      id,
		EmotionalContext:   ec,
		CommunicationStyle: resp.style,
		ResponseTemplate:   template,
		RelevantMemories:   len(recalled),
		AdaptationMemoryID: memID,
		TraitsModified:     modified,
	}

	if in.Feedback != nil {
		touched, err := c.learn(ctx, id, in.Text, ec, in.Feedback)
		if err != nil {
			return nil, err
		}
		for _, t := range touched {
			if !slices.Contains(res.TraitsModified, t) {
				res.TraitsModified = append(res.TraitsModified, t)
			}
		}
		res.Learned = true
	}

	c.interactions++
	engagement := passiveEngagement
	if in.Feedback != nil {
		engagement = 1
	}
	relevance := min(1, float64(len(recalled))/recallLimit)
	c.rapport = Rapport{
		Score:              rapportAlignment + rapportRelevance*relevance + rapportEngagement*engagement,
		EmotionalAlignment: 1,
		MemoryRelevance:    relevance,
		LearningEngagement: engagement,
		TotalInteractions:  c.interactions,
		LearningSessions:   len(c.sessions),
	}

	res.Traits = maps.Clone(c.traits)
	res.RapportScore = c.rapport.Score
	return res, nil
}

func (c *Coordinator) detect(ctx context.Context, in Input) (model.EmotionalContext, error) {
	if in.Detected != nil {
		if _, err := model.ParseEmotion(string(in.Detected.PrimaryEmotion)); err != nil {
			return model.EmotionalContext{}, err
		}
		ec := in.Detected.Clamped().Clone()
		if ec.Timestamp.IsZero() {
			ec.Timestamp = c.now()
		}
		return ec, nil
	}
	if c.classifier == nil {
		return model.EmotionalContext{}, &model.ValidationError{Field: "emotion", Reason: "no classifier configured and no emotion given"}
	}
	ec, err := c.classifier.Classify(ctx, in.Text)
	if err != nil {
		return model.EmotionalContext{}, fmt.Errorf("classify: %w", err)
	}
	return ec, nil
}

// learn applies corrective adjustments for unsatisfying turns and records
// the turn as a learning moment.
func (c *Coordinator) learn(ctx context.Context, id, text string, ec model.EmotionalContext, fb *Feedback) ([]Trait, error) {
	sat := fb.satisfaction()
	now := c.now()

	corrective := sat < satisfactionTarget || fb.Negative
	traits := maps.Clone(c.traits)
	var touched []Trait
	if corrective {
		touched = correct(traits, fb.Issues)
	}

	issues := make([]any, len(fb.Issues))
	for i, is := range fb.Issues {
		issues[i] = string(is)
	}
	triggers := make([]any, len(ec.Triggers))
	for i, t := range ec.Triggers {
		triggers[i] = t
	}
	err := c.mem.LearnFromInteraction(ctx, model.Interaction{
		Type: "conversation",
		UserResponse: map[string]any{
			"input":           text,
			"satisfaction":    sat,
			"emotional_state": string(ec.PrimaryEmotion),
			"issues":          issues,
		},
		AIResponse: map[string]any{
			"interaction_id":      id,
			"communication_style": string(c.style),
			"adaptation_applied":  true,
		},
		EmotionalContext: map[string]any{
			"emotion":    string(ec.PrimaryEmotion),
			"intensity":  ec.Intensity,
			"confidence": ec.Confidence,
			"triggers":   triggers,
		},
		SuccessIndicators: slices.Clone(fb.PositiveIndicators),
		AdaptationNeeded:  fb.Negative,
	})
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	if corrective {
		c.traits = traits
		c.corrections = append(c.corrections, now)
	}

	c.sessions = append(c.sessions, session{at: now, positive: sat > satisfactionTarget, confidence: ec.Confidence})
	return touched, nil
}
