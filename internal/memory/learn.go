package memory

import (
	"context"

	"github.com/rcliao/emotion-memory/internal/model"
	"github.com/rcliao/emotion-memory/internal/observe"
)

const (
	learningImportance    = 0.8
	satisfactionFloor     = 0.5
	learningEmotion       = model.Neutral
	learningIntensity     = 0.5
	learningConfidence    = 0.7
	negativeEmotion       = model.Frustrated
	negativeIntensity     = 0.7
	negativeCtxConfidence = 0.8
)

var learningTags = []string{"learning", "adaptation"}

// LearnFromInteraction records a learning moment. Interactions that need
// adaptation or carry success indicators are also stored as learning
// memories, and low satisfaction mints a new negative-interaction pattern.
// All writes of one call commit together.
func (s *MemoryStore) LearnFromInteraction(ctx context.Context, in model.Interaction) error {
	learnCtx, err := in.Context(learningEmotion, learningIntensity, learningConfidence)
	if err != nil {
		return err
	}
	negCtx, err := in.Context(negativeEmotion, negativeIntensity, negativeCtxConfidence)
	if err != nil {
		return err
	}

	ctx, span := s.obs.StartSpan(ctx, "memory.learn", "interaction_type", in.InteractionType())
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := s.begin()
	moment := in.Moment(s.newULID(now), now)
	c.learning = append(c.learning, moment)

	var stored string
	if in.AdaptationNeeded || len(in.SuccessIndicators) > 0 {
		learnCtx.Timestamp = now
		m := c.stage(StoreParams{
			Content:          in.Describe(),
			MemoryType:       model.LearningMomentMemory,
			EmotionalContext: learnCtx,
			ImportanceScore:  learningImportance,
			Tags:             learningTags,
		}, now)
		stored = m.ID
	}

	var negative string
	if in.Satisfaction() < satisfactionFloor {
		negCtx.Timestamp = now
		p := s.negativePattern(negCtx, now)
		c.putPattern(p)
		negative = p.PatternID
	}

	err = s.commit(ctx, c)
	observe.EndSpan(span, err)
	if err != nil {
		return err
	}

	s.obs.Log().Info().Str("learning_moment", moment.ID).Str("memory_id", stored).
		Str("negative_pattern", negative).Msg("learned from interaction")
	return nil
}

// LearningMoments returns a copy of the learning log.
func (s *MemoryStore) LearningMoments() []model.LearningMoment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.LearningMoment{}, s.learning...)
}
