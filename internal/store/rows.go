package store

import (
	"fmt"

	"github.com/rcliao/emotion-memory/internal/model"
)

// memoryCols holds the codec-encoded payload columns of a memory row.
type memoryCols struct {
	content  string
	emotion  string
	tags     string
	related  string
	feedback string
}

func encodeMemory(c Codec, m model.MemoryEntry) (memoryCols, error) {
	var cols memoryCols
	var err error
	if cols.content, err = encodeText(c, m.Content); err != nil {
		return cols, fmt.Errorf("encode content: %w", err)
	}
	if cols.emotion, err = encodeJSON(c, m.EmotionalContext); err != nil {
		return cols, fmt.Errorf("encode emotional_context: %w", err)
	}
	if cols.tags, err = encodeJSON(c, nonNilStrings(m.Tags)); err != nil {
		return cols, fmt.Errorf("encode tags: %w", err)
	}
	if cols.related, err = encodeJSON(c, nonNilStrings(m.RelatedMemories)); err != nil {
		return cols, fmt.Errorf("encode related_memories: %w", err)
	}
	feedback := m.UserFeedback
	if feedback == nil {
		feedback = map[string]any{}
	}
	if cols.feedback, err = encodeJSON(c, feedback); err != nil {
		return cols, fmt.Errorf("encode user_feedback: %w", err)
	}
	return cols, nil
}

func decodeMemory(c Codec, cols memoryCols, m *model.MemoryEntry) error {
	var err error
	if m.Content, err = decodeText(c, cols.content); err != nil {
		return fmt.Errorf("decode content of %s: %w", m.ID, err)
	}
	if err := decodeJSON(c, cols.emotion, &m.EmotionalContext); err != nil {
		return fmt.Errorf("decode emotional_context of %s: %w", m.ID, err)
	}
	if err := decodeJSON(c, cols.tags, &m.Tags); err != nil {
		return fmt.Errorf("decode tags of %s: %w", m.ID, err)
	}
	if err := decodeJSON(c, cols.related, &m.RelatedMemories); err != nil {
		return fmt.Errorf("decode related_memories of %s: %w", m.ID, err)
	}
	if err := decodeJSON(c, cols.feedback, &m.UserFeedback); err != nil {
		return fmt.Errorf("decode user_feedback of %s: %w", m.ID, err)
	}
	return nil
}

// patternCols holds the codec-encoded payload columns of a pattern row.
type patternCols struct {
	emotion     string
	suggestions string
}

func encodePattern(c Codec, p model.MemoryPattern) (patternCols, error) {
	var cols patternCols
	var err error
	if cols.emotion, err = encodeJSON(c, p.EmotionalContext); err != nil {
		return cols, fmt.Errorf("encode pattern context: %w", err)
	}
	if cols.suggestions, err = encodeJSON(c, nonNilStrings(p.AdaptationSuggestions)); err != nil {
		return cols, fmt.Errorf("encode suggestions: %w", err)
	}
	return cols, nil
}

func decodePattern(c Codec, cols patternCols, p *model.MemoryPattern) error {
	if err := decodeJSON(c, cols.emotion, &p.EmotionalContext); err != nil {
		return fmt.Errorf("decode pattern %s context: %w", p.PatternID, err)
	}
	if err := decodeJSON(c, cols.suggestions, &p.AdaptationSuggestions); err != nil {
		return fmt.Errorf("decode pattern %s suggestions: %w", p.PatternID, err)
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
