// Package classifier labels free text with an emotional context.
package classifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/tidwall/gjson"

	"github.com/rcliao/emotion-memory/internal/config"
	"github.com/rcliao/emotion-memory/internal/model"
)

// Classifier detects the emotion expressed by a piece of text.
type Classifier interface {
	Classify(ctx context.Context, text string) (model.EmotionalContext, error)
	Name() string
}

// --- Keyword classifier ---

type rule struct {
	emotion    model.Emotion
	intensity  float64
	confidence float64
	trigger    string
	response   string
	words      []string
}

// Rules are checked in order; the first rule with a matching word wins.
var rules = []rule{
	{model.Happy, 0.8, 0.7, "positive_words", "express_joy",
		[]string{"happy", "excited", "great", "wonderful", "fantastic", "amazing", "love", "😊", "😄", "✨"}},
	{model.Sad, 0.7, 0.8, "negative_words", "offer_support",
		[]string{"sad", "depressed", "down", "unhappy", "crying", "😢", "😭", "💔"}},
	{model.Anxious, 0.8, 0.8, "anxiety_triggers", "provide_calm",
		[]string{"anxious", "worried", "nervous", "stress", "fear", "😰", "😨", "😱"}},
	{model.Angry, 0.8, 0.8, "frustration_triggers", "de_escalate",
		[]string{"angry", "mad", "furious", "hate", "annoyed", "😠", "😡", "💢"}},
	{model.Stressed, 0.7, 0.7, "stress_triggers", "offer_help",
		[]string{"stressed", "overwhelmed", "busy", "pressure", "deadline", "😰", "😓"}},
}

// KeywordClassifier matches lowercase substrings against fixed word lists.
// Text matching nothing is neutral at 0.5/0.5.
type KeywordClassifier struct{}

func (KeywordClassifier) Name() string { return "keyword" }

func (KeywordClassifier) Classify(_ context.Context, text string) (model.EmotionalContext, error) {
	return keywords(text), nil
}

func keywords(text string) model.EmotionalContext {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, w := range r.words {
			if strings.Contains(lower, w) {
				ec := model.NewEmotionalContext(r.emotion, r.intensity, r.confidence)
				ec.Triggers = []string{r.trigger}
				ec.Responses = []string{r.response}
				return ec
			}
		}
	}
	return model.NewEmotionalContext(model.Neutral, 0.5, 0.5)
}

// --- Ollama classifier ---

const prompt = `Classify the primary emotion of the user's message.
Answer with JSON only, in the form {"emotion": "<label>", "intensity": <0..1>, "confidence": <0..1>}.
Valid labels: %s.

Message: %s`

// OllamaClassifier asks a local Ollama model for a label. Unreachable
// servers are errors; replies it cannot parse fall back to keywords.
type OllamaClassifier struct {
	client *api.Client
	model  string
}

// NewOllamaClassifier creates a classifier for the Ollama server at baseURL.
func NewOllamaClassifier(baseURL, modelName string) (*OllamaClassifier, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.2"
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	return &OllamaClassifier{
		client: api.NewClient(uri, &http.Client{Timeout: 30 * time.Second}),
		model:  modelName,
	}, nil
}

func (c *OllamaClassifier) Name() string { return "ollama" }

func (c *OllamaClassifier) Classify(ctx context.Context, text string) (model.EmotionalContext, error) {
	labels := make([]string, len(model.Emotions))
	for i, e := range model.Emotions {
		labels[i] = string(e)
	}
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{{
			Role:    "user",
			Content: fmt.Sprintf(prompt, strings.Join(labels, ", "), text),
		}},
		Stream: new(bool),
	}

	var reply strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return model.EmotionalContext{}, fmt.Errorf("ollama chat failed: %w", err)
	}

	if ec, ok := parseReply(reply.String()); ok {
		return ec, nil
	}
	return keywords(text), nil
}

// parseReply extracts the first JSON object in s and reads the label from it.
func parseReply(s string) (model.EmotionalContext, bool) {
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return model.EmotionalContext{}, false
	}
	obj := s[start : end+1]
	if !gjson.Valid(obj) {
		return model.EmotionalContext{}, false
	}

	res := gjson.Parse(obj)
	e, err := model.ParseEmotion(res.Get("emotion").String())
	if err != nil {
		return model.EmotionalContext{}, false
	}
	intensity, confidence := 0.5, 0.7
	if v := res.Get("intensity"); v.Type == gjson.Number {
		intensity = v.Float()
	}
	if v := res.Get("confidence"); v.Type == gjson.Number {
		confidence = v.Float()
	}
	ec := model.NewEmotionalContext(e, intensity, confidence)
	ec.Triggers = []string{"model_label"}
	return ec, true
}

// --- Factory ---

// NewFromConfig creates the configured classifier. Provider "none" returns
// nil, leaving callers to supply a detected emotion themselves.
func NewFromConfig(cfg config.ClassifierConfig) (Classifier, error) {
	switch cfg.Provider {
	case "", "keyword":
		return KeywordClassifier{}, nil
	case "ollama":
		return NewOllamaClassifier(cfg.URL, cfg.Model)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q (use keyword, ollama or none)", cfg.Provider)
	}
}
