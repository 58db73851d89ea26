package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

// Suggester produces exactly two alternative phrasings for a transcription
type Suggester interface {
	Suggest(ctx context.Context, text string) ([]string, error)
}

// Phrases offered instead of generated alternatives when the text contains a
// trigger character
var tongueTwisters = []struct {
	triggers    []string
	suggestions []string
}{
	{[]string{"魚"}, []string{"紅鯉魚與綠鯉魚與驢", "粉紅鳳凰飛"}},
	{[]string{"獅", "師"}, []string{"八百標兵奔北坡", "四是四，十是十"}},
}

// RuleSuggester derives alternatives from the text itself
type RuleSuggester struct{}

// Suggest adds a question particle and swaps the final character for 吧.
// Texts of two characters or fewer get a request to repeat instead.
func (RuleSuggester) Suggest(ctx context.Context, text string) ([]string, error) {
	for _, tt := range tongueTwisters {
		for _, trigger := range tt.triggers {
			if strings.Contains(text, trigger) {
				return append([]string(nil), tt.suggestions...), nil
			}
		}
	}

	suggestions := []string{text + "嗎？"}
	if utf8.RuneCountInString(text) > 2 {
		runes := []rune(text)
		suggestions = append(suggestions, string(runes[:len(runes)-1])+"吧")
	} else {
		suggestions = append(suggestions, "請再說一次")
	}
	return suggestions, nil
}

const suggestionPrompt = `你是華語發音教練。使用者說了一句話，語音辨識結果可能有誤。
請提供兩個發音相近、使用者可能想說的繁體中文句子。
只回傳 JSON：{"suggestions": ["句子一", "句子二"]}`

// OpenAISuggester asks a chat model for alternatives and falls back to the
// rules when the model fails or answers in the wrong shape
type OpenAISuggester struct {
	client   *openai.Client
	model    string
	fallback Suggester
	logger   *slog.Logger
}

// NewOpenAISuggester creates a suggester for the given model. baseURL may be
// empty to use the public API.
func NewOpenAISuggester(apiKey, baseURL, model string, logger *slog.Logger) *OpenAISuggester {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAISuggester{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		fallback: RuleSuggester{},
		logger:   logger.With(slog.String("component", "openai_suggester")),
	}
}

// Suggest returns two model-generated alternatives
func (o *OpenAISuggester) Suggest(ctx context.Context, text string) ([]string, error) {
	suggestions, err := o.complete(ctx, text)
	if err != nil {
		o.logger.Warn("Falling back to rule suggestions", slog.String("error", err.Error()))
		return o.fallback.Suggest(ctx, text)
	}
	return suggestions, nil
}

func (o *OpenAISuggester) complete(ctx context.Context, text string) ([]string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: suggestionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	var parsed struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model answer: %w", err)
	}

	var out []string
	for _, s := range parsed.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("model returned %d usable suggestions", len(out))
	}
	return out[:2], nil
}
