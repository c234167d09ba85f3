package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/nnfix/internal/llm"
)

const defaultLLMSystemPrompt = "You convert Norwegian Nynorsk into Norwegian Bokmål. " +
	"Reply with the converted text only, keeping punctuation, numbers, names and casing. " +
	"If the text is not Nynorsk, reply with it unchanged."

// LLMCorrector corrects text through an OpenAI-compatible chat model.
type LLMCorrector struct {
	Client llm.Client
	Model  string
	// SystemPrompt overrides the default instruction when non-empty.
	SystemPrompt string
}

func (c *LLMCorrector) Correct(ctx context.Context, text string) (CorrectionResult, error) {
	if c.Client == nil || strings.TrimSpace(c.Model) == "" {
		return CorrectionResult{}, errors.New("llm corrector not configured")
	}
	system := defaultLLMSystemPrompt
	if strings.TrimSpace(c.SystemPrompt) != "" {
		system = c.SystemPrompt
	}
	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return CorrectionResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CorrectionResult{}, errors.New("chat completion returned no choices")
	}
	out := resp.Choices[0].Message.Content
	if strings.TrimSpace(out) == "" {
		return CorrectionResult{}, errors.New("chat completion returned empty content")
	}
	return NewResult(text, out), nil
}
