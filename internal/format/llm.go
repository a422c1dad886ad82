package format

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"flowstate/internal/config"
)

const formalPrompt = `You are a professional email formatting assistant.
Convert the following spoken transcription into a well-structured email.
- Use proper paragraphs
- Add appropriate greeting and sign-off if missing
- Remove filler words (um, uh, like, you know)
- Maintain the user's intent and tone
- Keep it concise
- Return ONLY the formatted email, no explanations or markdown.`

const genericPrompt = `You clean up dictated text.
- Fix capitalisation and punctuation
- Remove filler words (um, uh, like, you know)
- Do not add content or change meaning
- Return ONLY the cleaned text, no explanations or markdown.`

// ErrNoAPIKey means the LLM path is not configured.
var ErrNoAPIKey = errors.New("formatter api key not set")

// LLM rewrites text through an OpenAI-compatible chat endpoint (Groq by
// default).
type LLM struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewLLM returns nil and ErrNoAPIKey when no key is configured.
func NewLLM(cfg *config.Config) (*LLM, error) {
	f := cfg.Formatter
	if strings.TrimSpace(f.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	oc := openai.DefaultConfig(f.APIKey)
	if f.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(f.BaseURL, "/")
	}
	return &LLM{
		client:      openai.NewClientWithConfig(oc),
		model:       f.Model,
		temperature: float32(f.Temperature),
		maxTokens:   f.MaxTokens,
	}, nil
}

// Rewrite asks the model to format text for category.
func (l *LLM) Rewrite(ctx context.Context, text string, hints Hints) (string, error) {
	prompt := genericPrompt
	if hints.Category == Formal {
		prompt = formalPrompt
	}
	if hints.App != "" {
		prompt += "\nThe text will be pasted into " + hints.App + "."
	}
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("chat completion returned empty text")
	}
	return out, nil
}

// Warmup opens a connection to the endpoint so the first real request skips
// DNS and TLS setup.
func (l *LLM) Warmup(ctx context.Context) error {
	_, err := l.client.ListModels(ctx)
	return err
}
