package narrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/moonrise/moonrise/internal/config"
)

const systemPrompt = `You are the narrator of a werewolf game in a small medieval village. ` +
	`Given the public history of the game, tell what just happened in two or three gothic, ` +
	`atmospheric sentences. Never reveal anything that is not in the history.`

// ErrDisabled is returned by New when no provider is configured.
var ErrDisabled = errors.New("narrator disabled")

// Storyteller narrates public game events through a language model.
type Storyteller struct {
	llm      llms.Model
	timeout  time.Duration
	callOpts []llms.CallOption
	logger   zerolog.Logger
}

// NewStoryteller wraps an already built model.
func NewStoryteller(llm llms.Model, timeout time.Duration, logger zerolog.Logger) *Storyteller {
	return &Storyteller{
		llm:      llm,
		timeout:  timeout,
		callOpts: []llms.CallOption{llms.WithTemperature(0.8), llms.WithMaxTokens(200)},
		logger:   logger.With().Str("service", "narrator").Logger(),
	}
}

// New builds a storyteller for the configured provider.
func New(cfg config.NarratorConfig, logger zerolog.Logger) (*Storyteller, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "":
		return nil, ErrDisabled
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.URL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.URL))
		}
		llm, err = ollama.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.URL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.URL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		llm, err = openai.New(opts...)
	case "claude":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		llm, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unknown narrator provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s narrator: %w", cfg.Provider, err)
	}
	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("narrator enabled")
	return NewStoryteller(llm, cfg.Timeout, logger), nil
}

// Tell turns history into a short story.
func (s *Storyteller) Tell(ctx context.Context, history []string) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"Game history so far:\n"+strings.Join(history, "\n")+
				"\n\nTell what just happened."),
	}
	resp, err := s.llm.GenerateContent(ctx, messages, s.callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate story: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	s.logger.Debug().Int("lines", len(history)).Int("chars", len(text)).Msg("story told")
	return text, nil
}
