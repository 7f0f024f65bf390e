package summary

import (
	"context"
	"fmt"
	"strings"

	"vision-chat/internal/app"
	"vision-chat/internal/config"
	"vision-chat/internal/logger"
	"vision-chat/internal/service/llm"

	"github.com/sirupsen/logrus"
)

// Summarizer produces the short sidebar label for a new conversation
type Summarizer interface {
	Summarize(ctx context.Context, text, model string) (string, error)
}

// SummaryService asks the completion backend for a 3-4 word summary
type SummaryService struct {
	config      *app.Config
	llmProvider llm.LLMProvider
}

// Ensure SummaryService implements Summarizer
var _ Summarizer = (*SummaryService)(nil)

// NewSummaryService creates a new SummaryService
func NewSummaryService(config *app.Config) *SummaryService {
	return &SummaryService{
		config:      config,
		llmProvider: config.LLMProvider,
	}
}

// Summarize sends one non-streaming request whose only message is a system
// message made of the summary prompt followed by text. The reply is trimmed.
func (s *SummaryService) Summarize(ctx context.Context, text, model string) (string, error) {
	prompt := s.config.AppConfig.LLM.SummaryPrompt
	if prompt == "" {
		prompt = config.DefaultSummaryPrompt
	}
	model = s.config.ResolveModel(model)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: prompt + text},
	}

	logger.Log.WithFields(logrus.Fields{
		"model":       model,
		"text_length": len(text),
	}).Info("Calling LLM to generate summary")

	reply, err := s.llmProvider.ChatWithHistory(ctx, messages, model)
	if err != nil {
		return "", fmt.Errorf("LLM error during summarization: %w", err)
	}

	summary := strings.TrimSpace(reply)
	logger.Log.WithField("summary_chars", len(summary)).Info("Generated summary")

	return summary, nil
}
