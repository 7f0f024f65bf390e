package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider implements LLMProvider with the official OpenAI SDK
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates an SDK-backed provider. SDK retries are disabled:
// a failed call is reported to the caller as-is.
func NewOpenAIProvider(llmConfig *config.LLMConfig) (*OpenAIProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(llmConfig.APIKey),
		option.WithMaxRetries(0),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(llmConfig.BaseURL, "/")+"/"))
	}

	return &OpenAIProvider{client: openai.NewClient(opts...)}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Text))
		default:
			if !msg.IsMultipart() {
				out = append(out, openai.UserMessage(msg.Text))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				switch part.Type {
				case PartTypeText:
					parts = append(parts, openai.TextContentPart(part.Text))
				case PartTypeImageURL:
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: part.ImageURL.URL,
					}))
				}
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

// ChatWithHistory sends a non-streaming completion request
func (p *OpenAIProvider) ChatWithHistory(ctx context.Context, messages []Message, model string) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling OpenAI SDK")

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response from API")
	}

	return completion.Choices[0].Message.Content, nil
}

// ChatWithHistoryStream opens an SDK stream. The first event is read eagerly so
// request-level failures are returned here rather than from the Stream.
func (p *OpenAIProvider) ChatWithHistoryStream(ctx context.Context, messages []Message, model string) (*Stream, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling OpenAI SDK (streaming)")

	sdkStream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	})

	buffered := sdkStream.Next()
	if !buffered {
		if err := sdkStream.Err(); err != nil {
			sdkStream.Close()
			return nil, fmt.Errorf("error sending request: %w", err)
		}
	}

	done := !buffered
	recv := func() (string, error) {
		if buffered {
			buffered = false
			return deltaContent(sdkStream.Current()), nil
		}
		if done {
			return "", io.EOF
		}
		if sdkStream.Next() {
			return deltaContent(sdkStream.Current()), nil
		}
		if err := sdkStream.Err(); err != nil {
			return "", fmt.Errorf("error reading stream: %w", err)
		}
		return "", io.EOF
	}

	return NewStream(recv, sdkStream.Close), nil
}

func deltaContent(chunk openai.ChatCompletionChunk) string {
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}
