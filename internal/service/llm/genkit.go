package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/sirupsen/logrus"
)

const genkitPluginName = "compat"

// GenkitProvider implements LLMProvider using Firebase Genkit with the compat_oai plugin
type GenkitProvider struct {
	genkit *genkit.Genkit
}

// NewGenkitProvider initializes Genkit against the configured OpenAI-compatible endpoint
func NewGenkitProvider(llmConfig *config.LLMConfig, defaultModel string) (*GenkitProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY not configured")
	}

	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	ctx := context.Background()
	g := genkit.Init(ctx,
		genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: genkitPluginName,
			APIKey:   llmConfig.APIKey,
			BaseURL:  baseURL,
		}),
		genkit.WithDefaultModel(genkitModelName(defaultModel)),
	)

	logger.Log.WithField("default_model", defaultModel).Info("Initialized Genkit provider")

	return &GenkitProvider{genkit: g}, nil
}

func (p *GenkitProvider) Name() string {
	return "genkit"
}

func genkitModelName(model string) string {
	if strings.HasPrefix(model, genkitPluginName+"/") {
		return model
	}
	return genkitPluginName + "/" + model
}

func toGenkitMessages(messages []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(messages))
	for _, msg := range messages {
		role := ai.RoleUser
		switch msg.Role {
		case RoleSystem:
			role = ai.RoleSystem
		case RoleAssistant:
			role = ai.RoleModel
		}

		var parts []*ai.Part
		if !msg.IsMultipart() {
			parts = append(parts, ai.NewTextPart(msg.Text))
		}
		for _, part := range msg.Parts {
			switch part.Type {
			case PartTypeText:
				parts = append(parts, ai.NewTextPart(part.Text))
			case PartTypeImageURL:
				parts = append(parts, ai.NewMediaPart("image/jpeg", part.ImageURL.URL))
			}
		}

		out = append(out, &ai.Message{Role: role, Content: parts})
	}
	return out
}

// ChatWithHistory generates a complete reply
func (p *GenkitProvider) ChatWithHistory(ctx context.Context, messages []Message, model string) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling Genkit")

	resp, err := genkit.Generate(ctx, p.genkit,
		ai.WithMessages(toGenkitMessages(messages)...),
		ai.WithModelName(genkitModelName(model)),
	)
	if err != nil {
		return "", fmt.Errorf("genkit generation failed: %w", err)
	}

	return resp.Text(), nil
}

type genkitEvent struct {
	text string
	err  error
}

// ChatWithHistoryStream adapts Genkit's streaming callback to a pull Stream.
// The first event is awaited here so that request failures surface synchronously.
func (p *GenkitProvider) ChatWithHistoryStream(ctx context.Context, messages []Message, model string) (*Stream, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling Genkit (streaming)")

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan genkitEvent)

	go func() {
		defer close(events)

		send := func(ev genkitEvent) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, err := genkit.Generate(ctx, p.genkit,
			ai.WithMessages(toGenkitMessages(messages)...),
			ai.WithModelName(genkitModelName(model)),
			ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
				for _, part := range chunk.Content {
					if part.IsText() {
						if err := send(genkitEvent{text: part.Text}); err != nil {
							return err
						}
					}
				}
				return nil
			}),
		)
		if err != nil {
			_ = send(genkitEvent{err: fmt.Errorf("genkit generation failed: %w", err)})
		}
	}()

	closer := func() error {
		cancel()
		for range events {
		}
		return nil
	}

	first, ok := <-events
	if ok && first.err != nil {
		closer()
		return nil, first.err
	}

	pending := ok
	recv := func() (string, error) {
		if pending {
			pending = false
			return first.text, nil
		}
		ev, ok := <-events
		if !ok {
			return "", io.EOF
		}
		if ev.err != nil {
			return "", ev.err
		}
		return ev.text, nil
	}

	return NewStream(recv, closer), nil
}
