package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const defaultBaseURL = "https://api.openai.com/v1"

// CompatibleProvider implements LLMProvider against any OpenAI-compatible
// /chat/completions endpoint using plain HTTP and server-sent events
type CompatibleProvider struct {
	config *config.LLMConfig
	client *http.Client
}

// NewCompatibleProvider creates a provider; the client keeps Go's default timeouts
func NewCompatibleProvider(llmConfig *config.LLMConfig) *CompatibleProvider {
	return &CompatibleProvider{
		config: llmConfig,
		client: &http.Client{},
	}
}

// ChatMessage is the wire form of a message: images are never sent separately
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// APIError is returned when the endpoint answers with a non-200 status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

func newAPIError(status int, body []byte) error {
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	return &APIError{StatusCode: status, Message: message}
}

func toChatMessages(messages []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, ChatMessage{Role: msg.Role, Content: msg.APIContent()})
	}
	return out
}

func (p *CompatibleProvider) Name() string {
	return "openai-compatible"
}

func (p *CompatibleProvider) endpoint() string {
	base := p.config.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/chat/completions"
}

// post sends the request and returns the response only for status 200
func (p *CompatibleProvider) post(ctx context.Context, reqBody ChatRequest) (*http.Response, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY not configured")
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, newAPIError(resp.StatusCode, body)
	}

	return resp, nil
}

// ChatWithHistory sends a non-streaming completion request
func (p *CompatibleProvider) ChatWithHistory(ctx context.Context, messages []Message, model string) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling completion API")

	resp, err := p.post(ctx, ChatRequest{Model: model, Messages: toChatMessages(messages), Stream: false})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	logger.Log.WithField("response_length", len(body)).Debug("Received raw response")

	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("error decoding response: invalid JSON")
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("no response from API")
	}

	return content.String(), nil
}

// ChatWithHistoryStream sends a streaming completion request. The returned
// Stream reads the SSE body lazily; a body that ends without [DONE] or a
// finish_reason is reported as a failure.
func (p *CompatibleProvider) ChatWithHistoryStream(ctx context.Context, messages []Message, model string) (*Stream, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling completion API (streaming)")

	resp, err := p.post(ctx, ChatRequest{Model: model, Messages: toChatMessages(messages), Stream: true})
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	finished := false

	recv := func() (string, error) {
		for scanner.Scan() {
			line := scanner.Text()

			// Parse SSE event format: "data: {json}"
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return "", io.EOF
			}
			if !gjson.Valid(payload) {
				logger.Log.WithField("payload_length", len(payload)).Warn("Error parsing stream chunk")
				continue
			}

			chunk := gjson.Parse(payload)
			if msg := chunk.Get("error.message"); msg.Exists() {
				return "", fmt.Errorf("stream error: %s", msg.String())
			}
			if reason := chunk.Get("choices.0.finish_reason"); reason.Exists() && reason.String() != "" {
				finished = true
			}

			content := chunk.Get("choices.0.delta.content").String()
			if content != "" {
				logger.Log.WithField("chunk_length", len(content)).Debug("Stream chunk received")
			}
			return content, nil
		}

		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("error reading stream: %w", err)
		}
		if finished {
			return "", io.EOF
		}
		return "", fmt.Errorf("error reading stream: %w", io.ErrUnexpectedEOF)
	}

	return NewStream(recv, resp.Body.Close), nil
}
