package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"
)

func init() {
	logger.Silence()
}

func newTestProvider(url string) *CompatibleProvider {
	return NewCompatibleProvider(&config.LLMConfig{APIKey: "test-key", BaseURL: url})
}

func TestCompatibleProvider_ChatWithHistory(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Unexpected auth header %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Rome trip"}}]}`)
	}))
	defer server.Close()

	reply, err := newTestProvider(server.URL).ChatWithHistory(context.Background(), []Message{
		{Role: RoleSystem, Text: "Summarize: Plan a trip to Rome"},
	}, "gpt-4o-mini")
	if err != nil {
		t.Fatalf("ChatWithHistory failed: %v", err)
	}
	if reply != "Rome trip" {
		t.Errorf("Expected 'Rome trip', got %q", reply)
	}
	if gotBody["model"] != "gpt-4o-mini" || gotBody["stream"] != false {
		t.Errorf("Unexpected request body: %v", gotBody)
	}
}

func TestCompatibleProvider_StripsImagesFromWire(t *testing.T) {
	var raw []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).ChatWithHistory(context.Background(), []Message{{
		Role:   RoleUser,
		Parts:  []ContentPart{TextPart("what is this"), ImagePart("data:image/jpeg;base64,AAAA")},
		Images: []string{"data:image/jpeg;base64,AAAA"},
	}}, "gpt-4o")
	if err != nil {
		t.Fatalf("ChatWithHistory failed: %v", err)
	}

	body := string(raw)
	if strings.Contains(body, `"images"`) {
		t.Errorf("images must not be sent, got %s", body)
	}
	if !strings.Contains(body, `"image_url":{"url":"data:image/jpeg;base64,AAAA"}`) {
		t.Errorf("Expected image part in body, got %s", body)
	}
}

func TestCompatibleProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).ChatWithHistoryStream(context.Background(), nil, "gpt-4o")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "invalid api key" {
		t.Errorf("Unexpected APIError: %+v", apiErr)
	}
}

func TestCompatibleProvider_MissingAPIKey(t *testing.T) {
	p := NewCompatibleProvider(&config.LLMConfig{})
	if _, err := p.ChatWithHistory(context.Background(), nil, "m"); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestCompatibleProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	stream, err := newTestProvider(server.URL).ChatWithHistoryStream(context.Background(), nil, "gpt-4o")
	if err != nil {
		t.Fatalf("ChatWithHistoryStream failed: %v", err)
	}
	defer stream.Close()

	var chunks []string
	for stream.Next() {
		chunks = append(chunks, stream.Chunk())
	}
	if strings.Join(chunks, "|") != "Hel|lo" {
		t.Errorf("Unexpected chunks %v", chunks)
	}
	if stream.State() != StreamCompleted {
		t.Errorf("Expected completed, got %s (%v)", stream.State(), stream.Err())
	}
}

func TestCompatibleProvider_StreamFinishReasonWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hi"},"finish_reason":null}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`+"\n\n")
	}))
	defer server.Close()

	stream, err := newTestProvider(server.URL).ChatWithHistoryStream(context.Background(), nil, "gpt-4o")
	if err != nil {
		t.Fatalf("ChatWithHistoryStream failed: %v", err)
	}

	text := collect(stream)
	if text != "Hi" || stream.State() != StreamCompleted {
		t.Errorf("Expected completed 'Hi', got %q in state %s (%v)", text, stream.State(), stream.Err())
	}
}

func TestCompatibleProvider_StreamTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Par"}}]}`+"\n\n")
	}))
	defer server.Close()

	stream, err := newTestProvider(server.URL).ChatWithHistoryStream(context.Background(), nil, "gpt-4o")
	if err != nil {
		t.Fatalf("ChatWithHistoryStream failed: %v", err)
	}

	text := collect(stream)
	if text != "Par" {
		t.Errorf("Expected 'Par', got %q", text)
	}
	if stream.State() != StreamFailed || !errors.Is(stream.Err(), io.ErrUnexpectedEOF) {
		t.Errorf("Expected failure with unexpected EOF, got %s (%v)", stream.State(), stream.Err())
	}
}

func TestCompatibleProvider_StreamErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"A"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"error":{"message":"overloaded"}}`+"\n\n")
	}))
	defer server.Close()

	stream, err := newTestProvider(server.URL).ChatWithHistoryStream(context.Background(), nil, "gpt-4o")
	if err != nil {
		t.Fatalf("ChatWithHistoryStream failed: %v", err)
	}

	collect(stream)
	if stream.State() != StreamFailed || !strings.Contains(stream.Err().Error(), "overloaded") {
		t.Errorf("Expected overloaded failure, got %s (%v)", stream.State(), stream.Err())
	}
}

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		input   string
		want    ProviderType
		wantErr bool
	}{
		{"", ProviderCompatible, false},
		{"openai-compatible", ProviderCompatible, false},
		{"openai", ProviderOpenAI, false},
		{"genkit", ProviderGenkit, false},
		{"anthropic", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProviderType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProviderType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProviderType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLLMProvider_Default(t *testing.T) {
	p, err := NewLLMProvider(&config.LLMConfig{APIKey: "k"}, config.DefaultModelsConfig())
	if err != nil {
		t.Fatalf("NewLLMProvider failed: %v", err)
	}
	if p.Name() != "openai-compatible" {
		t.Errorf("Expected openai-compatible provider, got %s", p.Name())
	}
}

func TestNewLLMProvider_OpenAIRequiresKey(t *testing.T) {
	if _, err := NewLLMProvider(&config.LLMConfig{Provider: "openai"}, config.DefaultModelsConfig()); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestOpenAIProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(&config.LLMConfig{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIProvider failed: %v", err)
	}

	stream, err := p.ChatWithHistoryStream(context.Background(), []Message{
		{Role: RoleUser, Parts: []ContentPart{TextPart("hi")}, Images: []string{}},
	}, "gpt-4o")
	if err != nil {
		t.Fatalf("ChatWithHistoryStream failed: %v", err)
	}

	text := collect(stream)
	if text != "Hello" || stream.State() != StreamCompleted {
		t.Errorf("Expected completed 'Hello', got %q in state %s (%v)", text, stream.State(), stream.Err())
	}
}

func TestOpenAIProvider_RequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(&config.LLMConfig{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIProvider failed: %v", err)
	}

	if _, err := p.ChatWithHistoryStream(context.Background(), nil, "nope"); err == nil {
		t.Fatal("Expected synchronous request error")
	}
}
