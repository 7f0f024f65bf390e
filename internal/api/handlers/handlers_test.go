package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"vision-chat/internal/logger"
	chatService "vision-chat/internal/service/chat"
	conversationService "vision-chat/internal/service/conversation"
	"vision-chat/internal/service/llm"
	"vision-chat/internal/service/summary"
	"vision-chat/internal/session"
	"vision-chat/internal/testutil"

	"github.com/stretchr/testify/require"
)

func init() {
	logger.Silence()
}

type testEnv struct {
	server *httptest.Server
	client *http.Client
	db     *testutil.MemoryDatabase
	llm    *testutil.MockLLMProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database := testutil.NewMemoryDatabase()
	mockLLM := &testutil.MockLLMProvider{
		ChatWithHistoryFunc: func(ctx context.Context, messages []llm.Message, model string) (string, error) {
			return "Test summary", nil
		},
		ChatWithHistoryStreamFunc: func(ctx context.Context, messages []llm.Message, model string) (*llm.Stream, error) {
			return llm.StreamFromChunks([]string{"Hel", "lo"}, nil), nil
		},
	}
	cfg := testutil.NewMockConfig(database, mockLLM)

	conversations := conversationService.NewConversationService(database, summary.NewSummaryService(cfg))
	chat := chatService.NewChatService(cfg, conversations)
	h := NewChatHandlers(cfg, session.NewManager(cfg.ModelsConfig().GetDefaultModel()), conversations, chat)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		server: server,
		client: &http.Client{Jar: jar},
		db:     database,
		llm:    mockLLM,
	}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, body := e.post(t, "/login", url.Values{"password": {"secret"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "New Chat")
}

type upload struct {
	name string
	data []byte
}

func (e *testEnv) sendMessage(t *testing.T, prompt string, files ...upload) (*http.Response, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("prompt", prompt))
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/chat/messages", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

var jpegData = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0}, 32)...)

func TestIndex_LockedShowsLoginForm(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `action="/login"`)
	require.NotContains(t, body, "New Chat")
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/login", url.Values{"password": {"nope"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Password incorrect")
	require.Contains(t, body, `action="/login"`)

	// the flash is shown once
	_, body = env.get(t, "/")
	require.NotContains(t, body, "Password incorrect")
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/login", url.Values{"password": {"nope"}})
	env.login(t)

	_, body := env.get(t, "/")
	require.Contains(t, body, "Clear History")
	require.Contains(t, body, "GPT-4o mini")
}

func TestLockedActionsAreRejected(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/api/conversations")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.sendMessage(t, "hi")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.post(t, "/history/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `action="/login"`)
}

func TestChatStream_SendsEventsAndPersists(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, body := env.sendMessage(t, "Plan a trip to Rome")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Contains(t, body, "event: chunk\ndata: {\"text\":\"Hel\"}\n\n")
	require.Contains(t, body, "event: chunk\ndata: {\"text\":\"lo\"}\n\n")
	require.Contains(t, body, "event: done\n")
	require.Less(t, strings.Index(body, `"Hel"`), strings.Index(body, `"lo"`))

	resp, body = env.get(t, "/api/conversations")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ConversationsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list.Groups, 1)
	require.Equal(t, "Today", list.Groups[0].Category)
	require.Len(t, list.Groups[0].Conversations, 1)
	require.Equal(t, "Test summary", list.Groups[0].Conversations[0].Label)

	_, page := env.get(t, "/")
	require.Contains(t, page, "Plan a trip to Rome")
	require.Contains(t, page, "Hello")
}

func TestChatStream_WithImage(t *testing.T) {
	env := newTestEnv(t)
	var gotParts int
	env.llm.ChatWithHistoryStreamFunc = func(ctx context.Context, messages []llm.Message, model string) (*llm.Stream, error) {
		gotParts = len(messages[len(messages)-1].Parts)
		return llm.StreamFromChunks([]string{"A cat"}, nil), nil
	}
	env.login(t)

	resp, body := env.sendMessage(t, "What is this?", upload{name: "cat.jpg", data: jpegData})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "event: done")
	require.Equal(t, 2, gotParts)

	_, page := env.get(t, "/")
	require.Contains(t, page, `src="data:image/jpeg;base64,`)
	require.Contains(t, page, `id="uploader-1"`)
}

func TestChatStream_RejectsUnsupportedImage(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, body := env.sendMessage(t, "look", upload{name: "anim.gif", data: []byte("GIF89a-------------")})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body, "anim.gif")
}

func TestChatStream_EmptyPrompt(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, _ := env.sendMessage(t, "  ")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatStream_ProviderErrorEvent(t *testing.T) {
	env := newTestEnv(t)
	env.llm.ChatWithHistoryStreamFunc = func(ctx context.Context, messages []llm.Message, model string) (*llm.Stream, error) {
		return nil, errors.New("API returned status 401: invalid api key")
	}
	env.login(t)

	resp, body := env.sendMessage(t, "hi")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "event: error\n")
	require.Contains(t, body, "invalid api key")
	require.NotContains(t, body, "event: done")
}

func TestGetConversation(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.sendMessage(t, "remember this")

	resp, body := env.get(t, "/api/conversations/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conv ConversationResponse
	require.NoError(t, json.Unmarshal([]byte(body), &conv))
	require.Len(t, conv.Messages, 2)
	text, _ := conv.Messages[0].FirstText()
	require.Equal(t, "remember this", text)
	require.Equal(t, "Hello", conv.Messages[1].Text)

	resp, _ = env.get(t, "/api/conversations/999")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.get(t, "/api/conversations/abc")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewChatAndLoad(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.sendMessage(t, "first conversation")

	_, page := env.post(t, "/chats/new", nil)
	require.NotContains(t, page, `class="message user"`)

	_, page = env.post(t, "/chats/1/load", nil)
	require.Contains(t, page, "first conversation")
	require.Contains(t, page, `class="current"`)

	_, page = env.post(t, "/chats/42/load", nil)
	require.Contains(t, page, "Conversation not found")
}

func TestClearHistory(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.sendMessage(t, "to be deleted")

	_, page := env.post(t, "/history/clear", nil)
	require.Contains(t, page, "Conversation history cleared")
	require.Contains(t, page, "No conversations yet")

	list, err := env.db.ListConversations(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSelectModel(t *testing.T) {
	env := newTestEnv(t)
	var gotModel string
	env.llm.ChatWithHistoryStreamFunc = func(ctx context.Context, messages []llm.Message, model string) (*llm.Stream, error) {
		gotModel = model
		return llm.StreamFromChunks([]string{"ok"}, nil), nil
	}
	env.login(t)

	env.post(t, "/model", url.Values{"model": {"gpt-4o"}})
	env.sendMessage(t, "hi")
	require.Equal(t, "gpt-4o", gotModel)

	_, body := env.get(t, "/api/models")
	var models ModelsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &models))
	require.Equal(t, "gpt-4o", models.Current)
	require.Len(t, models.Models, 2)

	_, page := env.post(t, "/model", url.Values{"model": {"bogus"}})
	require.Contains(t, page, "Unknown model")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "mock", health.Provider)
}

func TestHandlerSendError(t *testing.T) {
	ch := &ChatHandlers{}
	rec := httptest.NewRecorder()

	ch.sendError(rec, http.StatusConflict, "A reply is still being generated", session.ErrBusy)

	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, http.StatusConflict, errResp.Code)
	require.Equal(t, session.ErrBusy.Error(), errResp.Error)
}
