package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"vision-chat/internal/app"
	"vision-chat/internal/config"
	"vision-chat/internal/repository/db"
	"vision-chat/internal/service/llm"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	CreateConversationFunc           func(ctx context.Context, transcript string, summary *string, date string) (int64, error)
	UpdateConversationTranscriptFunc func(ctx context.Context, id int64, transcript string) error
	GetConversationFunc              func(ctx context.Context, id int64) (*db.Conversation, error)
	ListConversationsFunc            func(ctx context.Context) ([]db.Conversation, error)
	DeleteAllConversationsFunc       func(ctx context.Context) error
	PingFunc                         func(ctx context.Context) error
}

func (m *MockDatabase) CreateConversation(ctx context.Context, transcript string, summary *string, date string) (int64, error) {
	if m.CreateConversationFunc != nil {
		return m.CreateConversationFunc(ctx, transcript, summary, date)
	}
	return 0, errors.New("not implemented")
}

func (m *MockDatabase) UpdateConversationTranscript(ctx context.Context, id int64, transcript string) error {
	if m.UpdateConversationTranscriptFunc != nil {
		return m.UpdateConversationTranscriptFunc(ctx, id, transcript)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) GetConversation(ctx context.Context, id int64) (*db.Conversation, error) {
	if m.GetConversationFunc != nil {
		return m.GetConversationFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) ListConversations(ctx context.Context) ([]db.Conversation, error) {
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) DeleteAllConversations(ctx context.Context) error {
	if m.DeleteAllConversationsFunc != nil {
		return m.DeleteAllConversationsFunc(ctx)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockDatabase) Close() error {
	return nil
}

// MemoryDatabase is an in-memory db.Database with the same ordering rules as the SQLite store
type MemoryDatabase struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]db.Conversation
}

// NewMemoryDatabase creates an empty in-memory store
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{rows: make(map[int64]db.Conversation)}
}

func (m *MemoryDatabase) CreateConversation(_ context.Context, transcript string, summary *string, date string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	conv := db.Conversation{ID: m.nextID, Transcript: transcript, Date: date}
	if summary != nil {
		conv.Summary.String, conv.Summary.Valid = *summary, true
	}
	m.rows[conv.ID] = conv
	return conv.ID, nil
}

func (m *MemoryDatabase) UpdateConversationTranscript(_ context.Context, id int64, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.rows[id]
	if !ok {
		return db.ErrNotFound
	}
	conv.Transcript = transcript
	m.rows[id] = conv
	return nil
}

func (m *MemoryDatabase) GetConversation(_ context.Context, id int64) (*db.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.rows[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &conv, nil
}

func (m *MemoryDatabase) ListConversations(_ context.Context) ([]db.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]db.Conversation, 0, len(m.rows))
	for _, conv := range m.rows {
		list = append(list, conv)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (m *MemoryDatabase) DeleteAllConversations(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = make(map[int64]db.Conversation)
	return nil
}

func (m *MemoryDatabase) Ping(context.Context) error { return nil }

func (m *MemoryDatabase) Close() error { return nil }

// MockLLMProvider is a mock implementation of llm.LLMProvider for testing
type MockLLMProvider struct {
	ChatWithHistoryFunc       func(ctx context.Context, messages []llm.Message, model string) (string, error)
	ChatWithHistoryStreamFunc func(ctx context.Context, messages []llm.Message, model string) (*llm.Stream, error)
}

func (m *MockLLMProvider) ChatWithHistory(ctx context.Context, messages []llm.Message, model string) (string, error) {
	if m.ChatWithHistoryFunc != nil {
		return m.ChatWithHistoryFunc(ctx, messages, model)
	}
	return "", errors.New("not implemented")
}

func (m *MockLLMProvider) ChatWithHistoryStream(ctx context.Context, messages []llm.Message, model string) (*llm.Stream, error) {
	if m.ChatWithHistoryStreamFunc != nil {
		return m.ChatWithHistoryStreamFunc(ctx, messages, model)
	}
	return nil, errors.New("not implemented")
}

func (m *MockLLMProvider) Name() string {
	return "mock"
}

// NewMockModelsConfig creates a ModelsConfig with two test models
func NewMockModelsConfig() *config.ModelsConfig {
	return config.NewModelsConfigFromList([]config.Model{
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: "OpenAI", Vision: true},
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "OpenAI", Vision: true},
	})
}

// NewMockConfig creates a mock app.Config for testing
func NewMockConfig(database db.Database, provider llm.LLMProvider) *app.Config {
	return &app.Config{
		DB:          database,
		LLMProvider: provider,
		AppConfig: &config.AppConfig{
			Server:   config.ServerConfig{Port: "8080"},
			Database: config.DatabaseConfig{Path: ":memory:"},
			LLM: config.LLMConfig{
				Provider:      "openai-compatible",
				APIKey:        "test-api-key",
				SummaryPrompt: config.DefaultSummaryPrompt,
			},
			Auth: config.AuthConfig{
				Password:           "secret",
				SessionSecret:      []byte("0123456789abcdef0123456789abcdef"),
				SessionTTL:         config.DefaultSessionTTL,
				LoginRatePerMinute: 600,
				LoginBurst:         100,
			},
			UI: config.UIConfig{
				Title:              "Vision Chat",
				Version:            "0.1",
				MaxAttachments:     10,
				MaxAttachmentBytes: 20 << 20,
			},
			Models: NewMockModelsConfig(),
		},
	}
}
