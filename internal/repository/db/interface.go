package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no row matches the requested id
var ErrNotFound = errors.New("conversation not found")

// Database defines the storage operations for conversation history.
// Every mutation is a single autocommitted statement.
type Database interface {
	CreateConversation(ctx context.Context, transcript string, summary *string, date string) (int64, error)
	UpdateConversationTranscript(ctx context.Context, id int64, transcript string) error
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	// ListConversations returns every row, newest date first, ties by id descending
	ListConversations(ctx context.Context) ([]Conversation, error)
	DeleteAllConversations(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
