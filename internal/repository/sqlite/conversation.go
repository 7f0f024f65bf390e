package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vision-chat/internal/logger"
	"vision-chat/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// CreateConversation inserts a new row and returns its id
func (s *SQLiteDB) CreateConversation(ctx context.Context, transcript string, summary *string, date string) (int64, error) {
	query := `INSERT INTO chats (conversation, summary, date) VALUES (?, ?, ?)`

	var summaryValue sql.NullString
	if summary != nil {
		summaryValue = sql.NullString{String: *summary, Valid: true}
	}

	result, err := s.conn.ExecContext(ctx, query, transcript, summaryValue, date)
	if err != nil {
		return 0, fmt.Errorf("error creating conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading conversation id: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"conversation_id": id, "date": date}).Info("Created new conversation")

	return id, nil
}

// UpdateConversationTranscript overwrites the transcript; summary and date are untouched
func (s *SQLiteDB) UpdateConversationTranscript(ctx context.Context, id int64, transcript string) error {
	query := `UPDATE chats SET conversation = ? WHERE id = ?`

	result, err := s.conn.ExecContext(ctx, query, transcript, id)
	if err != nil {
		return fmt.Errorf("error updating conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating conversation: %w", err)
	}
	if rows == 0 {
		return db.ErrNotFound
	}

	logger.Log.WithField("conversation_id", id).Debug("Updated conversation transcript")
	return nil
}

// GetConversation retrieves a single row
func (s *SQLiteDB) GetConversation(ctx context.Context, id int64) (*db.Conversation, error) {
	query := `SELECT id, COALESCE(conversation, ''), summary, COALESCE(date, '') FROM chats WHERE id = ?`

	var conv db.Conversation
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&conv.ID, &conv.Transcript, &conv.Summary, &conv.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting conversation: %w", err)
	}

	return &conv, nil
}

// ListConversations retrieves all rows, most recent date first
func (s *SQLiteDB) ListConversations(ctx context.Context) ([]db.Conversation, error) {
	query := `
	SELECT id, COALESCE(conversation, ''), summary, COALESCE(date, '')
	FROM chats
	ORDER BY date DESC, id DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := []db.Conversation{}
	for rows.Next() {
		var conv db.Conversation
		if err := rows.Scan(&conv.ID, &conv.Transcript, &conv.Summary, &conv.Date); err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// DeleteAllConversations removes every row
func (s *SQLiteDB) DeleteAllConversations(ctx context.Context) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM chats`)
	if err != nil {
		return fmt.Errorf("error deleting conversations: %w", err)
	}

	entry := logger.Log.WithField("table", "chats")
	if deleted, err := result.RowsAffected(); err == nil {
		entry = entry.WithField("deleted", deleted)
	}
	entry.Info("Cleared conversation history")
	return nil
}
