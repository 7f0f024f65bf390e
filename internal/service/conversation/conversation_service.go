package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vision-chat/internal/logger"
	"vision-chat/internal/repository/db"
	"vision-chat/internal/service/llm"
	"vision-chat/internal/service/summary"

	"github.com/sirupsen/logrus"
)

var (
	// ErrConversationNotFound is returned for unknown ids and for rows whose transcript cannot be decoded
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrEmptyTranscript is returned when asked to persist a transcript with no messages
	ErrEmptyTranscript = errors.New("transcript is empty")
)

// ConversationService handles persistence of chat transcripts
type ConversationService struct {
	db         db.Database
	summarizer summary.Summarizer
	now        func() time.Time
}

// NewConversationService creates a new ConversationService
func NewConversationService(database db.Database, summarizer summary.Summarizer) *ConversationService {
	return &ConversationService{
		db:         database,
		summarizer: summarizer,
		now:        time.Now,
	}
}

// WithClock replaces the clock used for creation dates and grouping
func (s *ConversationService) WithClock(now func() time.Time) *ConversationService {
	s.now = now
	return s
}

// Now returns the service clock's current time
func (s *ConversationService) Now() time.Time {
	return s.now()
}

// Save creates a record when id is nil, otherwise overwrites the transcript
// of record id. Creation summarizes the first user text and stamps today's
// date; neither is touched by later updates.
func (s *ConversationService) Save(ctx context.Context, id *int64, transcript []llm.Message, model string) (int64, error) {
	if len(transcript) == 0 {
		return 0, ErrEmptyTranscript
	}

	encoded, err := llm.EncodeTranscript(transcript)
	if err != nil {
		return 0, err
	}

	if id != nil {
		err := s.db.UpdateConversationTranscript(ctx, *id, encoded)
		if errors.Is(err, db.ErrNotFound) {
			return 0, fmt.Errorf("%w: %d", ErrConversationNotFound, *id)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to update conversation: %w", err)
		}
		return *id, nil
	}

	var summaryText *string
	if text, ok := firstUserText(transcript); ok && strings.TrimSpace(text) != "" {
		result, err := s.summarizer.Summarize(ctx, text, model)
		if err != nil {
			return 0, fmt.Errorf("failed to summarize conversation: %w", err)
		}
		summaryText = &result
	} else {
		logger.Log.Warn("No user text to summarize, storing conversation without summary")
	}

	date := s.now().Format(db.DateLayout)
	newID, err := s.db.CreateConversation(ctx, encoded, summaryText, date)
	if err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": newID,
		"date":            date,
		"message_count":   len(transcript),
	}).Info("Saved new conversation")

	return newID, nil
}

func firstUserText(transcript []llm.Message) (string, bool) {
	for _, msg := range transcript {
		if msg.Role == llm.RoleUser {
			return msg.FirstText()
		}
	}
	return "", false
}

// Load returns the decoded transcript of record id
func (s *ConversationService) Load(ctx context.Context, id int64) ([]llm.Message, error) {
	conv, err := s.db.GetConversation(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve conversation: %w", err)
	}

	messages, err := llm.DecodeTranscript(conv.Transcript)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", id).Warn("Stored transcript is malformed")
		return nil, fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}

	return messages, nil
}

// List returns every record, newest date first
func (s *ConversationService) List(ctx context.Context) ([]db.Conversation, error) {
	conversations, err := s.db.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve conversations: %w", err)
	}
	return conversations, nil
}

// Grouped returns every record bucketed by recency relative to the service clock
func (s *ConversationService) Grouped(ctx context.Context) ([]Group, error) {
	conversations, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByCategory(s.now(), conversations), nil
}

// ClearAll irreversibly deletes every record
func (s *ConversationService) ClearAll(ctx context.Context) error {
	if err := s.db.DeleteAllConversations(ctx); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}
