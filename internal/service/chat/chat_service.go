package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vision-chat/internal/app"
	"vision-chat/internal/logger"
	"vision-chat/internal/service/composer"
	"vision-chat/internal/service/conversation"
	"vision-chat/internal/service/llm"
	"vision-chat/internal/session"

	"github.com/sirupsen/logrus"
)

// ErrInvalidModel is returned when selecting a model that is not configured
var ErrInvalidModel = errors.New("invalid model specified")

// SendMessageRequest contains the user's turn as submitted from the form
type SendMessageRequest struct {
	Text        string
	Attachments [][]byte
}

// SendMessageResponse describes the finished turn
type SendMessageResponse struct {
	Reply          string
	ConversationID int64
	Model          string
}

// ChunkFunc receives reply fragments in arrival order. Returning an error
// stops the relay; the partial reply is still saved.
type ChunkFunc func(chunk string) error

// ChatService orchestrates one chat turn: compose, save, relay, save
type ChatService struct {
	config        *app.Config
	conversations *conversation.ConversationService
	llmProvider   llm.LLMProvider
}

// NewChatService creates a new ChatService
func NewChatService(config *app.Config, conversations *conversation.ConversationService) *ChatService {
	return &ChatService{
		config:        config,
		conversations: conversations,
		llmProvider:   config.LLMProvider,
	}
}

// SendMessage appends the user's turn to the session, persists it, streams
// the reply through emit and persists the assistant message. A reply that
// fails midway is saved with whatever text arrived before the error is returned.
func (s *ChatService) SendMessage(ctx context.Context, sess *session.Session, req SendMessageRequest, emit ChunkFunc) (*SendMessageResponse, error) {
	if err := sess.Begin(); err != nil {
		return nil, err
	}
	defer sess.End()

	model := s.config.ResolveModel(sess.Model())
	userMessage := composer.ComposeUserMessage(req.Text, req.Attachments)
	transcript := sess.Append(userMessage)

	convID, err := s.conversations.Save(ctx, sess.ConversationID(), transcript, model)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	sess.SetConversationID(convID)

	if len(req.Attachments) > 0 {
		sess.BumpUploaderKey()
	}

	logger.Log.WithFields(logrus.Fields{
		"session_id":      sess.ID,
		"conversation_id": convID,
		"message_count":   len(transcript),
		"attachments":     len(req.Attachments),
		"model":           model,
	}).Debug("Starting streaming LLM call")

	stream, err := s.llmProvider.ChatWithHistoryStream(ctx, transcript, model)
	if err != nil {
		return nil, fmt.Errorf("LLM streaming error: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		chunk := stream.Chunk()
		reply.WriteString(chunk)
		if emit == nil {
			continue
		}
		if err := emit(chunk); err != nil {
			logger.Log.WithError(err).WithField("session_id", sess.ID).Warn("Client stopped receiving reply")
			stream.Close()
			break
		}
	}
	streamErr := stream.Err()

	resp := &SendMessageResponse{Reply: reply.String(), ConversationID: convID, Model: model}

	if streamErr != nil && reply.Len() == 0 {
		return resp, fmt.Errorf("LLM streaming error: %w", streamErr)
	}

	transcript = sess.Append(llm.Message{Role: llm.RoleAssistant, Text: reply.String()})

	// the request context may already be cancelled when the client went away
	saveCtx := context.WithoutCancel(ctx)
	if _, err := s.conversations.Save(saveCtx, &convID, transcript, model); err != nil {
		return resp, fmt.Errorf("failed to save assistant message: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": convID,
		"reply_length":    reply.Len(),
		"state":           stream.State().String(),
	}).Info("Chat turn finished")

	if streamErr != nil {
		return resp, fmt.Errorf("LLM streaming error: %w", streamErr)
	}
	return resp, nil
}

// NewChat starts a fresh, unsaved conversation in the session
func (s *ChatService) NewChat(sess *session.Session) error {
	if err := sess.Begin(); err != nil {
		return err
	}
	defer sess.End()

	sess.Reset()
	return nil
}

// LoadConversation replaces the session transcript with record id
func (s *ChatService) LoadConversation(ctx context.Context, sess *session.Session, id int64) error {
	if err := sess.Begin(); err != nil {
		return err
	}
	defer sess.End()

	messages, err := s.conversations.Load(ctx, id)
	if err != nil {
		return err
	}

	sess.Replace(messages, &id)
	logger.Log.WithFields(logrus.Fields{"session_id": sess.ID, "conversation_id": id}).Info("Loaded conversation")
	return nil
}

// ClearHistory deletes every stored conversation and resets the session
func (s *ChatService) ClearHistory(ctx context.Context, sess *session.Session) error {
	if err := sess.Begin(); err != nil {
		return err
	}
	defer sess.End()

	if err := s.conversations.ClearAll(ctx); err != nil {
		return err
	}

	sess.Reset()
	return nil
}

// SelectModel changes the model used for the session's next turns
func (s *ChatService) SelectModel(sess *session.Session, modelID string) error {
	if !s.config.ModelsConfig().IsValidModel(modelID) {
		return fmt.Errorf("%w: %s", ErrInvalidModel, modelID)
	}
	if err := sess.Begin(); err != nil {
		return err
	}
	defer sess.End()

	sess.SetModel(modelID)
	return nil
}
