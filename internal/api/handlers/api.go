package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"
	"vision-chat/internal/service/conversation"
	"vision-chat/internal/service/llm"
)

type ConversationInfo struct {
	ID      int64   `json:"id"`
	Label   string  `json:"label"`
	Summary *string `json:"summary"`
	Date    string  `json:"date"`
}

type ConversationGroup struct {
	Category      string             `json:"category"`
	Conversations []ConversationInfo `json:"conversations"`
}

type ConversationsResponse struct {
	Groups []ConversationGroup `json:"groups"`
}

type ConversationResponse struct {
	ID       int64         `json:"id"`
	Messages []llm.Message `json:"messages"`
}

type ModelsResponse struct {
	Models  []config.Model `json:"models"`
	Current string         `json:"current"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Provider string `json:"provider"`
}

// GetConversationsHandler returns the history grouped by recency
func (ch *ChatHandlers) GetConversationsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := ch.conversationService.Grouped(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("Error from conversation service")
		ch.sendError(w, http.StatusInternalServerError, "Error retrieving conversations", err)
		return
	}

	resp := ConversationsResponse{Groups: make([]ConversationGroup, 0, len(groups))}
	for _, group := range groups {
		infos := make([]ConversationInfo, 0, len(group.Conversations))
		for _, conv := range group.Conversations {
			info := ConversationInfo{ID: conv.ID, Label: conversation.Label(conv), Date: conv.Date}
			if conv.Summary.Valid {
				summary := conv.Summary.String
				info.Summary = &summary
			}
			infos = append(infos, info)
		}
		resp.Groups = append(resp.Groups, ConversationGroup{Category: string(group.Category), Conversations: infos})
	}

	ch.sendJSON(w, resp)
}

// GetConversationHandler returns one stored transcript
func (ch *ChatHandlers) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		ch.sendError(w, http.StatusBadRequest, "Invalid conversation id", err)
		return
	}

	logger.Log.WithField("conversation_id", id).Info("Get conversation request")

	messages, err := ch.conversationService.Load(r.Context(), id)
	if err != nil {
		logger.Log.WithError(err).Error("Error from conversation service")
		if errors.Is(err, conversation.ErrConversationNotFound) {
			ch.sendError(w, http.StatusNotFound, "Conversation not found", err)
		} else {
			ch.sendError(w, http.StatusInternalServerError, "Error retrieving conversation", err)
		}
		return
	}

	ch.sendJSON(w, ConversationResponse{ID: id, Messages: messages})
}

// GetModelsHandler returns the list of available models
func (ch *ChatHandlers) GetModelsHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	ch.sendJSON(w, ModelsResponse{
		Models:  ch.config.ModelsConfig().GetAvailableModels(),
		Current: ch.config.ResolveModel(sess.Model()),
	})
}

// HealthHandler reports whether the history database is reachable
func (ch *ChatHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := ch.config.DB.Ping(ctx); err != nil {
		logger.Log.WithError(err).Warn("Health check failed")
		ch.sendError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}

	ch.sendJSON(w, HealthResponse{
		Status:   "ok",
		Version:  ch.config.AppConfig.UI.Version,
		Provider: ch.providerName(),
	})
}

func (ch *ChatHandlers) providerName() string {
	if ch.config.LLMProvider == nil {
		return ""
	}
	return ch.config.LLMProvider.Name()
}
