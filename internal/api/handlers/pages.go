package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"vision-chat/internal/auth"
	"vision-chat/internal/config"
	"vision-chat/internal/logger"
	"vision-chat/internal/service/chat"
	"vision-chat/internal/service/composer"
	"vision-chat/internal/service/conversation"
	"vision-chat/internal/service/llm"
	"vision-chat/internal/session"

	"github.com/sirupsen/logrus"
)

type historyItem struct {
	ID      int64
	Label   string
	Current bool
}

type historyGroup struct {
	Category string
	Items    []historyItem
}

type messageView struct {
	Role   string
	Text   string
	HTML   template.HTML
	Images []template.URL
}

type pageData struct {
	Title          string
	Version        string
	Locked         bool
	Flash          string
	Model          string
	ModelName      string
	Models         []config.Model
	Groups         []historyGroup
	Messages       []messageView
	UploaderKey    int
	MaxAttachments int
}

// IndexHandler renders the login form or the chat page
func (ch *ChatHandlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	ch.renderPage(w, r, http.StatusOK)
}

func (ch *ChatHandlers) renderPage(w http.ResponseWriter, r *http.Request, status int) {
	sess := sessionFrom(r)
	uiConfig := ch.config.AppConfig.UI

	data := pageData{
		Title:   uiConfig.Title,
		Version: uiConfig.Version,
		Locked:  !sess.Gate.IsUnlocked(),
		Flash:   sess.TakeFlash(),
	}

	if !data.Locked {
		groups, err := ch.conversationService.Grouped(r.Context())
		if err != nil {
			logger.Log.WithError(err).Error("Error loading conversation history")
			data.Flash = "Could not load conversation history"
		}

		model := ch.config.ResolveModel(sess.Model())
		data.Model = model
		data.ModelName = ch.config.ModelsConfig().DisplayName(model)
		data.Models = ch.config.ModelsConfig().GetAvailableModels()
		data.Groups = historyView(groups, sess.ConversationID())
		data.Messages = ch.transcriptView(sess.Transcript())
		data.UploaderKey = sess.UploaderKey()
		data.MaxAttachments = uiConfig.MaxAttachments
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := ch.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		logger.Log.WithError(err).Error("Error rendering page")
	}
}

func historyView(groups []conversation.Group, current *int64) []historyGroup {
	views := make([]historyGroup, 0, len(groups))
	for _, group := range groups {
		view := historyGroup{Category: string(group.Category)}
		for _, conv := range group.Conversations {
			view.Items = append(view.Items, historyItem{
				ID:      conv.ID,
				Label:   conversation.Label(conv),
				Current: current != nil && *current == conv.ID,
			})
		}
		views = append(views, view)
	}
	return views
}

func (ch *ChatHandlers) transcriptView(transcript []llm.Message) []messageView {
	views := make([]messageView, 0, len(transcript))
	for _, msg := range transcript {
		view := messageView{Role: msg.Role}
		switch msg.Role {
		case llm.RoleUser:
			view.Text, _ = msg.FirstText()
			for _, image := range msg.Images {
				// stored images are plain base64 produced by the composer
				view.Images = append(view.Images, template.URL(composer.ImageDataURIPrefix+image))
			}
		default:
			view.HTML = ch.markdown.Render(msg.Text)
		}
		views = append(views, view)
	}
	return views
}

// LoginHandler passes the submitted password to the gate. The password is
// never kept past this call.
func (ch *ChatHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	password := r.PostFormValue("password")
	if err := ch.authValidator.ValidatePassword(password); err != nil {
		sess.SetFlash(auth.ErrPasswordIncorrect.Error())
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	err := ch.authenticator.Login(sess.Gate, password)
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		sess.SetFlash(auth.ErrPasswordIncorrect.Error())
		w.Header().Set("Retry-After", "60")
		ch.renderPage(w, r, http.StatusTooManyRequests)
		return
	case err != nil:
		sess.SetFlash(auth.ErrPasswordIncorrect.Error())
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// NewChatHandler starts a fresh conversation
func (ch *ChatHandlers) NewChatHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := ch.chatService.NewChat(sess); err != nil {
		ch.actionError(w, r, sess, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LoadConversationHandler replaces the transcript with a stored conversation
func (ch *ChatHandlers) LoadConversationHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		sess.SetFlash("Conversation not found")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := ch.chatService.LoadConversation(r.Context(), sess, id); err != nil {
		ch.actionError(w, r, sess, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ClearHistoryHandler deletes every stored conversation
func (ch *ChatHandlers) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := ch.chatService.ClearHistory(r.Context(), sess); err != nil {
		ch.actionError(w, r, sess, err)
		return
	}
	sess.SetFlash("Conversation history cleared")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SelectModelHandler switches the session's model
func (ch *ChatHandlers) SelectModelHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := ch.chatService.SelectModel(sess, r.PostFormValue("model")); err != nil {
		ch.actionError(w, r, sess, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// actionError reports a failed page action as a flash message, or 409 while a reply is streaming
func (ch *ChatHandlers) actionError(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	logger.Log.WithError(err).WithFields(logrus.Fields{"session_id": sess.ID, "path": r.URL.Path}).Warn("Action failed")

	switch {
	case errors.Is(err, session.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, conversation.ErrConversationNotFound):
		sess.SetFlash("Conversation not found")
	case errors.Is(err, chat.ErrInvalidModel):
		sess.SetFlash("Unknown model")
	default:
		sess.SetFlash("Something went wrong: " + err.Error())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
