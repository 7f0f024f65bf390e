package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"vision-chat/internal/app"
	"vision-chat/internal/auth"
	"vision-chat/internal/logger"
	"vision-chat/internal/render"
	chatService "vision-chat/internal/service/chat"
	conversationService "vision-chat/internal/service/conversation"
	"vision-chat/internal/session"
	"vision-chat/pkg/validation"

	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templatesFS embed.FS

type contextKey string

// SessionContextKey holds the resolved *session.Session on the request context
const SessionContextKey contextKey = "session"

// ErrorResponse is the JSON error envelope of the API
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ChatHandlers serves the chat UI, its actions and the JSON API
type ChatHandlers struct {
	config              *app.Config
	sessions            *session.Manager
	tokens              *auth.TokenManager
	authenticator       *auth.Authenticator
	chatService         *chatService.ChatService
	conversationService *conversationService.ConversationService
	validator           *validation.ChatRequestValidator
	authValidator       *validation.AuthRequestValidator
	markdown            *render.Markdown
	templates           *template.Template
}

// NewChatHandlers wires the handlers to the service layer
func NewChatHandlers(
	config *app.Config,
	sessions *session.Manager,
	conversations *conversationService.ConversationService,
	chat *chatService.ChatService,
) *ChatHandlers {
	authConfig := config.AppConfig.Auth
	uiConfig := config.AppConfig.UI

	return &ChatHandlers{
		config:              config,
		sessions:            sessions,
		tokens:              auth.NewTokenManager(authConfig.SessionSecret, authConfig.SessionTTL),
		authenticator:       auth.NewAuthenticator(authConfig),
		chatService:         chat,
		conversationService: conversations,
		validator:           validation.NewChatRequestValidator(uiConfig.MaxAttachments, uiConfig.MaxAttachmentBytes),
		authValidator:       validation.NewAuthRequestValidator(),
		markdown:            render.NewMarkdown(),
		templates:           template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}
}

// sendError sends a standardized JSON error response
func (ch *ChatHandlers) sendError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

func (ch *ChatHandlers) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Error("Error encoding JSON response")
	}
}

// resolveSession returns the session named by the cookie, starting a new
// locked one (and setting its cookie) when there is none
func (ch *ChatHandlers) resolveSession(w http.ResponseWriter, r *http.Request) *session.Session {
	if id, ok := ch.tokens.SessionIDFromRequest(r); ok {
		return ch.sessions.GetOrCreate(id)
	}

	sess := ch.sessions.Create()
	token, err := ch.tokens.Issue(sess.ID)
	if err != nil {
		logger.Log.WithError(err).Error("Error issuing session token")
		return sess
	}
	ch.tokens.SetCookie(w, token)
	return sess
}

// WithSession resolves the session context before calling next
func (ch *ChatHandlers) WithSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := ch.resolveSession(w, r)
		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequireUnlocked guards actions behind the password gate. Page actions are
// redirected to the login form; API calls get a 401.
func (ch *ChatHandlers) RequireUnlocked(api bool, next http.HandlerFunc) http.HandlerFunc {
	return ch.WithSession(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)
		if !sess.Gate.IsUnlocked() {
			logger.Log.WithFields(logrus.Fields{"session_id": sess.ID, "path": r.URL.Path}).Debug("Rejected locked session")
			if api {
				ch.sendError(w, http.StatusUnauthorized, "Password required", nil)
				return
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(SessionContextKey).(*session.Session)
}

// RegisterRoutes mounts every route on mux
func (ch *ChatHandlers) RegisterRoutes(mux *http.ServeMux) {
	// UI actions
	mux.HandleFunc("GET /{$}", ch.WithSession(ch.IndexHandler))
	mux.HandleFunc("POST /login", ch.WithSession(ch.LoginHandler))
	mux.HandleFunc("POST /chats/new", ch.RequireUnlocked(false, ch.NewChatHandler))
	mux.HandleFunc("POST /chats/{id}/load", ch.RequireUnlocked(false, ch.LoadConversationHandler))
	mux.HandleFunc("POST /history/clear", ch.RequireUnlocked(false, ch.ClearHistoryHandler))
	mux.HandleFunc("POST /model", ch.RequireUnlocked(false, ch.SelectModelHandler))
	mux.HandleFunc("POST /chat/messages", ch.RequireUnlocked(true, ch.ChatStreamHandler))

	// JSON API
	mux.HandleFunc("GET /api/health", ch.HealthHandler)
	mux.HandleFunc("GET /api/models", ch.RequireUnlocked(true, ch.GetModelsHandler))
	mux.HandleFunc("GET /api/conversations", ch.RequireUnlocked(true, ch.GetConversationsHandler))
	mux.HandleFunc("GET /api/conversations/{id}", ch.RequireUnlocked(true, ch.GetConversationHandler))
}
