package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vision-chat/internal/api/handlers"
	"vision-chat/internal/app"
	"vision-chat/internal/config"
	"vision-chat/internal/logger"
	"vision-chat/internal/repository/sqlite"
	chatService "vision-chat/internal/service/chat"
	conversationService "vision-chat/internal/service/conversation"
	"vision-chat/internal/service/llm"
	summaryService "vision-chat/internal/service/summary"
	"vision-chat/internal/session"

	"github.com/sirupsen/logrus"
)

const (
	pruneInterval   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger.Log.Info("Starting vision chat server")

	// Load centralized configuration
	appConfig, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(appConfig.Server.LogLevel)

	// Initialize database
	logger.Log.WithField("path", appConfig.Database.Path).Info("Opening conversation history")
	database, err := sqlite.NewSQLiteDB(appConfig.Database)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close()

	// Create LLM provider
	provider, err := llm.NewLLMProvider(&appConfig.LLM, appConfig.Models)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to create LLM provider")
	}

	cfg := app.NewConfig(database, appConfig, provider)

	// Initialize services
	summary := summaryService.NewSummaryService(cfg)
	conversations := conversationService.NewConversationService(database, summary)
	chat := chatService.NewChatService(cfg, conversations)
	sessions := session.NewManager(cfg.ModelsConfig().GetDefaultModel())

	chatHandlers := handlers.NewChatHandlers(cfg, sessions, conversations, chat)

	// Create new ServeMux to use Go 1.22+ routing features for path parameters
	mux := http.NewServeMux()
	chatHandlers.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: replies are streamed for as long as the model takes
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneSessions(ctx, sessions, appConfig.Auth.SessionTTL)

	go func() {
		logger.Log.WithFields(logrus.Fields{
			"port":     appConfig.Server.Port,
			"provider": provider.Name(),
			"models":   len(cfg.ModelsConfig().GetAvailableModels()),
		}).Info("Server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Graceful shutdown failed")
	}
}

// pruneSessions drops sessions idle for longer than the token lifetime
func pruneSessions(ctx context.Context, sessions *session.Manager, maxIdle time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := sessions.PruneIdle(now, maxIdle); removed > 0 {
				logger.Log.WithFields(logrus.Fields{"removed": removed, "active": sessions.Len()}).Info("Pruned idle sessions")
			}
		}
	}
}
