package app

import (
	"vision-chat/internal/config"
	"vision-chat/internal/repository/db"
	"vision-chat/internal/service/llm"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for conversation history
	DB db.Database
	// Centralized application configuration
	AppConfig *config.AppConfig
	// Completion backend shared by the chat and summary services
	LLMProvider llm.LLMProvider
}

// NewConfig creates a new application configuration
func NewConfig(database db.Database, appConfig *config.AppConfig, provider llm.LLMProvider) *Config {
	return &Config{
		DB:          database,
		AppConfig:   appConfig,
		LLMProvider: provider,
	}
}

// ModelsConfig returns the configured model list
func (c *Config) ModelsConfig() *config.ModelsConfig {
	return c.AppConfig.Models
}

// ResolveModel returns modelID when it is configured, otherwise the default model
func (c *Config) ResolveModel(modelID string) string {
	if modelID != "" && c.ModelsConfig().IsValidModel(modelID) {
		return modelID
	}
	return c.ModelsConfig().GetDefaultModel()
}
