package config

import (
	"encoding/json"
	"os"
)

// FallbackModel is used when no models are configured
const FallbackModel = "gpt-4o-mini"

// Model represents an available LLM model
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Vision   bool   `json:"vision"`
}

// ModelsConfig holds the available models configuration
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	err = json.Unmarshal(data, &models)
	if err != nil {
		return nil, err
	}

	return &ModelsConfig{models: models}, nil
}

// NewModelsConfigFromList wraps an in-memory model list
func NewModelsConfigFromList(models []Model) *ModelsConfig {
	return &ModelsConfig{models: models}
}

// DefaultModelsConfig returns the built-in single-model configuration
func DefaultModelsConfig() *ModelsConfig {
	return &ModelsConfig{models: []Model{
		{ID: FallbackModel, Name: "GPT-4o mini", Provider: "OpenAI", Vision: true},
	}}
}

// GetAvailableModels returns the list of available models
func (mc *ModelsConfig) GetAvailableModels() []Model {
	return mc.models
}

// IsValidModel checks if a model ID is in the list of available models
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetDefaultModel returns the first model as the default
func (mc *ModelsConfig) GetDefaultModel() string {
	if len(mc.models) > 0 {
		return mc.models[0].ID
	}
	return FallbackModel
}

// DisplayName returns the human-readable name for a model ID
func (mc *ModelsConfig) DisplayName(modelID string) string {
	for _, model := range mc.models {
		if model.ID == modelID && model.Name != "" {
			return model.Name
		}
	}
	return modelID
}
