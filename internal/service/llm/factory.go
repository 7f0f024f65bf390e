package llm

import (
	"fmt"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderCompatible ProviderType = "openai-compatible"
	ProviderOpenAI     ProviderType = "openai"
	ProviderGenkit     ProviderType = "genkit"
)

// ParseProviderType parses a string into a ProviderType
func ParseProviderType(s string) (ProviderType, error) {
	switch s {
	case "openai-compatible", "":
		return ProviderCompatible, nil
	case "openai":
		return ProviderOpenAI, nil
	case "genkit":
		return ProviderGenkit, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// NewLLMProvider creates the provider named in the LLM configuration
func NewLLMProvider(llmConfig *config.LLMConfig, models *config.ModelsConfig) (LLMProvider, error) {
	providerType, err := ParseProviderType(llmConfig.Provider)
	if err != nil {
		return nil, err
	}

	logger.Log.WithField("provider", providerType).Info("Creating LLM provider")

	switch providerType {
	case ProviderOpenAI:
		return NewOpenAIProvider(llmConfig)
	case ProviderGenkit:
		return NewGenkitProvider(llmConfig, models.GetDefaultModel())
	default:
		return NewCompatibleProvider(llmConfig), nil
	}
}
