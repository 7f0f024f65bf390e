package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"vision-chat/internal/logger"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
	Auth     AuthConfig
	UI       UIConfig
	Models   *ModelsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port     string
	LogLevel string
}

// DatabaseConfig holds the location of the SQLite history file
type DatabaseConfig struct {
	Path string
}

// LLMConfig holds completion endpoint configuration
type LLMConfig struct {
	Provider      string
	APIKey        string
	BaseURL       string
	SummaryPrompt string
}

// AuthConfig holds the access password and session cookie settings.
// Exactly one of Password or PasswordHash is used; the hash wins when both are set.
type AuthConfig struct {
	Password           string
	PasswordHash       string
	SessionSecret      []byte
	SessionTTL         time.Duration
	LoginRatePerMinute int
	LoginBurst         int
}

// UIConfig holds presentation settings and upload limits
type UIConfig struct {
	Title              string
	Version            string
	MaxAttachments     int
	MaxAttachmentBytes int64
}

// fileConfig mirrors the optional TOML file. Every value can still be
// overridden by its environment variable.
type fileConfig struct {
	Server struct {
		Port     string `toml:"port"`
		LogLevel string `toml:"log_level"`
	} `toml:"server"`
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	LLM struct {
		Provider      string `toml:"provider"`
		BaseURL       string `toml:"base_url"`
		SummaryPrompt string `toml:"summary_prompt"`
		ModelsPath    string `toml:"models_path"`
	} `toml:"llm"`
	Auth struct {
		SessionTTL         string `toml:"session_ttl"`
		LoginRatePerMinute int    `toml:"login_rate_per_minute"`
		LoginBurst         int    `toml:"login_burst"`
	} `toml:"auth"`
	UI struct {
		Title              string `toml:"title"`
		Version            string `toml:"version"`
		MaxAttachments     int    `toml:"max_attachments"`
		MaxAttachmentBytes int64  `toml:"max_attachment_bytes"`
	} `toml:"ui"`
}

const (
	DefaultSummaryPrompt = "Summarize the following message into 3-4 words: "
	DefaultSessionTTL    = 24 * time.Hour
	minSessionSecretLen  = 32
)

func defaultFileConfig() fileConfig {
	var fc fileConfig
	fc.Server.Port = "8080"
	fc.Server.LogLevel = "info"
	fc.Database.Path = "chat_history.db"
	fc.LLM.Provider = "openai-compatible"
	fc.LLM.BaseURL = "https://api.openai.com/v1"
	fc.LLM.SummaryPrompt = DefaultSummaryPrompt
	fc.Auth.SessionTTL = DefaultSessionTTL.String()
	fc.Auth.LoginRatePerMinute = 10
	fc.Auth.LoginBurst = 5
	fc.UI.Title = "Vision Chat"
	fc.UI.Version = "0.1"
	fc.UI.MaxAttachments = 10
	fc.UI.MaxAttachmentBytes = 20 << 20
	return fc
}

// LoadConfig loads and validates application configuration.
// Precedence: environment, then the TOML file named by CONFIG_PATH, then built-in defaults.
func LoadConfig() (*AppConfig, error) {
	fc := defaultFileConfig()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		logger.Log.WithField("path", path).Info("Loaded config file")
	}

	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:     getEnvOrDefault("SERVER_PORT", fc.Server.Port),
		LogLevel: getEnvOrDefault("LOG_LEVEL", fc.Server.LogLevel),
	}

	config.Database = DatabaseConfig{
		Path: getEnvOrDefault("DB_PATH", fc.Database.Path),
	}

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		logger.Log.Warn("LLM_API_KEY environment variable not set")
	}

	config.LLM = LLMConfig{
		Provider:      getEnvOrDefault("LLM_PROVIDER", fc.LLM.Provider),
		APIKey:        apiKey,
		BaseURL:       getEnvOrDefault("LLM_BASE_URL", fc.LLM.BaseURL),
		SummaryPrompt: getEnvOrDefault("SUMMARY_PROMPT", fc.LLM.SummaryPrompt),
	}

	auth, err := loadAuthConfig(fc)
	if err != nil {
		return nil, err
	}
	config.Auth = *auth

	config.UI = UIConfig{
		Title:              getEnvOrDefault("APP_TITLE", fc.UI.Title),
		Version:            getEnvOrDefault("APP_VERSION", fc.UI.Version),
		MaxAttachments:     getEnvAsInt("MAX_ATTACHMENTS", fc.UI.MaxAttachments),
		MaxAttachmentBytes: int64(getEnvAsInt("MAX_ATTACHMENT_BYTES", int(fc.UI.MaxAttachmentBytes))),
	}

	modelsPath := getEnvOrDefault("MODELS_CONFIG_PATH", fc.LLM.ModelsPath)
	if modelsPath == "" {
		config.Models = DefaultModelsConfig()
	} else {
		modelsConfig, err := NewModelsConfig(modelsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load models config: %w", err)
		}
		config.Models = modelsConfig
	}

	return config, nil
}

func loadAuthConfig(fc fileConfig) (*AuthConfig, error) {
	password := os.Getenv("APP_PASSWORD")
	passwordHash := os.Getenv("APP_PASSWORD_BCRYPT")
	if password == "" && passwordHash == "" {
		return nil, errors.New("APP_PASSWORD or APP_PASSWORD_BCRYPT environment variable must be set")
	}

	secret := []byte(os.Getenv("SESSION_SECRET"))
	switch {
	case len(secret) == 0:
		secret = make([]byte, minSessionSecretLen)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		logger.Log.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	case len(secret) < minSessionSecretLen:
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d characters (current length: %d)", minSessionSecretLen, len(secret))
	}

	ttl, err := time.ParseDuration(fc.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid session_ttl %q: %w", fc.Auth.SessionTTL, err)
	}

	return &AuthConfig{
		Password:           password,
		PasswordHash:       passwordHash,
		SessionSecret:      secret,
		SessionTTL:         getEnvAsDuration("SESSION_TTL", ttl),
		LoginRatePerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", fc.Auth.LoginRatePerMinute),
		LoginBurst:         getEnvAsInt("LOGIN_BURST", fc.Auth.LoginBurst),
	}, nil
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}
