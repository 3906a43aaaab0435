package server

import (
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/config"
	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/vendors"
)

// Config holds server configuration
type Config struct {
	// Server infrastructure (immutable, requires restart)
	Port int
	Host string
	Env  string // "development" or "production"

	// Storage
	DatabasePath string
	HistoryPath  string // default target of POST /api/backup

	// Chat tree behaviour
	HistorySort    bool
	WelcomeMessage string

	// External services
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	SystemPrompt  string

	// Debug settings
	DBLogQueries bool
}

// FromAppConfig copies the settings the server needs out of the application config
func FromAppConfig(cfg *config.Config) *Config {
	return &Config{
		Port:           cfg.Port,
		Host:           cfg.Host,
		Env:            cfg.Env,
		DatabasePath:   cfg.DatabasePath,
		HistoryPath:    cfg.HistoryPath,
		HistorySort:    cfg.HistorySort,
		WelcomeMessage: cfg.WelcomeMessage,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		OpenAIBaseURL:  cfg.OpenAIBaseURL,
		OpenAIModel:    cfg.OpenAIModel,
		SystemPrompt:   cfg.SystemPrompt,
		DBLogQueries:   cfg.DBLogQueries,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// ToDBConfig converts server config to database config
func (c *Config) ToDBConfig() db.Config {
	return db.Config{
		Path:       c.DatabasePath,
		LogQueries: c.DBLogQueries,
	}
}

// ToStoreOptions converts server config to chat store options
func (c *Config) ToStoreOptions(notifier chats.Notifier) chats.Options {
	return chats.Options{
		WelcomeMessage: c.WelcomeMessage,
		SortChildren:   c.HistorySort,
		Notifier:       notifier,
	}
}

// ToOpenAIConfig converts server config to the responder's client settings
func (c *Config) ToOpenAIConfig() vendors.OpenAIConfig {
	return vendors.OpenAIConfig{
		APIKey:       c.OpenAIAPIKey,
		BaseURL:      c.OpenAIBaseURL,
		Model:        c.OpenAIModel,
		SystemPrompt: c.SystemPrompt,
	}
}
