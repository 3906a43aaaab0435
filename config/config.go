package config

import (
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// Data directory
	DataDir string

	// Database
	DatabasePath string

	// Chat tree behaviour
	HistorySort    bool   // list children groups-first, alphabetical
	HistoryPath    string // quick-save target for backups
	WelcomeMessage string

	// OpenAI (streaming responder)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	SystemPrompt  string

	// Debug settings
	DBLogQueries bool
	LogLevel     string
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.Mutex
)

// Get returns the global configuration (singleton)
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {
		cfg = load(viper.GetViper())
	})
	return cfg
}

// Reload re-reads configuration after a config file has been merged into viper.
// The CLI calls it once flags are parsed.
func Reload() *Config {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {})
	cfg = load(viper.GetViper())
	return cfg
}

// LoadFile merges a YAML/JSON/TOML config file into viper and reloads the config.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return Reload(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 12346)
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("ENV", "development")
	v.SetDefault("CHAT_DATA_DIR", "./data")
	v.SetDefault("CHAT_DB_PATH", "")
	v.SetDefault("CHAT_HISTORY_SORT", false)
	v.SetDefault("CHAT_HISTORY_PATH", "")
	v.SetDefault("CHAT_WELCOME_MESSAGE", "Welcome to your new chat!")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_SYSTEM_PROMPT", "")
	v.SetDefault("CHAT_DB_LOG_QUERIES", false)
	v.SetDefault("LOG_LEVEL", "info")
}

// load reads configuration from environment variables and any merged config file
func load(v *viper.Viper) *Config {
	setDefaults(v)
	v.AutomaticEnv()

	dataDir := v.GetString("CHAT_DATA_DIR")
	dbPath := v.GetString("CHAT_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "app", "my-life-chat", "chats.sqlite3")
	}

	return &Config{
		Port: v.GetInt("PORT"),
		Host: v.GetString("HOST"),
		Env:  v.GetString("ENV"),

		DataDir:      dataDir,
		DatabasePath: dbPath,

		HistorySort:    v.GetBool("CHAT_HISTORY_SORT"),
		HistoryPath:    v.GetString("CHAT_HISTORY_PATH"),
		WelcomeMessage: v.GetString("CHAT_WELCOME_MESSAGE"),

		OpenAIAPIKey:  v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL: v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:   v.GetString("OPENAI_MODEL"),
		SystemPrompt:  v.GetString("LLM_SYSTEM_PROMPT"),

		DBLogQueries: v.GetBool("CHAT_DB_LOG_QUERIES"),
		LogLevel:     v.GetString("LOG_LEVEL"),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// GetDataRoot returns the CHAT_DATA_DIR path
func (c *Config) GetDataRoot() string {
	return c.DataDir
}
