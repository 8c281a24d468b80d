package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	AI           AIConfig           `mapstructure:"ai"`
	Workers      WorkersConfig      `mapstructure:"workers"`
	Shortlisting ShortlistingConfig `mapstructure:"shortlisting"`
	Mail         MailConfig         `mapstructure:"mail"`
	Server       ServerConfig       `mapstructure:"server"`
}

type StorageConfig struct {
	UploadDir string `mapstructure:"upload-dir"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AIConfig struct {
	Provider          string       `mapstructure:"provider"`
	RequestsPerMinute int          `mapstructure:"requests-per-minute"`
	MaxLogLength      int          `mapstructure:"max-log-length"`
	Gemini            GeminiConfig `mapstructure:"gemini"`
	Ollama            OllamaConfig `mapstructure:"ollama"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type OllamaConfig struct {
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WorkersConfig struct {
	Parsing PoolConfig `mapstructure:"parsing"`
}

type PoolConfig struct {
	Count int `mapstructure:"count"`
	Queue int `mapstructure:"queue"`
}

type ShortlistingConfig struct {
	DefaultThreshold float64 `mapstructure:"default-threshold"`
}

type MailConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	From         string `mapstructure:"from"`
	Company      string `mapstructure:"company"`
	TLSPolicy    string `mapstructure:"tls-policy"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	BodyLimit       int           `mapstructure:"body-limit"`
}

// setDefaults registers every key so that environment overrides are picked
// up by Unmarshal even when the config file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.upload-dir", "./uploads")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "cv-screener.db")

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.requests-per-minute", 0)
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.ollama.url", "http://localhost:11434/api/generate")
	v.SetDefault("ai.ollama.model", "llama3")
	v.SetDefault("ai.ollama.timeout", 5*time.Minute)

	v.SetDefault("workers.parsing.count", 4)
	v.SetDefault("workers.parsing.queue", 200)

	v.SetDefault("shortlisting.default-threshold", 80.0)

	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.password-file", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.company", "AI Corp")
	v.SetDefault("mail.tls-policy", "mandatory")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown-timeout", 30*time.Second)
	v.SetDefault("server.body-limit", 10<<20)
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, fmt.Errorf("config is empty")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q (want sqlite or postgres)", c.Database.Driver)
	}
	switch strings.ToLower(c.AI.Provider) {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("unsupported ai provider %q (want gemini or ollama)", c.AI.Provider)
	}
	if c.Shortlisting.DefaultThreshold < 0 || c.Shortlisting.DefaultThreshold > 100 {
		return fmt.Errorf("shortlisting.default-threshold must be between 0 and 100, got %v", c.Shortlisting.DefaultThreshold)
	}
	return nil
}
