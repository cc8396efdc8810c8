package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	DataDir        string // Root directory for the JSON store and retained message files
	Version        string
	LogLevel       string
	OllamaURL      string  // Base URL of the local inference backend
	OllamaModel    string  // Default model name
	OllamaTimeout  int     // Inference call timeout in seconds
	AITemperature  float32 // Generation temperature
	AIMaxTokens    int     // Generation token cap
	ReplyTone      string  // Tone directive for drafted replies (professional, friendly, casual)
	NeedsReplyTag  string  // Tag id that triggers reply drafting
	EventQueueSize int     // Capacity of the pipeline progress event queue
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		DataDir:        getEnv("DATA_DIR", defaultDataDir()),
		Version:        getEnv("VERSION", "1.0.0"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		OllamaURL:      getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "llama3.2"),
		OllamaTimeout:  getEnvInt("OLLAMA_TIMEOUT", 60),
		AITemperature:  getEnvFloat("AI_TEMPERATURE", 0.1),
		AIMaxTokens:    getEnvInt("AI_MAX_TOKENS", 1024),
		ReplyTone:      getEnv("REPLY_TONE", "professional"),
		NeedsReplyTag:  getEnv("NEEDS_REPLY_TAG", "needs-reply"),
		EventQueueSize: getEnvInt("EVENT_QUEUE_SIZE", 256),
	}

	return config
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartmailbox"
	}
	return filepath.Join(home, ".smartmailbox")
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float32 with a default fallback
func getEnvFloat(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

// InitialSettings converts the environment configuration into the
// settings record used to seed the store on first run. After that the
// persisted settings win.
func (c *Config) InitialSettings() models.Settings {
	return models.Settings{
		ServerURL:      c.OllamaURL,
		Model:          c.OllamaModel,
		Temperature:    c.AITemperature,
		MaxTokens:      c.AIMaxTokens,
		TimeoutSeconds: c.OllamaTimeout,
		ReplyTone:      c.ReplyTone,
		NeedsReplyTag:  c.NeedsReplyTag,
	}
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "smartmailbox").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
