package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	DatabaseURL  string `envconfig:"DATABASE_URL" default:"storyforge.db?_foreign_keys=on&_busy_timeout=5000"`
	HTTPPort     string `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding  string `envconfig:"LOG_ENCODING" default:"json"`

	ChatModel      string        `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	EmbeddingModel string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	Temperature    float32       `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	MaxRetries     int           `envconfig:"LLM_MAX_RETRIES" default:"2"`
	RetryDelay     time.Duration `envconfig:"LLM_RETRY_DELAY" default:"500ms"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"90s"`

	// Chat memory tuning.
	MemoryThreshold int `envconfig:"MEMORY_THRESHOLD" default:"50"`
	ChatHistorySize int `envconfig:"CHAT_HISTORY_SIZE" default:"10"`
	HistoryResults  int `envconfig:"HISTORY_RESULTS" default:"3"`
	SettingsResults int `envconfig:"SETTINGS_RESULTS" default:"2"`

	ArchiveWorkers   int `envconfig:"ARCHIVE_WORKERS" default:"2"`
	ArchiveQueueSize int `envconfig:"ARCHIVE_QUEUE_SIZE" default:"64"`

	// ParallelStages runs the locations and characters stages concurrently.
	ParallelStages bool `envconfig:"PARALLEL_STAGES" default:"false"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.MemoryThreshold <= 0 {
		return nil, fmt.Errorf("MEMORY_THRESHOLD must be positive, got %d", cfg.MemoryThreshold)
	}
	if cfg.ChatHistorySize <= 0 {
		return nil, fmt.Errorf("CHAT_HISTORY_SIZE must be positive, got %d", cfg.ChatHistorySize)
	}
	return &cfg, nil
}
