package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CREDENCE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CREDENCE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func RedisURL() string {
	return os.Getenv("REDIS_URL")
}

// HistoryBackend selects where source bookmarks and window hashes live.
// Defaults to "postgres". Valid values: postgres, redis.
func HistoryBackend() string {
	b := os.Getenv("HISTORY_BACKEND")
	if b == "" {
		return "postgres"
	}
	return b
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DecayK returns the decay rate constant used for effective-confidence
// ranking. Defaults to 0.1 if not set.
func DecayK() float64 {
	k, err := strconv.ParseFloat(os.Getenv("DECAY_K"), 64)
	if err != nil || k < 0 {
		return 0.1
	}
	return k
}

// RevisionTopK returns how many similar candidates are retrieved per
// revision. Defaults to 5 if not set.
func RevisionTopK() int {
	k, err := strconv.Atoi(os.Getenv("REVISION_TOPK"))
	if err != nil || k <= 0 {
		return 5
	}
	return k
}

// SimilarityThreshold returns the minimum cosine similarity for a stored
// proposition to count as a revision candidate. Defaults to 0.5 if not set.
func SimilarityThreshold() float32 {
	t, err := strconv.ParseFloat(os.Getenv("SIMILARITY_THRESHOLD"), 32)
	if err != nil || t <= 0 || t > 1 {
		return 0.5
	}
	return float32(t)
}

// WindowSize returns how many source items one analysis window covers.
// Defaults to 20 if not set.
func WindowSize() int {
	n, err := strconv.Atoi(os.Getenv("WINDOW_SIZE"))
	if err != nil || n <= 0 {
		return 20
	}
	return n
}

// OverlapSize returns how many already-processed items each window re-reads
// for continuity. Defaults to 2 if not set.
func OverlapSize() int {
	n, err := strconv.Atoi(os.Getenv("OVERLAP_SIZE"))
	if err != nil || n < 0 {
		return 2
	}
	return n
}

// TriggerInterval returns how many new items must accumulate before a
// non-forced analysis runs. Defaults to 4 if not set.
func TriggerInterval() int {
	n, err := strconv.Atoi(os.Getenv("TRIGGER_INTERVAL"))
	if err != nil || n <= 0 {
		return 4
	}
	return n
}

// SweepInterval returns how often the background deduplication sweep runs.
// Defaults to 6h if not set.
func SweepInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
