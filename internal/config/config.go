package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type LLMBackend string

const (
	LLMGemini LLMBackend = "gemini"
	LLMVertex LLMBackend = "vertex"
	LLMMock   LLMBackend = "mock"
)

type SavePolicy string

const (
	SaveInsert    SavePolicy = "insert"
	SaveOverwrite SavePolicy = "overwrite"
)

type Config struct {
	Port string

	LLMBackend     LLMBackend
	GeminiAPIKey   string
	GCPProjectID   string
	GCPLocation    string
	ReasoningModel string
	CodingModel    string
	LLMRPS         float64

	ReasoningMaxTokens int
	CodingMaxTokens    int

	RetryMax          int
	RetryInitialDelay time.Duration

	DesignPromptDelay time.Duration
	MaxUploadFiles    int

	StorageBackend string // "memory", "sqlite" or "firestore"
	SQLiteDir      string
	SavePolicy     SavePolicy

	SessionBackend string // "memory" or "redis"
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTL     time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %v", key, v, def)
		return def
	}
	return f
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

// Load reads .env (if any) and all AGENTDASH_* env vars and builds the config
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] .env file not found, using system environment")
	}

	backend := LLMBackend(getEnv("AGENTDASH_LLM_BACKEND", string(LLMGemini)))
	switch backend {
	case LLMGemini, LLMVertex, LLMMock:
	default:
		log.Printf("[CONFIG] unknown AGENTDASH_LLM_BACKEND=%q, using gemini", backend)
		backend = LLMGemini
	}

	policy := SavePolicy(getEnv("AGENTDASH_SAVE_POLICY", string(SaveInsert)))
	if policy != SaveOverwrite {
		policy = SaveInsert
	}

	return &Config{
		Port: getEnv("AGENTDASH_PORT", getEnv("PORT", "8080")),

		LLMBackend:     backend,
		GeminiAPIKey:   getEnv("AGENTDASH_GEMINI_API_KEY", ""),
		GCPProjectID:   getEnv("AGENTDASH_GCP_PROJECT", ""),
		GCPLocation:    getEnv("AGENTDASH_GCP_LOCATION", "us-central1"),
		ReasoningModel: getEnv("AGENTDASH_REASONING_MODEL", "gemini-2.0-flash"),
		CodingModel:    getEnv("AGENTDASH_CODING_MODEL", "gemini-2.5-pro"),
		LLMRPS:         getFloatEnv("AGENTDASH_LLM_RPS", 2),

		ReasoningMaxTokens: getIntEnv("AGENTDASH_REASONING_MAX_TOKENS", 8192),
		CodingMaxTokens:    getIntEnv("AGENTDASH_CODING_MAX_TOKENS", 65536),

		RetryMax:          getIntEnv("AGENTDASH_RETRY_MAX", 3),
		RetryInitialDelay: getDurationEnv("AGENTDASH_RETRY_INITIAL_DELAY", time.Second),

		DesignPromptDelay: getDurationEnv("AGENTDASH_DESIGN_PROMPT_DELAY", time.Second),
		MaxUploadFiles:    getIntEnv("AGENTDASH_MAX_UPLOAD_FILES", 3),

		StorageBackend: getEnv("AGENTDASH_STORAGE_BACKEND", "memory"),
		SQLiteDir:      getEnv("AGENTDASH_SQLITE_DIR", "data"),
		SavePolicy:     policy,

		SessionBackend: getEnv("AGENTDASH_SESSION_BACKEND", "memory"),
		RedisAddr:      getEnv("AGENTDASH_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("AGENTDASH_REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("AGENTDASH_REDIS_DB", 0),
		SessionTTL:     getDurationEnv("AGENTDASH_SESSION_TTL", 24*time.Hour),
	}
}

// ValidateAI reports why the generation backend cannot be built, with the
// env vars that fix it. A nil error means AI features are available.
func (c *Config) ValidateAI() error {
	switch c.LLMBackend {
	case LLMMock:
		return nil
	case LLMVertex:
		if c.GCPProjectID == "" || c.GCPLocation == "" {
			return fmt.Errorf("vertex backend needs AGENTDASH_GCP_PROJECT and AGENTDASH_GCP_LOCATION")
		}
	default:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini backend needs AGENTDASH_GEMINI_API_KEY (or set AGENTDASH_LLM_BACKEND=mock for local runs)")
		}
	}
	if c.ReasoningModel == "" || c.CodingModel == "" {
		return fmt.Errorf("AGENTDASH_REASONING_MODEL and AGENTDASH_CODING_MODEL must not be empty")
	}
	return nil
}
