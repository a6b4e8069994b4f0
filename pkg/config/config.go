// Package config holds global settings for the MIRAGE gateway. Everything can
// be configured via environment variables (MIRAGE_* prefix), a .env file, or
// programmatically; an optional YAML overlay tunes the scoring thresholds
// without a rebuild.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StoreBackend selects the record store implementation.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"   // Single-node, default
	StoreRedis    StoreBackend = "redis"    // Shared sessions across nodes
	StorePostgres StoreBackend = "postgres" // Durable sessions + audit log
)

// EmbedderBackend selects the embedding collaborator.
type EmbedderBackend string

const (
	EmbedderHash   EmbedderBackend = "hash"   // Deterministic, zero-dependency (default)
	EmbedderLocal  EmbedderBackend = "local"  // Hugot/ONNX feature extraction
	EmbedderRemote EmbedderBackend = "remote" // OpenAI-compatible /embeddings endpoint
)

// Config holds all gateway settings.
type Config struct {
	// === Core ===
	ServerPort string

	// === Record Store ===
	Store       StoreBackend
	RedisURL    string
	DatabaseURL string
	// SessionTTL bounds how long an idle identity stays in the memory store.
	SessionTTL time.Duration

	// === Generation Service ===
	// Any OpenAI-compatible chat endpoint works; Groq is the default.
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMSystemRole  string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTopP        float64
	// MaxConcurrentGenerations bounds in-flight generation calls.
	MaxConcurrentGenerations int

	// === Embedding ===
	Embedder        EmbedderBackend
	EmbedDimension  int
	EmbedModelPath  string // local: ONNX model directory
	EmbedModelName  string // local: HuggingFace name for download
	EmbedAPIKey     string // remote
	EmbedBaseURL    string // remote
	EmbedModel      string // remote

	// === Scoring ===
	RPMCeiling      float64
	VelocityWeight  float64
	DiversityWeight float64

	// === Tier thresholds ===
	EscalationThreshold float64
	Tier3Score          float64
	Tier3MinMinutes     float64
	Tier2Score          float64
	Tier2MinMinutes     float64
	Tier2MaxMinutes     float64

	// === Audit Ledger ===
	LedgerURL string
	// LedgerMaxInFlight caps concurrent fire-and-forget dispatches.
	LedgerMaxInFlight int

	// === Noise pipeline ===
	SynonymPackPath string // optional YAML synonym pack

	// === Forensics ===
	EnableForensics bool
}

// NewDefaultConfig creates a Config with sensible defaults, reading MIRAGE_*
// environment variables (a .env file is honored when present) and then an
// optional YAML overlay pointed at by MIRAGE_CONFIG_FILE.
func NewDefaultConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: GetEnv("MIRAGE_PORT", "8000"),

		Store:       StoreBackend(GetEnv("MIRAGE_STORE", string(StoreMemory))),
		RedisURL:    GetEnv("MIRAGE_REDIS_URL", "redis://localhost:6379"),
		DatabaseURL: GetEnv("MIRAGE_DATABASE_URL", ""),
		SessionTTL:  time.Duration(GetEnvInt("MIRAGE_SESSION_TTL_SECONDS", 24*3600)) * time.Second,

		LLMAPIKey:      GetEnv("MIRAGE_LLM_API_KEY", os.Getenv("GROQ_API_KEY")),
		LLMBaseURL:     GetEnv("MIRAGE_LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMModel:       GetEnv("MIRAGE_LLM_MODEL", "llama-3.1-8b-instant"),
		LLMSystemRole:  GetEnv("MIRAGE_LLM_SYSTEM_ROLE", "You are a helpful, accurate, and professional assistant. Provide clear, concise, and relevant responses."),
		LLMTemperature: GetEnvFloat("MIRAGE_LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:   GetEnvInt("MIRAGE_LLM_MAX_TOKENS", 512),
		LLMTopP:        GetEnvFloat("MIRAGE_LLM_TOP_P", 0.9),

		MaxConcurrentGenerations: GetEnvInt("MIRAGE_MAX_GENERATIONS", 64),

		Embedder:       EmbedderBackend(GetEnv("MIRAGE_EMBEDDER", string(EmbedderHash))),
		EmbedDimension: GetEnvInt("MIRAGE_EMBED_DIMENSION", 128),
		EmbedModelPath: GetEnv("MIRAGE_EMBED_MODEL_PATH", ""),
		EmbedModelName: GetEnv("MIRAGE_EMBED_MODEL_NAME", "sentence-transformers/all-MiniLM-L6-v2"),
		EmbedAPIKey:    GetEnv("MIRAGE_EMBED_API_KEY", ""),
		EmbedBaseURL:   GetEnv("MIRAGE_EMBED_BASE_URL", "https://api.openai.com/v1"),
		EmbedModel:     GetEnv("MIRAGE_EMBED_MODEL", "text-embedding-3-small"),

		RPMCeiling:      GetEnvFloat("MIRAGE_RPM_CEILING", 30.0),
		VelocityWeight:  GetEnvFloat("MIRAGE_VELOCITY_WEIGHT", 0.4),
		DiversityWeight: GetEnvFloat("MIRAGE_DIVERSITY_WEIGHT", 0.6),

		EscalationThreshold: GetEnvFloat("MIRAGE_ESCALATION_THRESHOLD", 0.65),
		Tier3Score:          GetEnvFloat("MIRAGE_TIER3_SCORE", 0.95),
		Tier3MinMinutes:     GetEnvFloat("MIRAGE_TIER3_MIN_MINUTES", 10),
		Tier2Score:          GetEnvFloat("MIRAGE_TIER2_SCORE", 0.8),
		Tier2MinMinutes:     GetEnvFloat("MIRAGE_TIER2_MIN_MINUTES", 2),
		Tier2MaxMinutes:     GetEnvFloat("MIRAGE_TIER2_MAX_MINUTES", 10),

		LedgerURL:         GetEnv("MIRAGE_LEDGER_URL", "http://localhost:3001"),
		LedgerMaxInFlight: GetEnvInt("MIRAGE_LEDGER_MAX_IN_FLIGHT", 64),

		SynonymPackPath: GetEnv("MIRAGE_SYNONYM_PACK", ""),

		EnableForensics: GetEnvBool("MIRAGE_ENABLE_FORENSICS", true),
	}

	if path := os.Getenv("MIRAGE_CONFIG_FILE"); path != "" {
		if err := cfg.ApplyOverlay(path); err != nil {
			log.Printf("[CONFIG] overlay %s ignored: %v", path, err)
		}
	}

	return cfg
}

// Validate checks configuration consistency. Missing generation credentials
// are fatal: the engine has no cached/fallback answer path.
func (c *Config) Validate() error {
	var problems []string

	if c.LLMAPIKey == "" {
		problems = append(problems, "MIRAGE_LLM_API_KEY (generation service credential)")
	}

	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			problems = append(problems, "MIRAGE_REDIS_URL (required for redis store)")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "MIRAGE_DATABASE_URL (required for postgres store)")
		}
	default:
		problems = append(problems, fmt.Sprintf("MIRAGE_STORE (unknown backend %q)", c.Store))
	}

	switch c.Embedder {
	case EmbedderHash, EmbedderLocal:
	case EmbedderRemote:
		if c.EmbedAPIKey == "" {
			problems = append(problems, "MIRAGE_EMBED_API_KEY (required for remote embedder)")
		}
	default:
		problems = append(problems, fmt.Sprintf("MIRAGE_EMBEDDER (unknown backend %q)", c.Embedder))
	}

	if c.VelocityWeight < 0 || c.DiversityWeight < 0 {
		problems = append(problems, "scoring weights must be non-negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits on failure. Call at startup
// before serving.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	log.Println("[STARTUP] configuration validated")
}

// Helper functions for environment variable parsing.
// Exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
