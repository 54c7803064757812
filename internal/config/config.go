package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Vector backends.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  string
	LogFormat string

	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	EmbeddingBaseURL string
	EmbeddingModelID string
	EmbeddingAPIKey  string
	EmbeddingDim     int

	DBPath       string
	DataDir      string
	WatchDataDir bool
	// GCSEnabled allows gs:// sources, read with application default credentials.
	GCSEnabled bool

	VectorBackend    string
	QdrantURL        string
	QdrantCollection string

	ParserBaseURL string
	ParserAPIKey  string

	APIPort string

	Pipeline PipelineConfig
}

// PipelineConfig holds the ingestion and retrieval tuning keys. They can be
// set in the YAML file named by RAG_CONFIG_FILE; environment variables win.
type PipelineConfig struct {
	MaxTokensPerChunk          int     `yaml:"max_tokens_per_chunk"`
	ChunkOverlapRatio          float64 `yaml:"chunk_overlap_ratio"`
	EmbeddingBatchSize         int     `yaml:"embedding_batch_size"`
	EmbeddingRateLimit         float64 `yaml:"embedding_rate_limit"`
	RetrievalK                 int     `yaml:"retrieval_k"`
	RetrievalCandidatePoolSize int     `yaml:"retrieval_candidate_pool_size"`
	RetrievalVectorWeight      float64 `yaml:"retrieval_vector_weight"`
	RetrievalLexicalWeight     float64 `yaml:"retrieval_lexical_weight"`
	ContextChunksPerDocument   int     `yaml:"context_chunks_per_document"`
	ServiceTimeoutSeconds      int     `yaml:"service_timeout_seconds"`
	MaxRetryAttempts           int     `yaml:"max_retry_attempts"`
	IngestConcurrency          int     `yaml:"ingest_concurrency"`
	LLMTemperature             float64 `yaml:"llm_temperature"`
	LLMMaxTokens               int     `yaml:"llm_max_tokens"`
}

// ServiceTimeout returns the per-call timeout for external services.
func (p PipelineConfig) ServiceTimeout() time.Duration {
	return time.Duration(p.ServiceTimeoutSeconds) * time.Second
}

// DefaultPipeline returns the tuning defaults.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		MaxTokensPerChunk:          450,
		ChunkOverlapRatio:          0.1,
		EmbeddingBatchSize:         32,
		EmbeddingRateLimit:         0,
		RetrievalK:                 5,
		RetrievalCandidatePoolSize: 20,
		RetrievalVectorWeight:      0.8,
		RetrievalLexicalWeight:     0.2,
		ContextChunksPerDocument:   1,
		ServiceTimeoutSeconds:      30,
		MaxRetryAttempts:           3,
		IngestConcurrency:          4,
		LLMTemperature:             0.2,
		LLMMaxTokens:               1024,
	}
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	loadDotEnv()

	pipeline := DefaultPipeline()
	if path := getEnv("RAG_CONFIG_FILE", ""); path != "" {
		if err := loadPipelineFile(path, &pipeline); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:     getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:        getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelID: getEnv("EMBEDDING_MODEL_ID", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", "dummy-key"),
		DBPath:           getEnv("DB_PATH", "./data/realestate-rag.db"),
		DataDir:          getEnv("DATA_DIR", "./data/documents"),
		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", BackendQdrant)),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "realestate"),
		ParserBaseURL:    getEnv("PARSER_BASE_URL", ""),
		ParserAPIKey:     getEnv("PARSER_API_KEY", ""),
		APIPort:          getEnv("API_PORT", "9000"),
	}

	var err error
	if cfg.WatchDataDir, err = getBool("WATCH_DATA_DIR", false); err != nil {
		return nil, err
	}
	if cfg.GCSEnabled, err = getBool("GCS_ENABLED", false); err != nil {
		return nil, err
	}

	// Must match the output size of the embedding model. Changing it requires
	// recreating the collection.
	dimStr := getEnv("EMBEDDING_DIM", "")
	if dimStr == "" {
		return nil, fmt.Errorf("EMBEDDING_DIM is required")
	}
	if cfg.EmbeddingDim, err = strconv.Atoi(dimStr); err != nil {
		return nil, fmt.Errorf("EMBEDDING_DIM must be a valid integer: %w", err)
	}

	if err := applyPipelineEnv(&pipeline); err != nil {
		return nil, err
	}
	cfg.Pipeline = pipeline

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be greater than 0")
	}
	switch c.VectorBackend {
	case BackendQdrant, BackendMemory:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", BackendQdrant, BackendMemory, c.VectorBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	p := c.Pipeline
	switch {
	case p.MaxTokensPerChunk <= 0:
		return fmt.Errorf("max_tokens_per_chunk must be greater than 0")
	case p.ChunkOverlapRatio < 0 || p.ChunkOverlapRatio >= 1:
		return fmt.Errorf("chunk_overlap_ratio must be in [0, 1)")
	case p.EmbeddingBatchSize <= 0:
		return fmt.Errorf("embedding_batch_size must be greater than 0")
	case p.EmbeddingRateLimit < 0:
		return fmt.Errorf("embedding_rate_limit cannot be negative")
	case p.RetrievalK <= 0:
		return fmt.Errorf("retrieval_k must be greater than 0")
	case p.RetrievalCandidatePoolSize < 0:
		return fmt.Errorf("retrieval_candidate_pool_size cannot be negative")
	case p.RetrievalVectorWeight < 0 || p.RetrievalLexicalWeight < 0:
		return fmt.Errorf("retrieval weights cannot be negative")
	case p.RetrievalVectorWeight+p.RetrievalLexicalWeight == 0:
		return fmt.Errorf("retrieval weights cannot both be 0")
	case p.ContextChunksPerDocument <= 0:
		return fmt.Errorf("context_chunks_per_document must be greater than 0")
	case p.ServiceTimeoutSeconds <= 0:
		return fmt.Errorf("service_timeout_seconds must be greater than 0")
	case p.MaxRetryAttempts <= 0:
		return fmt.Errorf("max_retry_attempts must be greater than 0")
	case p.IngestConcurrency <= 0:
		return fmt.Errorf("ingest_concurrency must be greater than 0")
	case p.LLMMaxTokens < 0:
		return fmt.Errorf("llm_max_tokens cannot be negative")
	}
	return nil
}

// loadDotEnv loads .env from the working directory or the closest parent.
func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// loadPipelineFile overlays the YAML file at path onto p. Keys absent from
// the file keep their current value.
func loadPipelineFile(path string, p *PipelineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("RAG_CONFIG_FILE %s does not exist", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyPipelineEnv(p *PipelineConfig) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_TOKENS_PER_CHUNK", &p.MaxTokensPerChunk},
		{"EMBEDDING_BATCH_SIZE", &p.EmbeddingBatchSize},
		{"RETRIEVAL_K", &p.RetrievalK},
		{"RETRIEVAL_CANDIDATE_POOL_SIZE", &p.RetrievalCandidatePoolSize},
		{"CONTEXT_CHUNKS_PER_DOCUMENT", &p.ContextChunksPerDocument},
		{"SERVICE_TIMEOUT_SECONDS", &p.ServiceTimeoutSeconds},
		{"MAX_RETRY_ATTEMPTS", &p.MaxRetryAttempts},
		{"INGEST_CONCURRENCY", &p.IngestConcurrency},
		{"LLM_MAX_TOKENS", &p.LLMMaxTokens},
	}
	for _, f := range ints {
		v, err := getInt(f.key, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"CHUNK_OVERLAP_RATIO", &p.ChunkOverlapRatio},
		{"EMBEDDING_RATE_LIMIT", &p.EmbeddingRateLimit},
		{"RETRIEVAL_VECTOR_WEIGHT", &p.RetrievalVectorWeight},
		{"RETRIEVAL_LEXICAL_WEIGHT", &p.RetrievalLexicalWeight},
		{"LLM_TEMPERATURE", &p.LLMTemperature},
	}
	for _, f := range floats {
		v, err := getFloat(f.key, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}
