package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envVars = []string{
	"LOG_LEVEL", "LOG_FORMAT",
	"LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL",
	"EMBEDDING_BASE_URL", "EMBEDDING_MODEL_ID", "EMBEDDING_API_KEY", "EMBEDDING_DIM",
	"DB_PATH", "DATA_DIR", "WATCH_DATA_DIR", "GCS_ENABLED",
	"VECTOR_BACKEND", "QDRANT_URL", "QDRANT_COLLECTION",
	"PARSER_BASE_URL", "PARSER_API_KEY", "API_PORT", "RAG_CONFIG_FILE",
	"MAX_TOKENS_PER_CHUNK", "CHUNK_OVERLAP_RATIO", "EMBEDDING_BATCH_SIZE", "EMBEDDING_RATE_LIMIT",
	"RETRIEVAL_K", "RETRIEVAL_CANDIDATE_POOL_SIZE", "RETRIEVAL_VECTOR_WEIGHT", "RETRIEVAL_LEXICAL_WEIGHT",
	"CONTEXT_CHUNKS_PER_DOCUMENT", "SERVICE_TIMEOUT_SECONDS", "MAX_RETRY_ATTEMPTS",
	"INGEST_CONCURRENCY", "LLM_TEMPERATURE", "LLM_MAX_TOKENS",
}

// isolate clears every recognised variable and moves into a directory
// without a .env file.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_PATH", filepath.Join(dir, "data", "rag.db"))
	return dir
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rag.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if cfg.EmbeddingDim != 768 {
					t.Errorf("EmbeddingDim = %d, want 768", cfg.EmbeddingDim)
				}
				if cfg.VectorBackend != BackendQdrant || cfg.QdrantCollection != "realestate" {
					t.Errorf("vector backend = %s/%s", cfg.VectorBackend, cfg.QdrantCollection)
				}
				if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
					t.Errorf("logging = %s/%s", cfg.LogLevel, cfg.LogFormat)
				}
				if cfg.WatchDataDir || cfg.GCSEnabled {
					t.Error("WatchDataDir and GCSEnabled should default to false")
				}
				if cfg.APIPort != "9000" {
					t.Errorf("APIPort = %s, want 9000", cfg.APIPort)
				}
				if cfg.Pipeline != DefaultPipeline() {
					t.Errorf("Pipeline = %+v, want defaults", cfg.Pipeline)
				}
			},
		},
		{
			name:     "missing EMBEDDING_DIM",
			setupEnv: func(t *testing.T) {},
			wantErr:  true,
		},
		{
			name: "invalid EMBEDDING_DIM",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "large")
			},
			wantErr: true,
		},
		{
			name: "zero EMBEDDING_DIM",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "0")
			},
			wantErr: true,
		},
		{
			name: "unknown vector backend",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("VECTOR_BACKEND", "pinecone")
			},
			wantErr: true,
		},
		{
			name: "invalid WATCH_DATA_DIR",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("WATCH_DATA_DIR", "sometimes")
			},
			wantErr: true,
		},
		{
			name: "invalid integer tuning key",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("RETRIEVAL_K", "five")
			},
			wantErr: true,
		},
		{
			name: "overlap ratio out of range",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("CHUNK_OVERLAP_RATIO", "1")
			},
			wantErr: true,
		},
		{
			name: "both retrieval weights zero",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("RETRIEVAL_VECTOR_WEIGHT", "0")
				t.Setenv("RETRIEVAL_LEXICAL_WEIGHT", "0")
			},
			wantErr: true,
		},
		{
			name: "custom values",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "1024")
				t.Setenv("VECTOR_BACKEND", "MEMORY")
				t.Setenv("LOG_FORMAT", "json")
				t.Setenv("WATCH_DATA_DIR", "true")
				t.Setenv("GCS_ENABLED", "1")
				t.Setenv("RETRIEVAL_K", "8")
				t.Setenv("RETRIEVAL_LEXICAL_WEIGHT", "0.5")
				t.Setenv("LLM_TEMPERATURE", "0")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if cfg.VectorBackend != BackendMemory {
					t.Errorf("VectorBackend = %s, want memory", cfg.VectorBackend)
				}
				if cfg.LogFormat != "json" || !cfg.WatchDataDir || !cfg.GCSEnabled {
					t.Errorf("LogFormat = %s, WatchDataDir = %v, GCSEnabled = %v", cfg.LogFormat, cfg.WatchDataDir, cfg.GCSEnabled)
				}
				if cfg.Pipeline.RetrievalK != 8 || cfg.Pipeline.RetrievalLexicalWeight != 0.5 {
					t.Errorf("Pipeline = %+v", cfg.Pipeline)
				}
				if cfg.Pipeline.LLMTemperature != 0 {
					t.Errorf("LLMTemperature = %v, want explicit 0", cfg.Pipeline.LLMTemperature)
				}
			},
		},
		{
			name: "yaml overlay with env override",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("RAG_CONFIG_FILE", writeYAML(t, "max_tokens_per_chunk: 300\nretrieval_k: 3\nservice_timeout_seconds: 10\n"))
				t.Setenv("RETRIEVAL_K", "6")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if cfg.Pipeline.MaxTokensPerChunk != 300 {
					t.Errorf("MaxTokensPerChunk = %d, want 300 from file", cfg.Pipeline.MaxTokensPerChunk)
				}
				if cfg.Pipeline.RetrievalK != 6 {
					t.Errorf("RetrievalK = %d, want 6 from env", cfg.Pipeline.RetrievalK)
				}
				if cfg.Pipeline.ServiceTimeout() != 10*time.Second {
					t.Errorf("ServiceTimeout() = %v, want 10s", cfg.Pipeline.ServiceTimeout())
				}
				if cfg.Pipeline.EmbeddingBatchSize != DefaultPipeline().EmbeddingBatchSize {
					t.Errorf("keys absent from the file should keep defaults, got %d", cfg.Pipeline.EmbeddingBatchSize)
				}
			},
		},
		{
			name: "missing yaml file",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("RAG_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
			},
			wantErr: true,
		},
		{
			name: "malformed yaml file",
			setupEnv: func(t *testing.T) {
				t.Setenv("EMBEDDING_DIM", "768")
				t.Setenv("RAG_CONFIG_FILE", writeYAML(t, "retrieval_k: [1, 2\n"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			tt.setupEnv(t)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tt.checkConfig != nil {
				tt.checkConfig(t, cfg)
			}
		})
	}
}

func TestLoad_DotEnvInParent(t *testing.T) {
	root := isolate(t)
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("EMBEDDING_DIM=384\nQDRANT_COLLECTION=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	// godotenv does not override variables that are already set, even to "".
	_ = os.Unsetenv("EMBEDDING_DIM")
	_ = os.Unsetenv("QDRANT_COLLECTION")
	t.Cleanup(func() {
		_ = os.Unsetenv("EMBEDDING_DIM")
		_ = os.Unsetenv("QDRANT_COLLECTION")
	})

	nested := filepath.Join(root, "cmd", "api")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	t.Chdir(nested)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EmbeddingDim != 384 || cfg.QdrantCollection != "from-dotenv" {
		t.Errorf("Load() = dim %d, collection %s; want values from .env", cfg.EmbeddingDim, cfg.QdrantCollection)
	}
}

func TestLoad_CreatesDataDirectory(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "nested", "state", "db.db")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("EMBEDDING_DIM", "768")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Errorf("Load() should create data directory: %v", err)
	}
	if cfg.DBPath != dbPath {
		t.Errorf("Load() DBPath = %v, want %v", cfg.DBPath, dbPath)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue string
		want         string
	}{
		{name: "env var set", value: "set-value", defaultValue: "default", want: "set-value"},
		{name: "empty env var uses default", value: "", defaultValue: "default", want: "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_VAR", tt.value)
			if got := getEnv("TEST_ENV_VAR", tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}
