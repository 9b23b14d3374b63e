package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"syllabus-rag/internal/models"
)

type Config struct {
	Log          LogConfig      `yaml:"log"`
	RAG          RAGConfig      `yaml:"rag"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	Index        IndexConfig    `yaml:"index"`
	Database     DatabaseConfig `yaml:"database"`
	Server       ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
	BatchSize    int `yaml:"batch_size"`
}

// LLMConfig is shared by the embedding model and the chat model.
// Dimension only applies to embedders, MaxTokens and Temperature only to chat.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Dimension   int     `yaml:"dimension"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type IndexConfig struct {
	Name    string        `yaml:"name"`
	Backend string        `yaml:"backend"`
	Chromem ChromemConfig `yaml:"chromem"`
}

type ChromemConfig struct {
	// Path of the persistent DB directory. Empty keeps the index in memory.
	Path          string `yaml:"path"`
	Compress      bool   `yaml:"compress"`
	Snapshot      string `yaml:"snapshot"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

const defaultTemperature = 0.3

const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// LoadConfig reads the YAML file at path, applies environment overrides and
// defaults, then validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := seedConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// seedConfig holds the defaults for settings where zero is a valid choice.
// YAML decoding leaves them untouched unless the key is present.
func seedConfig() Config {
	return Config{
		RAG:          RAGConfig{ChunkOverlap: models.DefaultChunkOverlap},
		InferenceLLM: LLMConfig{Temperature: defaultTemperature},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" && cfg.InferenceLLM.Key == "" {
		cfg.InferenceLLM.Key = v
	}
	if v := os.Getenv("EMBED_API_KEY"); v != "" && cfg.EmbedLLM.Key == "" {
		cfg.EmbedLLM.Key = v
	}
	if v := os.Getenv("SYLLABUS_INDEX_NAME"); v != "" {
		cfg.Index.Name = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}
	if cfg.RAG.BatchSize == 0 {
		cfg.RAG.BatchSize = models.DefaultBatchSize
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOllama
	}
	if cfg.EmbedLLM.Provider == ProviderOllama && cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "all-minilm"
	}
	if cfg.EmbedLLM.Dimension == 0 {
		cfg.EmbedLLM.Dimension = models.DefaultDimension
	}

	if cfg.InferenceLLM.Provider == "" {
		cfg.InferenceLLM.Provider = ProviderOpenAI
	}
	if cfg.InferenceLLM.Provider == ProviderOpenAI && cfg.InferenceLLM.BaseURL == "" {
		cfg.InferenceLLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.InferenceLLM.Model == "" {
		cfg.InferenceLLM.Model = "llama3-8b-8192"
	}
	if cfg.InferenceLLM.MaxTokens == 0 {
		cfg.InferenceLLM.MaxTokens = 512
	}

	if cfg.Index.Name == "" {
		cfg.Index.Name = "syllabus-rag"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = BackendChromem
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 20
	}
}

// Validate rejects settings the pipeline cannot make progress with.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 || c.RAG.ChunkSize-c.RAG.ChunkOverlap <= 0 {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			models.ErrInvalidConfig, c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK < 0 || c.RAG.BatchSize < 0 {
		return fmt.Errorf("%w: top_k and batch_size must be positive", models.ErrInvalidConfig)
	}
	if c.EmbedLLM.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", models.ErrInvalidConfig)
	}

	switch c.EmbedLLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderHash:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfig, c.EmbedLLM.Provider)
	}
	switch c.InferenceLLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: unknown inference provider %q", models.ErrInvalidConfig, c.InferenceLLM.Provider)
	}

	switch c.Index.Backend {
	case BackendChromem:
		if key := c.Index.Chromem.EncryptionKey; key != "" && len(key) != 32 {
			return fmt.Errorf("%w: chromem encryption_key must be 32 bytes", models.ErrInvalidConfig)
		}
	case BackendPgvector:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("%w: database.dsn is required for the pgvector backend", models.ErrInvalidConfig)
		}
		if c.Database.Driver != "pgdriver" && c.Database.Driver != "pq" {
			return fmt.Errorf("%w: unknown database driver %q", models.ErrInvalidConfig, c.Database.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown index backend %q", models.ErrInvalidConfig, c.Index.Backend)
	}
	return nil
}
