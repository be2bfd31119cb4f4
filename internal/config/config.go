package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port                int               `json:"port"`
	JWTSecret           string            `json:"jwt_secret"`
	CORSOrigins         []string          `json:"cors_origins"`
	AskRateLimitSeconds int               `json:"ask_rate_limit_seconds"`
	LogConfig           logger.LogConfig  `json:"log_config"`
	Database            DatabaseConfig    `json:"database"`
	VectorIndex         VectorIndexConfig `json:"vector_index"`
	AI                  AIConfig          `json:"ai"`
	Chunking            ChunkingConfig    `json:"chunking"`
	FileStore           FileStoreConfig   `json:"file_store"`
	Jobs                JobsConfig        `json:"jobs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type VectorIndexConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	Collection     string `json:"collection"`
	Dimension      int    `json:"dimension"`
	BatchSize      int    `json:"batch_size"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	EmbedProvider string      `json:"embed_provider"`
	EmbedModel    string      `json:"embed_model"`
	Data          interface{} `json:"data"`
	EmbedData     interface{} `json:"embed_data"`
	Timeout       int         `json:"timeout"`
	MaxInputChars int         `json:"max_input_chars"`
	CacheSize     int         `json:"cache_size"`
	CacheTTLHours int         `json:"cache_ttl_hours"`
}

type ChunkingConfig struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"overlap"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type JobsConfig struct {
	VectorizeCron         string `json:"vectorize_cron"`
	VectorizeDelaySeconds int64  `json:"vectorize_delay_seconds"`
	VectorizeBatch        int    `json:"vectorize_batch"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.VectorIndex.URL == "" {
		return fmt.Errorf("vector_index.url is required")
	}
	if cfg.VectorIndex.Collection == "" {
		return fmt.Errorf("vector_index.collection is required")
	}
	if cfg.VectorIndex.Dimension <= 0 {
		return fmt.Errorf("vector_index.dimension is required")
	}
	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	if cfg.AI.EmbedProvider == "" {
		cfg.AI.EmbedProvider = cfg.AI.Provider
	}
	if cfg.AI.EmbedModel == "" {
		return fmt.Errorf("ai.embed_model is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}
	// Reject the misconfiguration here rather than patching the stride
	// inside the chunking loop.
	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, chunk_size): overlap=%d chunk_size=%d",
			cfg.Chunking.Overlap, cfg.Chunking.ChunkSize)
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Jobs.VectorizeCron == "" {
		cfg.Jobs.VectorizeCron = "* * * * *"
	}
	if cfg.Jobs.VectorizeDelaySeconds == 0 {
		cfg.Jobs.VectorizeDelaySeconds = 30
	}
	if cfg.Jobs.VectorizeBatch == 0 {
		cfg.Jobs.VectorizeBatch = 20
	}
	return nil
}
