package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port       int              `json:"port"`
	LogConfig  logger.LogConfig `json:"log_config"`
	Database   DatabaseConfig   `json:"database"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Extraction ExtractionConfig `json:"extraction"`
	Retry      RetryConfig      `json:"retry"`
	Refresh    RefreshConfig    `json:"refresh"`
	FileStore  FileStoreConfig  `json:"file_store"`
	Ingest     IngestConfig     `json:"ingest"`
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

type EmbeddingConfig struct {
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	Dimension      int         `json:"dimension"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	MaxChunkTokens int         `json:"max_chunk_tokens"`
	MaxInputChars  int         `json:"max_input_chars"`
	Data           interface{} `json:"data"`
}

type ExtractionConfig struct {
	ConfidenceFloor  float64 `json:"confidence_floor"`
	ExpectedPageRune int     `json:"expected_page_runes"`
}

type RetryConfig struct {
	DelayMinutes []int `json:"delay_minutes"`
	MaxAttempts  int   `json:"max_attempts"`
}

type RefreshConfig struct {
	CronSpec  string `json:"cron_spec"`
	SweepSpec string `json:"sweep_spec"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type IngestConfig struct {
	MaxUploadBytes   int64  `json:"max_upload_bytes"`
	RateLimitPerMin  int    `json:"rate_limit_per_min"`
	ChunkConcurrency int    `json:"chunk_concurrency"`
	ProcessorVersion string `json:"processor_version"`
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
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Embedding.Provider == "" {
		return nil, fmt.Errorf("embedding.provider is required")
	}
	if cfg.Embedding.Model == "" {
		return nil, fmt.Errorf("embedding.model is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxChunkTokens == 0 {
		cfg.Embedding.MaxChunkTokens = 400
	}
	if cfg.Embedding.MaxInputChars == 0 {
		cfg.Embedding.MaxInputChars = 20000
	}
	if cfg.Extraction.ConfidenceFloor == 0 {
		cfg.Extraction.ConfidenceFloor = 0.35
	}
	if cfg.Extraction.ExpectedPageRune == 0 {
		cfg.Extraction.ExpectedPageRune = 1800
	}
	if len(cfg.Retry.DelayMinutes) == 0 {
		cfg.Retry.DelayMinutes = []int{30, 240, 1440}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Refresh.CronSpec == "" {
		cfg.Refresh.CronSpec = "0 4 * * 0"
	}
	if cfg.Refresh.SweepSpec == "" {
		cfg.Refresh.SweepSpec = "* * * * *"
	}
	if cfg.FileStore.Type == "" {
		return nil, fmt.Errorf("file_store.type is required")
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = 64 << 20
	}
	if cfg.Ingest.ChunkConcurrency == 0 {
		cfg.Ingest.ChunkConcurrency = 4
	}
	if cfg.Ingest.ProcessorVersion == "" {
		cfg.Ingest.ProcessorVersion = "regcore/1"
	}
	return &cfg, nil
}
