package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPPort        = "8080"
	defaultMetricsPort     = "9090"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "approval-tracker-task-queue"
	defaultMinioEndpoint   = "localhost:9000"
	defaultMinioBucket     = "approval-documents"
	defaultInboxPrefix     = "inbox/"
	defaultNotifyChannel   = "approval-notifications"
	defaultSyncBatchSize   = 400
	defaultDriftScanCron   = "@every 1h"
)

type Config struct {
	HTTPPort           string
	MetricsPort        string
	PostgresDSN        string
	TemporalAddress    string
	TemporalNamespace  string
	TemporalTaskQueue  string
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	MinioInboxPrefix   string
	RedisAddr          string
	NotifyChannel      string
	HierarchyFile      string
	SyncBatchSize      int
	DriftScanCron      string
	WorkflowIDPrefix   string
	AllowedUploadBytes int64
	LogLevel           string
	LogFormat          string
}

// Load reads the environment. A .env file in the working directory is applied
// first when present; variables already set win over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:           getenv("HTTP_PORT", defaultHTTPPort),
		MetricsPort:        getenvAllowEmpty("METRICS_PORT", defaultMetricsPort),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		TemporalAddress:    getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace:  getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue:  getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		MinioEndpoint:      getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getenv("MINIO_BUCKET", defaultMinioBucket),
		MinioUseSSL:        getenvBool("MINIO_USE_SSL", false),
		MinioInboxPrefix:   getenv("MINIO_INBOX_PREFIX", defaultInboxPrefix),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		NotifyChannel:      getenv("NOTIFY_CHANNEL", defaultNotifyChannel),
		HierarchyFile:      os.Getenv("HIERARCHY_FILE"),
		SyncBatchSize:      getenvInt("SYNC_BATCH_SIZE", defaultSyncBatchSize),
		DriftScanCron:      getenvAllowEmpty("DRIFT_SCAN_CRON", defaultDriftScanCron),
		WorkflowIDPrefix:   getenv("WORKFLOW_ID_PREFIX", "approval"),
		AllowedUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.SyncBatchSize <= 0 {
		return Config{}, fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", cfg.SyncBatchSize)
	}

	return cfg, nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getenvAllowEmpty treats a variable set to "" as an explicit value.
func getenvAllowEmpty(key string, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
