package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewWorkflowConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string
	NodeID      int64

	LogLevel string

	OTLPEndpoint      string
	OTLPProtocol      string
	OTLPSamplingRatio float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis      RedisConfig
	SMTP       SMTPConfig
	Storage    StorageConfig
	Extraction ExtractionConfig
	Tasks      TaskConfig
	Bootstrap  BootstrapConfig
	UploadRate RateLimitConfig

	OrgSettingsTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type StorageConfig struct {
	Dir       string
	PublicURL string
}

type ExtractionConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type TaskConfig struct {
	Workers     int
	MaxAttempts int
	QueueSize   int
	Backoff     time.Duration
}

// RateLimitConfig is a token bucket refilled at PerMinute tokens per minute.
// A non-positive rate disables the limit.
type RateLimitConfig struct {
	PerMinute float64
	Burst     int
}

// BootstrapConfig controls the default organization seeded on startup.
type BootstrapConfig struct {
	Enabled      bool
	OrgName      string
	FinanceEmail string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "procura"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPPort:     getenv("PORT", "8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		LogLevel:     strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),

		OTLPEndpoint:      strings.TrimSpace(getenv("OTLP_ENDPOINT", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))),
		OTLPProtocol:      strings.ToLower(strings.TrimSpace(getenv("OTLP_PROTOCOL", "grpc"))),
		OTLPSamplingRatio: getenvFloat("OTLP_SAMPLING_RATIO", 0.1),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "procura"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "procura.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@procura.local"),
		},
		Storage: StorageConfig{
			Dir:       getenv("STORAGE_DIR", "./data/uploads"),
			PublicURL: strings.TrimRight(getenv("STORAGE_PUBLIC_URL", "http://localhost:8080/files"), "/"),
		},
		Extraction: ExtractionConfig{
			URL:     strings.TrimSpace(getenv("EXTRACTION_URL", "")),
			APIKey:  strings.TrimSpace(getenv("EXTRACTION_API_KEY", "")),
			Model:   getenv("EXTRACTION_MODEL", "gpt-4o-mini"),
			Timeout: getenvDuration("EXTRACTION_TIMEOUT", 60*time.Second),
		},
		Tasks: TaskConfig{
			Workers:     getenvInt("TASK_WORKERS", 4),
			MaxAttempts: getenvInt("TASK_MAX_ATTEMPTS", 3),
			QueueSize:   getenvInt("TASK_QUEUE_SIZE", 256),
			Backoff:     getenvDuration("TASK_BACKOFF", 2*time.Second),
		},
		Bootstrap: BootstrapConfig{
			Enabled:      getenvBool("BOOTSTRAP_ENABLED", false),
			OrgName:      getenv("BOOTSTRAP_ORG_NAME", "Main"),
			FinanceEmail: strings.ToLower(strings.TrimSpace(getenv("BOOTSTRAP_FINANCE_EMAIL", "finance@procura.local"))),
		},
		UploadRate: RateLimitConfig{
			PerMinute: float64(getenvInt("UPLOAD_RATE_PER_MINUTE", 10)),
			Burst:     getenvInt("UPLOAD_RATE_BURST", 5),
		},
		OrgSettingsTTL: getenvDuration("ORG_SETTINGS_TTL", time.Hour),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
