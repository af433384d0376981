package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	StableMatch StableMatchConfig
	Assignment  AssignmentConfig
	Ingestion   IngestionConfig
	ResultStore ResultStoreConfig
	Export      ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StableMatchConfig governs calls to the matching engine.
type StableMatchConfig struct {
	// URL of the engine service. Empty runs the engine in-process.
	URL            string
	ServerPort     int
	AttemptTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
	TotalBudget    time.Duration
}

// AssignmentConfig tunes the batch workflow.
type AssignmentConfig struct {
	DefaultBatchSize  int
	BatchConcurrency  int
	CapacityPerCourse int
}

// IngestionConfig sizes the grade ingestion worker pool.
type IngestionConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ResultStoreConfig controls how long match runs stay queryable.
type ResultStoreConfig struct {
	TTL          time.Duration
	CacheEnabled bool
}

// ExportConfig controls archived run exports served through signed links.
type ExportConfig struct {
	Dir        string
	LinkSecret string
	LinkTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.StableMatch = StableMatchConfig{
		URL:            strings.TrimRight(v.GetString("STABLE_MATCH_URL"), "/"),
		ServerPort:     v.GetInt("STABLE_MATCH_PORT"),
		AttemptTimeout: parseDuration(v.GetString("STABLE_MATCH_TIMEOUT"), 5*time.Second),
		MaxAttempts:    positiveOr(v.GetInt("STABLE_MATCH_MAX_ATTEMPTS"), 3),
		RetryDelay:     parseDuration(v.GetString("STABLE_MATCH_RETRY_DELAY"), 500*time.Millisecond),
		MaxRetryDelay:  parseDuration(v.GetString("STABLE_MATCH_MAX_RETRY_DELAY"), 2*time.Second),
		TotalBudget:    parseDuration(v.GetString("STABLE_MATCH_TOTAL_BUDGET"), 15*time.Second),
	}

	cfg.Assignment = AssignmentConfig{
		DefaultBatchSize:  positiveOr(v.GetInt("ASSIGNMENT_BATCH_SIZE"), 5),
		BatchConcurrency:  positiveOr(v.GetInt("ASSIGNMENT_BATCH_CONCURRENCY"), 1),
		CapacityPerCourse: positiveOr(v.GetInt("ASSIGNMENT_CAPACITY_PER_COURSE"), 1),
	}

	cfg.Ingestion = IngestionConfig{
		Workers:    positiveOr(v.GetInt("GRADE_INGESTION_WORKERS"), 2),
		BufferSize: v.GetInt("GRADE_INGESTION_BUFFER"),
		MaxRetries: positiveOr(v.GetInt("GRADE_INGESTION_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("GRADE_INGESTION_RETRY_DELAY"), time.Second),
	}

	cfg.ResultStore = ResultStoreConfig{
		TTL:          parseDuration(v.GetString("MATCH_RESULT_TTL"), 24*time.Hour),
		CacheEnabled: v.GetBool("MATCH_RESULT_CACHE_ENABLED"),
	}

	cfg.Export = ExportConfig{
		Dir:        v.GetString("EXPORT_DIR"),
		LinkSecret: v.GetString("EXPORT_LINK_SECRET"),
		LinkTTL:    parseDuration(v.GetString("EXPORT_LINK_TTL"), 24*time.Hour),
	}
	if cfg.Export.LinkSecret == "" {
		cfg.Export.LinkSecret = cfg.JWT.Secret
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pref_schedule")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STABLE_MATCH_URL", "")
	v.SetDefault("STABLE_MATCH_PORT", 8081)
	v.SetDefault("STABLE_MATCH_TIMEOUT", "5s")
	v.SetDefault("STABLE_MATCH_MAX_ATTEMPTS", 3)
	v.SetDefault("STABLE_MATCH_RETRY_DELAY", "500ms")
	v.SetDefault("STABLE_MATCH_MAX_RETRY_DELAY", "2s")
	v.SetDefault("STABLE_MATCH_TOTAL_BUDGET", "15s")

	v.SetDefault("ASSIGNMENT_BATCH_SIZE", 5)
	v.SetDefault("ASSIGNMENT_BATCH_CONCURRENCY", 1)
	v.SetDefault("ASSIGNMENT_CAPACITY_PER_COURSE", 1)

	v.SetDefault("GRADE_INGESTION_WORKERS", 2)
	v.SetDefault("GRADE_INGESTION_BUFFER", 64)
	v.SetDefault("GRADE_INGESTION_RETRIES", 3)
	v.SetDefault("GRADE_INGESTION_RETRY_DELAY", "1s")

	v.SetDefault("MATCH_RESULT_TTL", "24h")
	v.SetDefault("MATCH_RESULT_CACHE_ENABLED", false)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_LINK_SECRET", "")
	v.SetDefault("EXPORT_LINK_TTL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
