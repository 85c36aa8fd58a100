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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Usage         UsageConfig
	AI            AIConfig
	Retry         RetryConfig
	Email         EmailConfig
	Notifications NotificationConfig
	Grading       GradingConfig
	Storage       StorageConfig
	Metrics       MetricsConfig
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

// JWTConfig describes how access tokens issued by the identity provider are verified.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UsageConfig governs metering, tier limits and threshold alerts.
type UsageConfig struct {
	TierFile        string
	FailOpen        bool
	AlertCooldown   time.Duration
	ProfileCacheTTL time.Duration
}

// AIConfig configures the LLM collaborator.
type AIConfig struct {
	APIKey        string
	StandardModel string
	AdvancedModel string
	GradingModel  string
	MaxTokens     int64
	Timeout       time.Duration
}

// RetryConfig is shared by every outbound call wrapped in a retry policy.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// EmailConfig selects the mail provider.
type EmailConfig struct {
	Provider  string
	APIKey    string
	FromName  string
	FromEmail string
}

// NotificationConfig configures threshold alert delivery.
type NotificationConfig struct {
	WebhookURL string
	Workers    int
	QueueSize  int
}

// GradingConfig configures the asynchronous grading workers.
type GradingConfig struct {
	Workers   int
	QueueSize int
}

// StorageConfig controls uploads, exports and signed download links.
type StorageConfig struct {
	UploadDir       string
	ExportDir       string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	ExportTTL       time.Duration
	CleanupInterval time.Duration
}

type MetricsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Usage = UsageConfig{
		TierFile:        v.GetString("USAGE_TIER_FILE"),
		FailOpen:        v.GetBool("USAGE_FAIL_OPEN"),
		AlertCooldown:   parseDuration(v.GetString("USAGE_ALERT_COOLDOWN"), 7*24*time.Hour),
		ProfileCacheTTL: parseDuration(v.GetString("PROFILE_CACHE_TTL"), time.Minute),
	}

	maxTokens := v.GetInt64("AI_MAX_TOKENS")
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	cfg.AI = AIConfig{
		APIKey:        v.GetString("ANTHROPIC_API_KEY"),
		StandardModel: v.GetString("AI_STANDARD_MODEL"),
		AdvancedModel: v.GetString("AI_ADVANCED_MODEL"),
		GradingModel:  v.GetString("AI_GRADING_MODEL"),
		MaxTokens:     maxTokens,
		Timeout:       parseDuration(v.GetString("AI_TIMEOUT"), 90*time.Second),
	}

	cfg.Retry = RetryConfig{
		MaxAttempts:     v.GetInt("RETRY_MAX_ATTEMPTS"),
		InitialInterval: parseDuration(v.GetString("RETRY_INITIAL_INTERVAL"), 500*time.Millisecond),
		MaxInterval:     parseDuration(v.GetString("RETRY_MAX_INTERVAL"), 5*time.Second),
	}

	cfg.Email = EmailConfig{
		Provider:  strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		APIKey:    v.GetString("SENDGRID_API_KEY"),
		FromName:  v.GetString("EMAIL_FROM_NAME"),
		FromEmail: v.GetString("EMAIL_FROM_ADDRESS"),
	}

	cfg.Notifications = NotificationConfig{
		WebhookURL: v.GetString("NOTIFY_WEBHOOK_URL"),
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		QueueSize:  v.GetInt("NOTIFY_QUEUE_SIZE"),
	}

	cfg.Grading = GradingConfig{
		Workers:   v.GetInt("GRADING_WORKERS"),
		QueueSize: v.GetInt("GRADING_QUEUE_SIZE"),
	}

	cfg.Storage = StorageConfig{
		UploadDir:       v.GetString("STORAGE_UPLOAD_DIR"),
		ExportDir:       v.GetString("STORAGE_EXPORT_DIR"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 30*time.Minute),
		ExportTTL:       parseDuration(v.GetString("STORAGE_EXPORT_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("STORAGE_CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

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
	v.SetDefault("DB_NAME", "eduplan")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "authenticated")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("USAGE_TIER_FILE", "")
	v.SetDefault("USAGE_FAIL_OPEN", true)
	v.SetDefault("USAGE_ALERT_COOLDOWN", "168h")
	v.SetDefault("PROFILE_CACHE_TTL", "1m")

	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("AI_STANDARD_MODEL", "claude-3-5-haiku-latest")
	v.SetDefault("AI_ADVANCED_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("AI_GRADING_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("AI_MAX_TOKENS", 4096)
	v.SetDefault("AI_TIMEOUT", "90s")

	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_INITIAL_INTERVAL", "500ms")
	v.SetDefault("RETRY_MAX_INTERVAL", "5s")

	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_NAME", "EduPlan")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@eduplan.local")

	v.SetDefault("NOTIFY_WEBHOOK_URL", "")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 64)

	v.SetDefault("GRADING_WORKERS", 2)
	v.SetDefault("GRADING_QUEUE_SIZE", 32)

	v.SetDefault("STORAGE_UPLOAD_DIR", "./uploads")
	v.SetDefault("STORAGE_EXPORT_DIR", "./exports")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "30m")
	v.SetDefault("STORAGE_EXPORT_TTL", "24h")
	v.SetDefault("STORAGE_CLEANUP_INTERVAL", "1h")

	v.SetDefault("ENABLE_METRICS", true)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
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
