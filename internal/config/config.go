package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int

	// MetricsAddr is where the worker serves /metrics. "off" disables it.
	MetricsAddr string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how identity-service bearer tokens are verified.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NotificationConfig configures warning, breach and status-change delivery.
type NotificationConfig struct {
	EmailFrom     string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMSGatewayURL string
	SMSToken      string
	SiteURL       string
	QueueKey      string
	MaxRetries    int
	BlockTimeout  time.Duration
	AsyncWorkers  int
	SendTimeout   time.Duration

	// RetryBackoff is the delay before the first redelivery. It doubles per
	// attempt up to RetryMaxBackoff.
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
}

// SLAConfig tunes the timer engine and the periodic sweep.
type SLAConfig struct {
	SweepInterval      time.Duration
	SweepWorkers       int
	SweepTimerTimeout  time.Duration
	SweepRetries       int
	SweepBackoff       time.Duration
	SweepLockKey       string
	SweepLockTTL       time.Duration
	WarningRatio       float64
	ReportTimezone     string
	MarkTicketBreached bool
	RunSweepInAPI      bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	warningRatio, err := strconv.ParseFloat(getEnv("SLA_WARNING_RATIO", "0.75"), 64)
	if err != nil || warningRatio <= 0 || warningRatio >= 1 {
		return nil, errors.New("invalid SLA_WARNING_RATIO: must be between 0 and 1")
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "servicedesk-sla"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			MetricsAddr:           getEnv("METRICS_ADDR", ":9091"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
		},
		Notification: NotificationConfig{
			EmailFrom:       getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:        os.Getenv("SMTP_HOST"),
			SMTPPort:        getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:    os.Getenv("SMTP_USERNAME"),
			SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
			SMSGatewayURL:   os.Getenv("SMS_GATEWAY_URL"),
			SMSToken:        os.Getenv("SMS_GATEWAY_TOKEN"),
			SiteURL:         getEnv("SITE_URL", "http://localhost:3000"),
			QueueKey:        getEnv("NOTIFY_QUEUE_KEY", "sla:notifications"),
			MaxRetries:      getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
			BlockTimeout:    getEnvAsDuration("NOTIFY_BLOCK_TIMEOUT", 5*time.Second),
			AsyncWorkers:    getEnvAsInt("NOTIFY_ASYNC_WORKERS", 4),
			SendTimeout:     getEnvAsDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
			RetryBackoff:    getEnvAsDuration("NOTIFY_RETRY_BACKOFF", 5*time.Second),
			RetryMaxBackoff: getEnvAsDuration("NOTIFY_RETRY_MAX_BACKOFF", time.Minute),
		},
		SLA: SLAConfig{
			SweepInterval:      getEnvAsDuration("SLA_SWEEP_INTERVAL", 5*time.Minute),
			SweepWorkers:       getEnvAsInt("SLA_SWEEP_WORKERS", 4),
			SweepTimerTimeout:  getEnvAsDuration("SLA_SWEEP_TIMER_TIMEOUT", 10*time.Second),
			SweepRetries:       getEnvAsInt("SLA_SWEEP_RETRIES", 3),
			SweepBackoff:       getEnvAsDuration("SLA_SWEEP_BACKOFF", 200*time.Millisecond),
			SweepLockKey:       getEnv("SLA_SWEEP_LOCK_KEY", "sla:sweep:leader"),
			SweepLockTTL:       getEnvAsDuration("SLA_SWEEP_LOCK_TTL", 4*time.Minute),
			WarningRatio:       warningRatio,
			ReportTimezone:     getEnv("SLA_REPORT_TIMEZONE", "Asia/Kolkata"),
			MarkTicketBreached: getEnvAsBool("SLA_MARK_TICKET_BREACHED", true),
			RunSweepInAPI:      getEnvAsBool("SLA_RUN_SWEEP_IN_API", false),
		},
	}

	if cfg.SLA.SweepInterval <= 0 {
		return nil, errors.New("invalid SLA_SWEEP_INTERVAL: must be positive")
	}
	if cfg.App.MetricsAddr == "off" {
		cfg.App.MetricsAddr = ""
	}
	if cfg.Notification.RetryMaxBackoff < cfg.Notification.RetryBackoff {
		cfg.Notification.RetryMaxBackoff = cfg.Notification.RetryBackoff
	}
	if cfg.SLA.SweepWorkers <= 0 {
		cfg.SLA.SweepWorkers = 1
	}
	if _, err := time.LoadLocation(cfg.SLA.ReportTimezone); err != nil {
		return nil, fmt.Errorf("invalid SLA_REPORT_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SMTPAddr returns host:port, or "" when SMTP is not configured.
func (n NotificationConfig) SMTPAddr() string {
	if n.SMTPHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", n.SMTPHost, n.SMTPPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
