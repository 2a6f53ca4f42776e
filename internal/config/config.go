package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/sla"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Mailbox  MailboxConfig
	SMTP     SMTPConfig
	SLA      SLAConfig
	Storage  StorageConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
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

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// MailboxConfig configures the inbound mail poller and the routing
// defaults applied to tickets it creates.
type MailboxConfig struct {
	Enabled             bool
	Host                string
	Port                int
	Username            string
	Password            string
	Folder              string
	PollingIntervalMin  int
	CycleTimeoutSeconds int

	DefaultQueue    domain.TicketQueue
	DefaultImpact   domain.Severity
	DefaultUrgency  domain.Severity
	DefaultCategory string
	DefaultSystem   string
	VendorOwnerID   string
}

// SMTPConfig configures the outbound mail transport.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// SLAConfig holds per-priority hour windows and the warning lead time.
type SLAConfig struct {
	P0Hours        int
	P1Hours        int
	P2Hours        int
	P3Hours        int
	WarningMinutes int
}

// StorageConfig holds attachment object-store settings.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "servicedesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Mailbox: MailboxConfig{
			Enabled:             getEnvAsBool("MAIL_POLL_ENABLED", false),
			Host:                os.Getenv("IMAP_HOST"),
			Port:                getEnvAsInt("IMAP_PORT", 993),
			Username:            os.Getenv("IMAP_USERNAME"),
			Password:            os.Getenv("IMAP_PASSWORD"),
			Folder:              getEnv("IMAP_FOLDER", "INBOX"),
			PollingIntervalMin:  getEnvAsInt("MAIL_POLL_INTERVAL_MINUTES", 5),
			CycleTimeoutSeconds: getEnvAsInt("MAIL_POLL_CYCLE_TIMEOUT_SECONDS", 300),
			DefaultQueue:        domain.TicketQueue(getEnv("MAIL_DEFAULT_QUEUE", string(domain.QueueInternalIT))),
			DefaultImpact:       domain.Severity(strings.ToUpper(getEnv("MAIL_DEFAULT_IMPACT", string(domain.SeverityMedium)))),
			DefaultUrgency:      domain.Severity(strings.ToUpper(getEnv("MAIL_DEFAULT_URGENCY", string(domain.SeverityMedium)))),
			DefaultCategory:     getEnv("MAIL_DEFAULT_CATEGORY", "Email"),
			DefaultSystem:       getEnv("MAIL_DEFAULT_SYSTEM", "Email"),
			VendorOwnerID:       os.Getenv("MAIL_VENDOR_OWNER_ID"),
		},
		SMTP: SMTPConfig{
			Host: os.Getenv("SMTP_HOST"),
			Port: getEnv("SMTP_PORT", "25"),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: getEnv("SMTP_FROM", "servicedesk@example.com"),
		},
		SLA: SLAConfig{
			P0Hours:        getEnvAsInt("SLA_P0_HOURS", sla.DefaultP0Hours),
			P1Hours:        getEnvAsInt("SLA_P1_HOURS", sla.DefaultP1Hours),
			P2Hours:        getEnvAsInt("SLA_P2_HOURS", sla.DefaultP2Hours),
			P3Hours:        getEnvAsInt("SLA_P3_HOURS", sla.DefaultP3Hours),
			WarningMinutes: getEnvAsInt("SLA_WARNING_MINUTES", sla.DefaultWarningMinutes),
		},
		Storage: StorageConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "servicedesk-attachments"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
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

// PollInterval returns the polling interval duration.
func (m MailboxConfig) PollInterval() time.Duration {
	if m.PollingIntervalMin <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(m.PollingIntervalMin) * time.Minute
}

// CycleTimeout returns the per-cycle timeout duration.
func (m MailboxConfig) CycleTimeout() time.Duration {
	if m.CycleTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(m.CycleTimeoutSeconds) * time.Second
}

// Policy converts SLA settings to the calculator's policy value. Read on
// every computation so edits take effect immediately.
func (s SLAConfig) Policy() sla.Policy {
	return sla.Policy{
		P0Hours:        s.P0Hours,
		P1Hours:        s.P1Hours,
		P2Hours:        s.P2Hours,
		P3Hours:        s.P3Hours,
		WarningMinutes: s.WarningMinutes,
	}.Normalize()
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
