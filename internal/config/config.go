package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Verification store backends.
const (
	VerificationBackendMemory = "memory"
	VerificationBackendRedis  = "redis"
)

// Delivery channels for one-time codes.
const (
	DeliveryChannelLog  = "log"
	DeliveryChannelSMTP = "smtp"
	DeliveryChannelSNS  = "sns"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	VerificationBackend     string
	VerificationCodeTTL     time.Duration
	VerificationMaxAttempts int
	FixedVerificationCode   string // dev only; empty means random codes
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	RedisKeyPrefix          string

	SessionTTL   time.Duration
	TouchTimeout time.Duration
	TouchRetries int

	DeliveryChannel string
	SMTPHost        string
	SMTPPort        int
	SMTPFrom        string
	SMTPUsername    string
	SMTPPassword    string
	SNSRegion       string
	SNSTopicARN     string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users    string
	Sessions string
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:    getEnv("DYNAMO_TABLE_USERS", "users"),
			Sessions: getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
		},
		VerificationBackend:     strings.ToLower(getEnv("VERIFICATION_BACKEND", VerificationBackendMemory)),
		VerificationCodeTTL:     getEnvDuration("VERIFICATION_CODE_TTL", 5*time.Minute),
		VerificationMaxAttempts: getEnvInt("VERIFICATION_MAX_ATTEMPTS", 5),
		FixedVerificationCode:   getEnv("FIXED_VERIFICATION_CODE", ""),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:          getEnv("REDIS_KEY_PREFIX", "pwl:verify"),
		SessionTTL:              time.Duration(getEnvInt("SESSION_TTL_DAYS", 7)) * 24 * time.Hour,
		TouchTimeout:            getEnvDuration("SESSION_TOUCH_TIMEOUT", 5*time.Second),
		TouchRetries:            getEnvInt("SESSION_TOUCH_RETRIES", 2),
		DeliveryChannel:         strings.ToLower(getEnv("DELIVERY_CHANNEL", DeliveryChannelLog)),
		SMTPHost:                getEnv("SMTP_HOST", "localhost"),
		SMTPPort:                getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:                getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		SNSRegion:               getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:             getEnv("SNS_TOPIC_ARN", ""),
		AllowedOrigins:          strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
