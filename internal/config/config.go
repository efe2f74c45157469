package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort          string
	AppEnv           string
	AWSRegion        string
	AWSEndpointURL   string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID   string
	AWSSecretKey     string
	DynamoTables     DynamoTables
	S3BucketName     string
	ExportURLTTL     time.Duration
	SNSRegion        string
	SNSTopicARN      string // empty disables push delivery
	RedisURL         string // empty disables the live change stream
	NotifyDedupeTTL  time.Duration
	JWTPublicKeyPath string
	ScanRatePerSec   float64
	ScanBurst        int
	AllowedOrigins   []string // CORS allowed origins
	TrustProxy       bool     // honour X-Forwarded-For / X-Real-Ip from a fronting proxy
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Guests           string
	Users            string
	Events           string
	Universities     string
	Notifications    string
	AccessibleEvents string
	Watermarks       string
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
			Guests:           getEnv("DYNAMO_TABLE_GUESTS", "guests"),
			Users:            getEnv("DYNAMO_TABLE_USERS", "users"),
			Events:           getEnv("DYNAMO_TABLE_EVENTS", "events"),
			Universities:     getEnv("DYNAMO_TABLE_UNIVERSITIES", "universities"),
			Notifications:    getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			AccessibleEvents: getEnv("DYNAMO_TABLE_ACCESSIBLE_EVENTS", "accessible_events"),
			Watermarks:       getEnv("DYNAMO_TABLE_WATERMARKS", "notification_watermarks"),
		},
		S3BucketName:     getEnv("S3_BUCKET_NAME", "guestlist-exports"),
		ExportURLTTL:     getEnvDuration("EXPORT_URL_TTL", 15*time.Minute),
		SNSRegion:        getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:      getEnv("SNS_TOPIC_ARN", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		NotifyDedupeTTL:  getEnvDuration("NOTIFY_DEDUPE_TTL", 24*time.Hour),
		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		ScanRatePerSec:   getEnvFloat("SCAN_RATE_PER_SEC", 5),
		ScanBurst:        getEnvInt("SCAN_BURST", 10),
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustProxy:       getEnvBool("TRUST_PROXY", false),
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

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
