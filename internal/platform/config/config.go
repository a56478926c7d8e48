package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platstrings "idproof/pkg/platform/strings"
)

// Server captures process level configuration for the proofing service.
type Server struct {
	Addr string

	// Letter flow. The wait time is in whole hours; the effective deadline is
	// always extended to local midnight of the send day (see letter.ExpiresAt).
	LetterWaitTimeHours int
	// DebugLetterMode skips the external letter service and records a fixed
	// transaction id. For development environments only.
	DebugLetterMode bool

	// Verify-code throttle.
	VerifyCodeMaxFailures int
	VerifyCodeWindow      time.Duration

	// OIDC provider (authorization code flow).
	OIDC OIDCConfig

	// Collaborator service base URLs.
	AddressLookupURL string
	LetterServiceURL string
	DirectoryURL     string

	// Support UI access. Bcrypt hash of the shared support token; empty
	// disables the support routes.
	SupportTokenHash string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// OIDCConfig holds provider endpoints and client credentials.
type OIDCConfig struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserinfoEndpoint      string
	ClientID              string
	ClientSecret          string
	// RedirectURL is the externally reachable URL of the authorization
	// response callback endpoint.
	RedirectURL string
}

// DatabaseConfig holds PostgreSQL connection configuration.
// An empty URL selects the in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection configuration.
// An empty URL selects the in-memory throttle.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the sync relay configuration.
// Empty brokers disable the relay (sync requests fail closed as SyncFailed).
type KafkaConfig struct {
	Brokers   []string
	SyncTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                  envOr("IDPROOF_ADDR", ":8080"),
		LetterWaitTimeHours:   envIntOr("LETTER_WAIT_TIME_HOURS", 336), // two weeks
		DebugLetterMode:       os.Getenv("LETTER_DEBUG_MODE") == "true",
		VerifyCodeMaxFailures: envIntOr("VERIFY_CODE_MAX_FAILURES", 5),
		VerifyCodeWindow:      envDurationOr("VERIFY_CODE_WINDOW", 15*time.Minute),
		AddressLookupURL:      envOr("ADDRESS_LOOKUP_URL", "http://localhost:8091"),
		LetterServiceURL:      envOr("LETTER_SERVICE_URL", "http://localhost:8092"),
		DirectoryURL:          envOr("DIRECTORY_URL", "http://localhost:8093"),
		SupportTokenHash:      os.Getenv("SUPPORT_TOKEN_HASH"),
		OIDC: OIDCConfig{
			Issuer:                os.Getenv("OIDC_ISSUER"),
			AuthorizationEndpoint: os.Getenv("OIDC_AUTHORIZATION_ENDPOINT"),
			TokenEndpoint:         os.Getenv("OIDC_TOKEN_ENDPOINT"),
			UserinfoEndpoint:      os.Getenv("OIDC_USERINFO_ENDPOINT"),
			ClientID:              os.Getenv("OIDC_CLIENT_ID"),
			ClientSecret:          os.Getenv("OIDC_CLIENT_SECRET"),
			RedirectURL:           envOr("OIDC_REDIRECT_URL", "http://localhost:8080/oidc/authorization-response"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envIntOr("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envIntOr("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDurationOr("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			SyncTopic: envOr("KAFKA_SYNC_TOPIC", "user-sync-requests"),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = platstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
