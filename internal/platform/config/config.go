package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	AdminIdentity string
	JWTSigningKey string

	// PostgresURL switches stores to PostgreSQL when set.
	PostgresURL string
	// RedisURL enables the IsAuthorized cache when set.
	RedisURL string
	// KafkaBrokers enables the Kafka audit sink when set.
	KafkaBrokers []string
	KafkaTopic   string

	// Index bounds; zero means unbounded.
	MaxCredentialsPerHolder int
	MaxIssuersPerType       int

	AuthCacheTTL time.Duration
}

// RedisConfig tunes the shared redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SOULBOUND_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	admin := os.Getenv("SOULBOUND_ADMIN")
	if admin == "" {
		admin = "registry-admin"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default, override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "soulbound.audit"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return Server{
		Addr:                    addr,
		AdminIdentity:           admin,
		JWTSigningKey:           jwtSigningKey,
		PostgresURL:             os.Getenv("POSTGRES_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		KafkaBrokers:            brokers,
		KafkaTopic:              topic,
		MaxCredentialsPerHolder: envInt("MAX_CREDENTIALS_PER_HOLDER", 0),
		MaxIssuersPerType:       envInt("MAX_ISSUERS_PER_TYPE", 0),
		AuthCacheTTL:            envDuration("AUTH_CACHE_TTL", time.Minute),
	}
}

// Redis derives a redis client config with pool defaults.
func (s Server) Redis() RedisConfig {
	return RedisConfig{
		URL:          s.RedisURL,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
