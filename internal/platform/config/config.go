package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	id "trustplane/pkg/domain"
)

// Config is the full runtime configuration. FromEnv builds it from TP_*
// environment variables so main stays lean.
type Config struct {
	Addr     string
	LogLevel string

	Orchestrator OrchestratorConfig
	Cache        CacheConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Transport    TransportConfig
	Postgres     PostgresConfig
}

// OrchestratorConfig tunes assessment processing.
type OrchestratorConfig struct {
	EnabledRegions           []id.Region
	DefaultTimeoutSeconds    int
	EnableParallelProcessing bool
	MaxConcurrentRequests    int
	TrustScoreThreshold      float64
}

// CacheConfig controls result caching.
type CacheConfig struct {
	EnableResultCaching    bool
	CacheExpirationMinutes int
}

// TTL returns the cache expiration as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.CacheExpirationMinutes) * time.Minute
}

// RedisConfig holds connection settings for the response cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds broker channel and event publishing settings.
type KafkaConfig struct {
	Brokers       []string
	OutboundTopic string
	InboundTopic  string
	EventTopic    string
	ConsumerGroup string
}

// Enabled reports whether a broker channel should be brought up.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// TransportConfig holds agent communication settings.
type TransportConfig struct {
	EnableDirectChannel           bool
	AgentAuthSigningKey           string
	AgentHeartbeatIntervalSeconds int
	DefaultMessageTTLSeconds      int
	SendTimeoutSeconds            int
}

// PostgresConfig holds the optional decision-history database settings.
type PostgresConfig struct {
	URL string
}

// Enabled reports whether decision history persistence is configured.
func (c PostgresConfig) Enabled() bool { return c.URL != "" }

// FromEnv builds a Config from environment variables with development
// defaults; production deployments must override the signing key.
func FromEnv() Config {
	return Config{
		Addr:     envStr("TP_ADDR", ":8080"),
		LogLevel: envStr("TP_LOG_LEVEL", "info"),
		Orchestrator: OrchestratorConfig{
			EnabledRegions:           envRegions("TP_ENABLED_REGIONS", []id.Region{"BR"}),
			DefaultTimeoutSeconds:    envInt("TP_DEFAULT_TIMEOUT_SECONDS", 30),
			EnableParallelProcessing: envBool("TP_ENABLE_PARALLEL", true),
			MaxConcurrentRequests:    envInt("TP_MAX_CONCURRENT_REQUESTS", 100),
			TrustScoreThreshold:      envFloat("TP_TRUST_SCORE_THRESHOLD", 70),
		},
		Cache: CacheConfig{
			EnableResultCaching:    envBool("TP_ENABLE_RESULT_CACHING", true),
			CacheExpirationMinutes: envInt("TP_CACHE_EXPIRATION_MINUTES", 30),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("TP_REDIS_URL"),
			PoolSize:     envInt("TP_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("TP_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("TP_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("TP_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("TP_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       envList("TP_KAFKA_BROKERS"),
			OutboundTopic: envStr("TP_KAFKA_OUTBOUND_TOPIC", "trustplane.agent.outbound"),
			InboundTopic:  envStr("TP_KAFKA_INBOUND_TOPIC", "trustplane.agent.inbound"),
			EventTopic:    envStr("TP_KAFKA_EVENT_TOPIC", "trustplane.assessment.events"),
			ConsumerGroup: envStr("TP_KAFKA_CONSUMER_GROUP", "trustplane-orchestrator"),
		},
		Transport: TransportConfig{
			EnableDirectChannel:           envBool("TP_ENABLE_DIRECT_CHANNEL", true),
			AgentAuthSigningKey:           envStr("TP_AGENT_AUTH_SIGNING_KEY", "dev-secret-key-change-in-production"),
			AgentHeartbeatIntervalSeconds: envInt("TP_AGENT_HEARTBEAT_INTERVAL_SECONDS", 30),
			DefaultMessageTTLSeconds:      envInt("TP_DEFAULT_MESSAGE_TTL_SECONDS", 300),
			SendTimeoutSeconds:            envInt("TP_SEND_TIMEOUT_SECONDS", 10),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("TP_POSTGRES_URL"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envRegions(key string, fallback []id.Region) []id.Region {
	raw := envList(key)
	if len(raw) == 0 {
		return fallback
	}
	regions := make([]id.Region, 0, len(raw))
	for _, r := range raw {
		regions = append(regions, id.Region(strings.ToUpper(r)))
	}
	return regions
}
