package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID   string
	Environment string
	LogLevel    string

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	MaxDBConns   int32

	// ConnectMaxRetries and ConnectRetryDelay bound how long startup waits
	// for postgres and redis to accept connections.
	ConnectMaxRetries int
	ConnectRetryDelay time.Duration

	CacheKey string
	CacheTTL time.Duration

	StreamName            string
	StreamMode            string
	StreamMaxLen          int64
	PublishTimeout        time.Duration
	PublishMaxRetries     int
	PublishInitialBackoff time.Duration
	PublishMaxBackoff     time.Duration
	LegacyPubSubChannel   string

	IdempotencyTTL time.Duration
	EventDedupTTL  time.Duration

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	ConsumerGroup        string
	ConsumerName         string
	ConsumerPollInterval time.Duration
	ConsumerBatchSize    int
	ConsumerBlock        time.Duration

	KafkaTopicNoteCreated string
	HealthCheckInterval   time.Duration
}

type configFile struct {
	Service struct {
		ID          string `yaml:"id"`
		Environment string `yaml:"environment"`
		LogLevel    string `yaml:"log_level"`
		HTTPPort    int    `yaml:"http_port"`
		GRPCPort    int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL           string        `yaml:"postgres_url"`
		RedisURL              string        `yaml:"redis_url"`
		MaxDBConns            int32         `yaml:"max_db_conns"`
		KafkaBrokers          []string      `yaml:"kafka_brokers"`
		KafkaTopicNoteCreated string        `yaml:"kafka_topic_note_created"`
		ConnectMaxRetries     int           `yaml:"connect_max_retries"`
		ConnectRetryDelay     time.Duration `yaml:"connect_retry_delay"`
	} `yaml:"dependencies"`
	Cache struct {
		Key string        `yaml:"key"`
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Stream struct {
		Name                string        `yaml:"name"`
		Mode                string        `yaml:"mode"`
		MaxLen              int64         `yaml:"max_len"`
		PublishTimeout      time.Duration `yaml:"publish_timeout"`
		LegacyPubSubChannel string        `yaml:"legacy_pubsub_channel"`
		Retry               struct {
			MaxRetries     int           `yaml:"max_retries"`
			InitialBackoff time.Duration `yaml:"initial_backoff"`
			MaxBackoff     time.Duration `yaml:"max_backoff"`
		} `yaml:"retry"`
	} `yaml:"stream"`
	Workers struct {
		OutboxPollInterval   time.Duration `yaml:"outbox_poll_interval"`
		OutboxBatchSize      int           `yaml:"outbox_batch_size"`
		ConsumerGroup        string        `yaml:"consumer_group"`
		ConsumerName         string        `yaml:"consumer_name"`
		ConsumerPollInterval time.Duration `yaml:"consumer_poll_interval"`
		ConsumerBatchSize    int           `yaml:"consumer_batch_size"`
	} `yaml:"workers"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:             "M04-Notes-Service",
		Environment:           "prod",
		LogLevel:              "info",
		HTTPPort:              8080,
		GRPCPort:              9090,
		MaxDBConns:            20,
		ConnectMaxRetries:     30,
		ConnectRetryDelay:     2 * time.Second,
		CacheKey:              "notes.all",
		CacheTTL:              30 * time.Second,
		StreamName:            "notes_stream",
		StreamMode:            "auto",
		PublishTimeout:        2 * time.Second,
		PublishMaxRetries:     3,
		PublishInitialBackoff: 100 * time.Millisecond,
		PublishMaxBackoff:     time.Second,
		IdempotencyTTL:        24 * time.Hour,
		EventDedupTTL:         7 * 24 * time.Hour,
		OutboxPollInterval:    2 * time.Second,
		OutboxBatchSize:       100,
		ConsumerGroup:         "notes-processor",
		ConsumerPollInterval:  time.Second,
		ConsumerBatchSize:     50,
		ConsumerBlock:         time.Second,
		KafkaTopicNoteCreated: "notes.created",
		HealthCheckInterval:   10 * time.Second,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.Environment = envOrDefault("APP_ENV", cfg.Environment)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicNoteCreated = envOrDefault("KAFKA_TOPIC_NOTE_CREATED", cfg.KafkaTopicNoteCreated)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.ConnectMaxRetries = envInt("CONNECT_MAX_RETRIES", cfg.ConnectMaxRetries)
	cfg.ConnectRetryDelay = envDuration("CONNECT_RETRY_DELAY_SECONDS", time.Second, cfg.ConnectRetryDelay)
	cfg.CacheKey = envOrDefault("NOTES_CACHE_KEY", cfg.CacheKey)
	cfg.CacheTTL = envDuration("NOTES_CACHE_SECONDS", time.Second, cfg.CacheTTL)
	cfg.StreamName = envOrDefault("NOTES_STREAM", cfg.StreamName)
	cfg.StreamMode = envOrDefault("NOTES_STREAM_MODE", cfg.StreamMode)
	cfg.StreamMaxLen = int64(envInt("NOTES_STREAM_MAXLEN", int(cfg.StreamMaxLen)))
	cfg.PublishTimeout = envDuration("PUBLISH_TIMEOUT_MS", time.Millisecond, cfg.PublishTimeout)
	cfg.PublishMaxRetries = envInt("PUBLISH_MAX_RETRIES", cfg.PublishMaxRetries)
	cfg.PublishInitialBackoff = envDuration("PUBLISH_INITIAL_BACKOFF_MS", time.Millisecond, cfg.PublishInitialBackoff)
	cfg.PublishMaxBackoff = envDuration("PUBLISH_MAX_BACKOFF_MS", time.Millisecond, cfg.PublishMaxBackoff)
	cfg.LegacyPubSubChannel = envOrDefault("LEGACY_PUBSUB_CHANNEL", cfg.LegacyPubSubChannel)
	cfg.IdempotencyTTL = envDuration("IDEMPOTENCY_TTL_HOURS", time.Hour, cfg.IdempotencyTTL)
	cfg.EventDedupTTL = envDuration("EVENT_DEDUP_TTL_HOURS", time.Hour, cfg.EventDedupTTL)
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_SECONDS", time.Second, cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.ConsumerGroup = envOrDefault("CONSUMER_GROUP", cfg.ConsumerGroup)
	cfg.ConsumerName = envOrDefault("CONSUMER_NAME", cfg.ConsumerName)
	cfg.ConsumerPollInterval = envDuration("CONSUMER_POLL_SECONDS", time.Second, cfg.ConsumerPollInterval)
	cfg.ConsumerBatchSize = envInt("CONSUMER_BATCH_SIZE", cfg.ConsumerBatchSize)

	if cfg.ConsumerName == "" {
		host, _ := os.Hostname()
		cfg.ConsumerName = strings.TrimSpace(host)
		if cfg.ConsumerName == "" {
			cfg.ConsumerName = "notes-worker"
		}
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	setString(&cfg.ServiceID, f.Service.ID)
	setString(&cfg.Environment, f.Service.Environment)
	setString(&cfg.LogLevel, f.Service.LogLevel)
	setInt(&cfg.HTTPPort, f.Service.HTTPPort)
	setInt(&cfg.GRPCPort, f.Service.GRPCPort)

	setString(&cfg.DatabaseURL, f.Dependencies.PostgresURL)
	setString(&cfg.RedisURL, f.Dependencies.RedisURL)
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	setString(&cfg.KafkaTopicNoteCreated, f.Dependencies.KafkaTopicNoteCreated)
	setInt(&cfg.ConnectMaxRetries, f.Dependencies.ConnectMaxRetries)
	setDuration(&cfg.ConnectRetryDelay, f.Dependencies.ConnectRetryDelay)

	setString(&cfg.CacheKey, f.Cache.Key)
	setDuration(&cfg.CacheTTL, f.Cache.TTL)

	setString(&cfg.StreamName, f.Stream.Name)
	setString(&cfg.StreamMode, f.Stream.Mode)
	if f.Stream.MaxLen > 0 {
		cfg.StreamMaxLen = f.Stream.MaxLen
	}
	setDuration(&cfg.PublishTimeout, f.Stream.PublishTimeout)
	setString(&cfg.LegacyPubSubChannel, f.Stream.LegacyPubSubChannel)
	setInt(&cfg.PublishMaxRetries, f.Stream.Retry.MaxRetries)
	setDuration(&cfg.PublishInitialBackoff, f.Stream.Retry.InitialBackoff)
	setDuration(&cfg.PublishMaxBackoff, f.Stream.Retry.MaxBackoff)

	setDuration(&cfg.OutboxPollInterval, f.Workers.OutboxPollInterval)
	setInt(&cfg.OutboxBatchSize, f.Workers.OutboxBatchSize)
	setString(&cfg.ConsumerGroup, f.Workers.ConsumerGroup)
	setString(&cfg.ConsumerName, f.Workers.ConsumerName)
	setDuration(&cfg.ConsumerPollInterval, f.Workers.ConsumerPollInterval)
	setInt(&cfg.ConsumerBatchSize, f.Workers.ConsumerBatchSize)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envDuration reads a whole number of unit, or a Go duration string such as
// "1500ms". Unset or unparsable values keep fallback untouched.
func envDuration(name string, unit, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return time.Duration(v) * unit
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
