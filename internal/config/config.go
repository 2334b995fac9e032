package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize int

	// Scoring configuration.
	AlgorithmVersion     string
	PollinationStartWeek int
	PollinationEndWeek   int
	ClimatologyPath      string

	// Forecasting configuration.
	ModelDir        string
	MinValidationR2 float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}

	batchSize, err := parsePositiveInt("BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	pollStart, err := parsePositiveInt("POLLINATION_START_WEEK", 14)
	if err != nil {
		return nil, err
	}
	pollEnd, err := parsePositiveInt("POLLINATION_END_WEEK", 16)
	if err != nil {
		return nil, err
	}

	minR2, err := parseFloat("MIN_VALIDATION_R2", 0.85)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: envOrDefault("KAFKA_SOURCE_TOPIC", "cleaned-observations"),
		KafkaSinkTopic:   envOrDefault("KAFKA_SINK_TOPIC", "stress-scores"),
		KafkaGroupID:     envOrDefault("KAFKA_GROUP_ID", "agriguard-core"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		BatchSize:        batchSize,

		AlgorithmVersion:     envOrDefault("ALGORITHM_VERSION", "v1"),
		PollinationStartWeek: pollStart,
		PollinationEndWeek:   pollEnd,
		ClimatologyPath:      envOrDefault("CLIMATOLOGY_PATH", "data/climatology.yaml"),

		ModelDir:        envOrDefault("MODEL_DIR", "data/models"),
		MinValidationR2: minR2,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.PollinationEndWeek < cfg.PollinationStartWeek {
		return nil, errors.New("POLLINATION_END_WEEK must not precede POLLINATION_START_WEEK")
	}
	if cfg.MinValidationR2 < 0 || cfg.MinValidationR2 > 1 {
		return nil, errors.New("MIN_VALIDATION_R2 must be in [0,1]")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}
