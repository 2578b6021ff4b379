/*
 * @module internal/config
 * @description Environment-driven configuration for every binary in this
 *   repo (server, consumer, worker); mirrors the getEnvWithDefault pattern
 *   used throughout the rate limiter and distributed lock packages instead
 *   of a heavier file-based config manager.
 * @architecture Configuration layer
 * @dependencies os, strconv, time
 */
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime tunables plus the ranking weights and worker
// cadences needed to run the three binaries.
type Config struct {
	LatentDim   int
	RedisURL    string
	DatabaseURL string
	KafkaBrokers []string
	ListenPort  int
	BaseContext string

	// PopularityInterval and CFTrainInterval are read from the environment;
	// cmd/worker schedules its jobs from fixed cron expressions and does not
	// use them.
	PopularityInterval time.Duration
	CFTrainInterval    time.Duration

	RankerWeights RankerWeights
}

// RankerWeights are the fixed score-fusion coefficients from §4.5, split out
// so tests can override them without touching global state.
type RankerWeights struct {
	CF          float64
	Popularity  float64
	Bandit      float64
	TextPresent float64
	TextAbsent  float64
	Session     float64
}

// DefaultRankerWeights returns the coefficients specified in §4.5.
func DefaultRankerWeights() RankerWeights {
	return RankerWeights{
		CF:          0.45,
		Popularity:  0.18,
		Bandit:      0.12,
		TextPresent: 0.20,
		TextAbsent:  0.05,
		Session:     0.10,
	}
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() Config {
	cfg := Config{
		LatentDim:   getEnvInt("LATENT_DIM", 32),
		RedisURL:    getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		ListenPort:  getEnvInt("LISTEN_PORT", 80),
		BaseContext: getEnv("BASE_CONTEXT", ""),

		PopularityInterval: getEnvDuration("POPULARITY_INTERVAL", time.Hour),
		CFTrainInterval:    getEnvDuration("CF_TRAIN_INTERVAL", 6*time.Hour),

		RankerWeights: DefaultRankerWeights(),
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
