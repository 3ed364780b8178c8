package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Engine   EngineConfig
	RabbitMQ RabbitMQConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type RedisConfig struct {
	URL string
}

// EngineConfig holds the delivery engine tunables. Every field has a default
// so the engine runs with only REDIS_URL set.
type EngineConfig struct {
	WorkerCount        int
	QueueCapacity      int
	DequeueTimeout     time.Duration
	SweepInterval      time.Duration
	DefaultTimeout     int // seconds
	DefaultMaxAttempts int
	DefaultRetryDelay  int // seconds
}

// RabbitMQConfig configures the optional source-event consumer. The consumer
// is only started when URL and SourceQueue are both set.
type RabbitMQConfig struct {
	URL         string
	SourceQueue string
}

// Enabled reports whether the source-event consumer should run
func (c *RabbitMQConfig) Enabled() bool {
	return c.URL != "" && c.SourceQueue != ""
}

func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	config := &Config{
		Server: ServerConfig{
			Port: getDefault("SERVER_PORT", "8080"),
			Host: getDefault("SERVER_HOST", "0.0.0.0"),
		},
		Redis: RedisConfig{
			URL: get("REDIS_URL"),
		},
		Engine: EngineConfig{
			WorkerCount:        getInt("WORKER_COUNT", 3),
			QueueCapacity:      getInt("QUEUE_CAPACITY", 1024),
			DequeueTimeout:     getSeconds("DEQUEUE_TIMEOUT_SECONDS", 5),
			SweepInterval:      getSeconds("RETRY_SWEEP_INTERVAL_SECONDS", 10),
			DefaultTimeout:     getInt("DEFAULT_TIMEOUT_SECONDS", 30),
			DefaultMaxAttempts: getInt("DEFAULT_RETRY_ATTEMPTS", 3),
			DefaultRetryDelay:  getInt("DEFAULT_RETRY_DELAY_SECONDS", 60),
		},
		RabbitMQ: RabbitMQConfig{
			URL:         os.Getenv("RABBITMQ_URL"),
			SourceQueue: os.Getenv("RABBITMQ_SOURCE_QUEUE"),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

func getDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}
