package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	ParcelBox ParcelBoxConfig `yaml:"parcelbox"`
	Carriers  CarriersConfig  `yaml:"carriers"`
}

type LogConfig struct {
	Environment string `yaml:"environment"` // "production" | "development"
	Level       string `yaml:"level"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "pg" | "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`

	// sqlite
	Path               string `yaml:"path"`
	BusyTimeoutSeconds int    `yaml:"busy_timeout_seconds"`
}

// ConnString builds the postgres DSN.
func (c DatabaseConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
}

// Enabled is false when no broker is configured; the worker then delivers directly.
func (c KafkaConfig) Enabled() bool { return c.Host != "" }

func (c KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

type TelegramConfig struct {
	Token              string `yaml:"token"`
	PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
	RatePerSecond      int    `yaml:"rate_per_second"`
}

type ParcelBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	SnapshotTTLSeconds int    `yaml:"snapshot_ttl_seconds"`
	LockTTLSeconds     int    `yaml:"lock_ttl_seconds"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerFetchTimeoutSeconds int `yaml:"worker_fetch_timeout_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`
	// per-carrier override, carrier code -> requests per minute
	WorkerCarrierRateLimits map[string]int `yaml:"worker_carrier_rate_limits"`
}

type CarriersConfig struct {
	CJBaseURL      string `yaml:"cj_base_url"`
	EPostBaseURL   string `yaml:"epost_base_url"`
	Track24BaseURL string `yaml:"track24_base_url"`
	Track24APIKey  string `yaml:"track24_api_key"`
	Track24Domain  string `yaml:"track24_domain"`
	EnableFake     bool   `yaml:"enable_fake"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	// токен бота держим вне yaml
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	return &config, nil
}

// LoadFromEnv reads an optional .env file, then the YAML file named by configPath.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		return nil, fmt.Errorf("configPath env var is required")
	}
	return LoadConfig(cfgPath)
}
