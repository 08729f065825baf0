package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env            string         `yaml:"env" env:"ENV" env-default:"local"`
	Service        string         `yaml:"service" env:"SERVICE_NAME"`
	Logger         Logger         `yaml:"logger"`
	HTTP           HTTP           `yaml:"http"`
	Postgres       PG             `yaml:"postgres"`
	Redis          Redis          `yaml:"redis"`
	Kafka          Kafka          `yaml:"kafka"`
	Outbox         Outbox         `yaml:"outbox"`
	Reservation    Reservation    `yaml:"reservation"`
	PaymentGateway PaymentGateway `yaml:"payment_gateway"`
	Breaker        Breaker        `yaml:"breaker"`
	Telemetry      Telemetry      `yaml:"telemetry"`
}

type Logger struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL      string `yaml:"url" env:"DB_URL"`
	MaxConns int32  `yaml:"max_conns" env-default:"10"`
	MinConns int32  `yaml:"min_conns" env-default:"2"`
}

type Redis struct {
	Addr string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	TTL  time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"10m"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
	Retry   Retry    `yaml:"retry"`
}

type Retry struct {
	InitialInterval time.Duration `yaml:"initial_interval" env:"KAFKA_RETRY_INITIAL" env-default:"200ms"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"KAFKA_RETRY_MAX" env-default:"5s"`
	Multiplier      float64       `yaml:"multiplier" env:"KAFKA_RETRY_MULTIPLIER" env-default:"2"`
	MaxAttempts     uint64        `yaml:"max_attempts" env:"KAFKA_RETRY_ATTEMPTS" env-default:"5"`
}

type Outbox struct {
	BatchSize int           `yaml:"batch_size" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env-default:"500ms"`
}

type Reservation struct {
	TTL            time.Duration `yaml:"ttl" env-default:"15m"`
	ReaperEnabled  bool          `yaml:"reaper_enabled" env:"RESERVATION_REAPER_ENABLED" env-default:"false"`
	ReaperInterval time.Duration `yaml:"reaper_interval" env-default:"1m"`
	ReaperBatch    int           `yaml:"reaper_batch" env-default:"100"`
}

type PaymentGateway struct {
	Name    string        `yaml:"name" env:"PAYMENT_GATEWAY_NAME" env-default:"sandbox"`
	BaseURL string        `yaml:"base_url" env:"PAYMENT_GATEWAY_URL"`
	APIKey  string        `yaml:"api_key" env:"PAYMENT_GATEWAY_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
	Sandbox bool          `yaml:"sandbox" env:"PAYMENT_GATEWAY_SANDBOX" env-default:"true"`
}

type Breaker struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" env-default:"5"`
	Cooldown            time.Duration `yaml:"cooldown" env-default:"30s"`
}

type Telemetry struct {
	Endpoint    string  `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	Insecure    bool    `yaml:"insecure" env:"OTEL_INSECURE" env-default:"true"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_SAMPLE_RATIO" env-default:"1"`
}

const defaultConfigPath = "./config/local.yaml"

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
