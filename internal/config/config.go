package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DB DBConfig

	JWTSecret string // JWT署名シークレット（発行は外部）

	Kafka KafkaConfig

	LogLevel string // debug/info/warn/error
}

// DB接続設定。DATABASE_URLがあればそちらを優先
type DBConfig struct {
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
}

func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// outbox relay用。Brokersが空ならrelayは起動しない
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Loadは環境変数から読む（.envはmain側でgodotenvが読む）
func Load() (Config, error) {
	pgPort, err := atoiDefault("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	maxConns, err := atoiDefault("DB_MAX_OPEN_CONNS", 20)
	if err != nil {
		return Config{}, err
	}
	poll, err := durationDefault("OUTBOX_POLL_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: getenv("PORT", "8080"),

		DB: DBConfig{
			URL:          os.Getenv("DATABASE_URL"),
			Host:         getenv("POSTGRES_HOST", "localhost"),
			Port:         pgPort,
			User:         getenv("POSTGRES_USER", "postgres"),
			Password:     getenv("POSTGRES_PASSWORD", "postgres"),
			Name:         getenv("POSTGRES_DB", "checkout"),
			SSLMode:      getenv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns: maxConns,
		},

		JWTSecret: os.Getenv("JWT_SECRET"),

		Kafka: KafkaConfig{
			Brokers:      splitCSV(os.Getenv("KAFKA_BROKERS")),
			Topic:        getenv("KAFKA_TOPIC", "orders"),
			PollInterval: poll,
		},

		LogLevel: strings.ToLower(getenv("LOG_LEVEL", "info")),
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DB.MaxOpenConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if cfg.Kafka.PollInterval <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("LOG_LEVEL must be one of debug/info/warn/error")
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
