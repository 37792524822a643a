package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/talentsim/backend/internal/timer"
)

// Config aggregates every setting the service reads.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Timer    TimerConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	timerCfg, err := loadTimerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      LogConfig{Mode: getEnvOrDefault("LOG_MODE", "dev")},
		Database: loadDatabaseConfig(),
		Redis:    RedisConfig{Addr: strings.TrimSpace(os.Getenv("REDIS_ADDR"))},
		AI:       ai,
		Timer:    timerCfg,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// LogConfig selects the logger build mode.
type LogConfig struct {
	Mode string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// DatabaseConfig carries the Postgres connection settings. An empty DSN
// (no host configured) selects the in-memory store fallback.
type DatabaseConfig struct {
	DSN string
}

// Enabled reports whether a Postgres endpoint was configured.
func (c DatabaseConfig) Enabled() bool {
	return c.DSN != ""
}

func loadDatabaseConfig() DatabaseConfig {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		return DatabaseConfig{}
	}

	port := getEnvOrDefault("POSTGRES_PORT", "5432")
	user := getEnvOrDefault("POSTGRES_USER", "postgres")
	password := strings.TrimSpace(os.Getenv("POSTGRES_PASSWORD"))
	name := getEnvOrDefault("POSTGRES_DB", "talentsim")
	sslMode := getEnvOrDefault("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode)
	return DatabaseConfig{DSN: dsn}
}

// RedisConfig carries the transcript cache substrate address. Empty
// selects the in-memory KV fallback.
type RedisConfig struct {
	Addr string
}

// Enabled reports whether a Redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AIConfig describes the scoring model.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
	TurnLimit   int
}

// Enabled reports whether the required credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or the AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	turnLimit := 200
	if override, err := parseOptionalIntEnv("SCORING_TURN_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		turnLimit = *override
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TurnLimit:   turnLimit,
	}, nil
}

// TimerConfig carries the session duration and the clock tuning. The
// clock constants are empirically tuned heuristics, kept configurable.
type TimerConfig struct {
	SessionDurationSeconds int
	Clock                  timer.ClockConfig
}

func loadTimerConfig() (TimerConfig, error) {
	duration := 2400
	if override, err := parseOptionalIntEnv("SESSION_DURATION_SECONDS"); err != nil {
		return TimerConfig{}, err
	} else if override != nil {
		if *override < 60 {
			return TimerConfig{}, fmt.Errorf("SESSION_DURATION_SECONDS must be at least 60, got %d", *override)
		}
		duration = *override
	}

	clock := timer.DefaultClockConfig()
	if d, err := parseOptionalDurationEnv("CLOCK_RESYNC_INTERVAL"); err != nil {
		return TimerConfig{}, err
	} else if d != nil {
		clock.ResyncInterval = *d
	}
	if d, err := parseOptionalDurationEnv("CLOCK_MIN_RESYNC_SPACING"); err != nil {
		return TimerConfig{}, err
	} else if d != nil {
		clock.MinResyncSpacing = *d
	}
	if d, err := parseOptionalDurationEnv("CLOCK_DRIFT_TOLERANCE"); err != nil {
		return TimerConfig{}, err
	} else if d != nil {
		clock.DriftTolerance = *d
	}
	if d, err := parseOptionalDurationEnv("CLOCK_GRACE_PAD"); err != nil {
		return TimerConfig{}, err
	} else if d != nil {
		clock.GracePad = *d
	}

	return TimerConfig{SessionDurationSeconds: duration, Clock: clock}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
