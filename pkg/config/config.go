package config

import (
	"errors"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Event transport drivers.
const (
	EventsDriverNone     = "none"
	EventsDriverRabbitMQ = "rabbitmq"
	EventsDriverNATS     = "nats"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Cache      CacheConfig
	Events     EventsConfig
	Sweeper    SweeperConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig holds the booking and lesson policy constants.
type SchedulingConfig struct {
	Timezone               string
	FreeCancellationWindow time.Duration
	TutorEarlyJoin         time.Duration
	StudentEarlyJoin       time.Duration
	LateJoinLimit          time.Duration
	DefaultUnitCapacity    int
	BlockStarts            []int
	BlockHours             int
	AvailabilityPageSize   int
	TxMaxRetries           int
}

// Location resolves the configured timezone, falling back to UTC.
func (c SchedulingConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CacheConfig toggles the Redis-backed availability block cache.
type CacheConfig struct {
	AvailabilityEnabled bool
	AvailabilityTTL     time.Duration
}

// EventsConfig selects the broker lesson events are forwarded to.
type EventsConfig struct {
	Driver      string
	URL         string
	TopicPrefix string
	Workers     int
	BufferSize  int
	MaxRetries  int
	RetryDelay  time.Duration
}

// SweeperConfig drives the expired package sweeper binary.
type SweeperConfig struct {
	CronSpec string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduling = SchedulingConfig{
		Timezone:               v.GetString("SCHEDULE_TIMEZONE"),
		FreeCancellationWindow: parseDuration(v.GetString("FREE_CANCELLATION_WINDOW"), 12*time.Hour),
		TutorEarlyJoin:         parseDuration(v.GetString("TUTOR_EARLY_JOIN"), 11*time.Minute),
		StudentEarlyJoin:       parseDuration(v.GetString("STUDENT_EARLY_JOIN"), 10*time.Minute),
		LateJoinLimit:          parseDuration(v.GetString("LATE_JOIN_LIMIT"), 80*time.Minute),
		DefaultUnitCapacity:    positiveOr(v.GetInt("DEFAULT_UNIT_CAPACITY"), 1),
		BlockStarts:            parseHours(v.GetString("AVAILABILITY_BLOCK_STARTS")),
		BlockHours:             positiveOr(v.GetInt("AVAILABILITY_BLOCK_HOURS"), 8),
		AvailabilityPageSize:   positiveOr(v.GetInt("AVAILABILITY_PAGE_SIZE"), 100),
		TxMaxRetries:           v.GetInt("TX_MAX_RETRIES"),
	}

	cfg.Cache = CacheConfig{
		AvailabilityEnabled: v.GetBool("ENABLE_AVAILABILITY_CACHE"),
		AvailabilityTTL:     parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Events = EventsConfig{
		Driver:      strings.ToLower(v.GetString("EVENTS_DRIVER")),
		URL:         v.GetString("EVENTS_URL"),
		TopicPrefix: v.GetString("EVENTS_TOPIC_PREFIX"),
		Workers:     v.GetInt("EVENTS_WORKERS"),
		BufferSize:  v.GetInt("EVENTS_BUFFER"),
		MaxRetries:  v.GetInt("EVENTS_MAX_RETRIES"),
		RetryDelay:  parseDuration(v.GetString("EVENTS_RETRY_DELAY"), time.Second),
	}

	cfg.Sweeper = SweeperConfig{
		CronSpec: v.GetString("SWEEPER_CRON"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lingo_tutor")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULE_TIMEZONE", "UTC")
	v.SetDefault("FREE_CANCELLATION_WINDOW", "12h")
	v.SetDefault("TUTOR_EARLY_JOIN", "11m")
	v.SetDefault("STUDENT_EARLY_JOIN", "10m")
	v.SetDefault("LATE_JOIN_LIMIT", "80m")
	v.SetDefault("DEFAULT_UNIT_CAPACITY", 1)
	v.SetDefault("AVAILABILITY_BLOCK_STARTS", "6,14")
	v.SetDefault("AVAILABILITY_BLOCK_HOURS", 8)
	v.SetDefault("AVAILABILITY_PAGE_SIZE", 100)
	v.SetDefault("TX_MAX_RETRIES", 3)

	v.SetDefault("ENABLE_AVAILABILITY_CACHE", false)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "2m")

	v.SetDefault("EVENTS_DRIVER", EventsDriverNone)
	v.SetDefault("EVENTS_URL", "")
	v.SetDefault("EVENTS_TOPIC_PREFIX", "lingo")
	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_BUFFER", 64)
	v.SetDefault("EVENTS_MAX_RETRIES", 3)
	v.SetDefault("EVENTS_RETRY_DELAY", "1s")

	v.SetDefault("SWEEPER_CRON", "*/15 * * * *")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// parseHours reads a comma separated list of hours of day, dropping anything outside 0-23.
func parseHours(raw string) []int {
	parts := splitAndTrim(raw)
	hours := make([]int, 0, len(parts))
	for _, part := range parts {
		h, err := strconv.Atoi(part)
		if err != nil || h < 0 || h > 23 {
			continue
		}
		hours = append(hours, h)
	}
	return hours
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
