package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/farhanpavel/cognit-api/pkg/geo"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Dispatch transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
	TransportRedis  = "redis"
	TransportKafka  = "kafka"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Store    StoreConfig
	Donation DonationConfig
	Dispatch DispatchConfig
	NATS     NATSConfig
	Kafka    KafkaConfig
	Cache    CacheConfig
	Agent    AgentConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the Request Store backend.
type StoreConfig struct {
	Driver string
}

// DonationConfig tunes the request lifecycle.
type DonationConfig struct {
	ProximityLimitKm  float64
	DefaultSessionTTL time.Duration
	LockStripes       int
}

// DispatchConfig configures notification channels and the dispatch task.
type DispatchConfig struct {
	Transport           string
	BroadcastChannel    string
	StatusChannelPrefix string
	DeepLinkBase        string
	BufferSize          int
	Workers             int
	MaxRetries          int
	RetryDelay          time.Duration
	PublishTimeout      time.Duration
}

// NATSConfig points at the NATS server used as push transport.
type NATSConfig struct {
	URL  string
	Name string
}

// KafkaConfig lists brokers used when Kafka is the push transport.
type KafkaConfig struct {
	Brokers []string
}

// CacheConfig governs request-detail caching in Redis.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AgentConfig describes the local donor profile used by cmd/donor-agent.
// Latitude and Longitude keep the raw settings so an unset location is
// distinguishable from (0, 0).
type AgentConfig struct {
	UserID         string
	BloodGroupName string
	Latitude       string
	Longitude      string
	InboxSize      int
}

// Validate reports the first missing or malformed donor setting.
func (a AgentConfig) Validate() error {
	if a.UserID == "" || a.BloodGroupName == "" {
		return errors.New("DONOR_USER_ID and DONOR_BLOOD_GROUP are required")
	}
	_, err := a.Location()
	return err
}

// Location parses the donor's current coordinate. There is no default.
func (a AgentConfig) Location() (geo.Coordinate, error) {
	if a.Latitude == "" || a.Longitude == "" {
		return geo.Coordinate{}, errors.New("DONOR_LATITUDE and DONOR_LONGITUDE are required")
	}
	lat, err := strconv.ParseFloat(a.Latitude, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("parse DONOR_LATITUDE: %w", err)
	}
	lng, err := strconv.ParseFloat(a.Longitude, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("parse DONOR_LONGITUDE: %w", err)
	}
	loc := geo.Coordinate{Latitude: lat, Longitude: lng}
	if !loc.Valid() {
		return geo.Coordinate{}, fmt.Errorf("donor location %v,%v is out of range", lat, lng)
	}
	return loc, nil
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Store = StoreConfig{Driver: strings.ToLower(v.GetString("STORE_DRIVER"))}

	proximity := v.GetFloat64("PROXIMITY_LIMIT_KM")
	if proximity <= 0 {
		proximity = 30
	}
	cfg.Donation = DonationConfig{
		ProximityLimitKm:  proximity,
		DefaultSessionTTL: parseDuration(v.GetString("DEFAULT_SESSION_TTL"), 24*time.Hour),
		LockStripes:       v.GetInt("LIFECYCLE_LOCK_STRIPES"),
	}

	cfg.Dispatch = DispatchConfig{
		Transport:           strings.ToLower(v.GetString("DISPATCH_TRANSPORT")),
		BroadcastChannel:    v.GetString("BROADCAST_CHANNEL"),
		StatusChannelPrefix: v.GetString("STATUS_CHANNEL_PREFIX"),
		DeepLinkBase:        v.GetString("DEEP_LINK_BASE"),
		BufferSize:          v.GetInt("DISPATCH_BUFFER"),
		Workers:             v.GetInt("DISPATCH_WORKERS"),
		MaxRetries:          v.GetInt("DISPATCH_MAX_RETRIES"),
		RetryDelay:          parseDuration(v.GetString("DISPATCH_RETRY_DELAY"), 500*time.Millisecond),
		PublishTimeout:      parseDuration(v.GetString("DISPATCH_PUBLISH_TIMEOUT"), 5*time.Second),
	}

	cfg.NATS = NATSConfig{
		URL:  v.GetString("NATS_URL"),
		Name: v.GetString("NATS_CLIENT_NAME"),
	}

	cfg.Kafka = KafkaConfig{Brokers: splitAndTrim(v.GetString("KAFKA_BROKERS"))}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_REQUEST_CACHE"),
		TTL:     parseDuration(v.GetString("REQUEST_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Agent = AgentConfig{
		UserID:         v.GetString("DONOR_USER_ID"),
		BloodGroupName: v.GetString("DONOR_BLOOD_GROUP"),
		Latitude:       strings.TrimSpace(v.GetString("DONOR_LATITUDE")),
		Longitude:      strings.TrimSpace(v.GetString("DONOR_LONGITUDE")),
		InboxSize:      v.GetInt("DONOR_INBOX_SIZE"),
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
	v.SetDefault("DB_NAME", "cognit")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("PROXIMITY_LIMIT_KM", 30)
	v.SetDefault("DEFAULT_SESSION_TTL", "24h")
	v.SetDefault("LIFECYCLE_LOCK_STRIPES", 64)

	v.SetDefault("DISPATCH_TRANSPORT", TransportMemory)
	v.SetDefault("BROADCAST_CHANNEL", "new-request")
	v.SetDefault("STATUS_CHANNEL_PREFIX", "request-status-")
	v.SetDefault("DEEP_LINK_BASE", "cognit://blood-requests")
	v.SetDefault("DISPATCH_BUFFER", 256)
	v.SetDefault("DISPATCH_WORKERS", 2)
	v.SetDefault("DISPATCH_MAX_RETRIES", 5)
	v.SetDefault("DISPATCH_RETRY_DELAY", "500ms")
	v.SetDefault("DISPATCH_PUBLISH_TIMEOUT", "5s")

	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("NATS_CLIENT_NAME", "cognit-api")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")

	v.SetDefault("ENABLE_REQUEST_CACHE", false)
	v.SetDefault("REQUEST_CACHE_TTL", "2m")

	v.SetDefault("DONOR_USER_ID", "")
	v.SetDefault("DONOR_BLOOD_GROUP", "")
	v.SetDefault("DONOR_INBOX_SIZE", 100)
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
