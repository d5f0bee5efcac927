package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Auth      Auth      `yaml:"auth"`
	S3        S3        `yaml:"s3"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Client    Client    `yaml:"client"`
}

// S3 holds S3/MinIO transcript archive configuration
type S3 struct {
	Enabled         bool   `yaml:"enabled" env:"S3_ENABLED" env-default:"false"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"support"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	PublicURL       string `yaml:"public_url" env:"S3_PUBLIC_URL" env-default:"http://localhost:9000/support"`
	Prefix          string `yaml:"prefix" env:"S3_PREFIX" env-default:"transcripts"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
}

// Address returns the full server address
func (s Server) Address() string {
	return s.Host + ":" + s.Port
}

// Database holds database configuration
type Database struct {
	// PostgreSQL
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`

	// Connection pool settings
	MaxOpenConns int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" env:"DB_CONN_LIFETIME" env-default:"5m"`

	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"file://migrations"`
}

// Auth holds bearer token configuration
type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"dev-secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"JWT_TOKEN_TTL" env-default:"24h"`
}

// Redis holds the rate limiter store configuration. An empty address disables rate limiting.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Kafka holds event publishing configuration. Empty brokers disable publishing.
type Kafka struct {
	Brokers string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string `yaml:"topic" env:"KAFKA_TOPIC" env-default:"support-messaging"`
}

// RateLimit holds the per-user send limit
type RateLimit struct {
	SendLimit  int64         `yaml:"send_limit" env:"RATE_LIMIT_SEND" env-default:"30"`
	SendWindow time.Duration `yaml:"send_window" env:"RATE_LIMIT_SEND_WINDOW" env-default:"1m"`
}

// Client holds configuration of the terminal chat client
type Client struct {
	BaseURL              string        `yaml:"base_url" env:"CLIENT_BASE_URL" env-default:"http://localhost:8080/api/v1"`
	Token                string        `yaml:"token" env:"CLIENT_TOKEN"`
	UserID               string        `yaml:"user_id" env:"CLIENT_USER_ID"`
	UserName             string        `yaml:"user_name" env:"CLIENT_USER_NAME"`
	UserRole             string        `yaml:"user_role" env:"CLIENT_USER_ROLE" env-default:"student"`
	MessageInterval      time.Duration `yaml:"message_interval" env:"CLIENT_MESSAGE_INTERVAL" env-default:"3s"`
	ConversationInterval time.Duration `yaml:"conversation_interval" env:"CLIENT_CONVERSATION_INTERVAL" env-default:"10s"`
	RequestTimeout       time.Duration `yaml:"request_timeout" env:"CLIENT_REQUEST_TIMEOUT" env-default:"15s"`
	LogFile              string        `yaml:"log_file" env:"CLIENT_LOG_FILE" env-default:"supportchat.log"`
}

// MustLoad loads configuration from environment and panics on error
func MustLoad() Config {
	// Load .env file if exists (for development)
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
