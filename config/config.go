package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Assistant AssistantConfig
	Retention RetentionConfig
	Client    ClientConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns       int // 0 keeps the pgx default
	MinConns       int
	MaxConnIdleMin int
}

// RedisConfig holds Redis connection settings. An empty Addr runs without Redis
// (single instance, local fan-out only).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // 0 keeps the go-redis default
}

// JWTConfig holds access token signing settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AssistantConfig holds Gemini settings. An empty APIKey disables generation.
type AssistantConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
}

// RetentionConfig controls the completed-gig sweeper.
type RetentionConfig struct {
	CompletedHours int
	IntervalMin    int
}

// ClientConfig is read by gigctl.
type ClientConfig struct {
	ServerURL   string
	ProfilePath string
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "campus_gigs"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:       getEnvInt("DB_MAX_CONNS", 10),
			MinConns:       getEnvInt("DB_MIN_CONNS", 0),
			MaxConnIdleMin: getEnvInt("DB_MAX_CONN_IDLE_MIN", 5),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24*30),
		},
		Assistant: AssistantConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash-preview-09-2025"),
			BaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			TimeoutSeconds: getEnvInt("ASSISTANT_TIMEOUT_SEC", 30),
		},
		Retention: RetentionConfig{
			CompletedHours: getEnvInt("GIG_RETENTION_HOURS", 72),
			IntervalMin:    getEnvInt("SWEEP_INTERVAL_MIN", 15),
		},
		Client: ClientConfig{
			ServerURL:   getEnv("GIGS_SERVER_URL", "http://localhost:8080"),
			ProfilePath: getEnv("GIGS_PROFILE_PATH", defaultProfilePath()),
		},
	}
	return cfg, nil
}

func defaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "campus-gigs", "profile.db")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
