package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds the base configuration
type Config struct {
	Server ServerConfig
	Worker WorkerConfig
	Redis  RedisConfig
	App    AppConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CallTimeout  time.Duration
}

type WorkerConfig struct {
	Name         string
	StopPolicy   string
	LockOSThread bool
	StopTimeout  time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// FlushOnStart drops results left over from earlier runs.
	FlushOnStart bool
}

type AppConfig struct {
	LogLevel      string
	EncryptionKey string
	WorkDelay     time.Duration
	DemoRate      float64
	DemoCount     int
}

type LogConfig struct {
	FileOutput bool
	Filename   string
}

// Load loads configuration from environment variables with defaults value
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CallTimeout:  getEnvDuration("SERVER_CALL_TIMEOUT", 2*time.Second),
		},
		Worker: WorkerConfig{
			Name:         getEnv("WORKER_NAME", "encryptor"),
			StopPolicy:   getEnv("WORKER_STOP_POLICY", "discard"),
			LockOSThread: getEnvBool("WORKER_LOCK_OS_THREAD", false),
			StopTimeout:  getEnvDuration("WORKER_STOP_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL", 30*time.Minute),

			FlushOnStart: getEnvBool("REDIS_FLUSH_ON_START", false),
		},
		App: AppConfig{
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			EncryptionKey: getEnv("ENCRYPTION_KEY", "handoff"),
			WorkDelay:     getEnvDuration("APP_WORK_DELAY", 0),
			DemoRate:      getEnvFloat("DEMO_RATE", 20),
			DemoCount:     getEnvInt("DEMO_COUNT", 50),
		},
		Log: LogConfig{
			FileOutput: getEnvBool("LOG_FILE_OUTPUT", false),
			Filename:   getEnv("LOG_FILENAME", "logs/handoff.log"),
		},
	}
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
