package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the social agent.
// Environment variables win; a .env file is loaded first when present.
type Config struct {
	App     AppConfig
	Server  ServerConfig
	API     APIConfig
	Socket  SocketConfig
	Session SessionConfig
	Redis   RedisConfig
	Limits  LimitsConfig
}

type AppConfig struct {
	Mode string
}

type ServerConfig struct {
	Addr          string
	Token         string
	AllowedOrigin string
}

type APIConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	BreakerFailures int
}

type SocketConfig struct {
	BaseURL           string
	ChatNamespace     string
	FriendNamespace   string
	EncryptedUser     string
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	DialTimeout       time.Duration
}

type SessionConfig struct {
	Path string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LimitsConfig struct {
	Conversations  int
	Messages       int
	FriendRequests int
	DedupCap       int
	DedupKeep      int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		App: AppConfig{
			Mode: getEnv("APP_MODE", "development"),
		},
		Server: ServerConfig{
			Addr:          getEnv("SERVER_ADDR", "127.0.0.1:7070"),
			Token:         getEnv("SERVER_TOKEN", ""),
			AllowedOrigin: getEnv("SERVER_ALLOWED_ORIGIN", "http://localhost:3000"),
		},
		API: APIConfig{
			BaseURL:         getEnv("API_BASE_URL", "https://api.edulearning.io.vn/api"),
			Token:           getEnv("API_TOKEN", ""),
			Timeout:         getEnvAsDuration("API_TIMEOUT", 20*time.Second),
			RetryMaxElapsed: getEnvAsDuration("API_RETRY_MAX_ELAPSED", 5*time.Second),
			BreakerFailures: getEnvAsInt("API_BREAKER_FAILURES", 5),
		},
		Socket: SocketConfig{
			BaseURL:           getEnv("SOCKET_URL", "wss://api.edulearning.io.vn"),
			ChatNamespace:     getEnv("SOCKET_CHAT_NAMESPACE", "/chat"),
			FriendNamespace:   getEnv("SOCKET_FRIEND_NAMESPACE", "/friend"),
			EncryptedUser:     getEnv("SOCKET_ENCRYPTED_USER", ""),
			ReconnectDelay:    getEnvAsDuration("SOCKET_RECONNECT_DELAY", time.Second),
			ReconnectAttempts: getEnvAsInt("SOCKET_RECONNECT_ATTEMPTS", 5),
			DialTimeout:       getEnvAsDuration("SOCKET_DIAL_TIMEOUT", 20*time.Second),
		},
		Session: SessionConfig{
			Path: getEnv("SESSION_PATH", "session.json"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Limits: LimitsConfig{
			Conversations:  getEnvAsInt("LIMIT_CONVERSATIONS", 100),
			Messages:       getEnvAsInt("LIMIT_MESSAGES", 50),
			FriendRequests: getEnvAsInt("LIMIT_FRIEND_REQUESTS", 50),
			DedupCap:       getEnvAsInt("DEDUP_CAP", 1000),
			DedupKeep:      getEnvAsInt("DEDUP_KEEP", 500),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
