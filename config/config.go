package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL    string
	SocketURL     string
	AppMode       string
	SessionFile   string
	CacheBackend  string
	CacheFile     string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:8080"),
		SocketURL:     getEnv("SOCKET_URL", "ws://localhost:8080/ws"),
		AppMode:       getEnv("APP_MODE", "development"),
		SessionFile:   getEnv("SESSION_FILE", ".pharmadeal-session.json"),
		CacheBackend:  getEnv("CACHE_BACKEND", "file"),
		CacheFile:     getEnv("CACHE_FILE", ".pharmadeal-chat-cache.json"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
