package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Model  ModelConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	Environment    string
	ServiceName    string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int // per-request timeout in seconds
	CORSOrigins    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	OpTimeout int // per-operation timeout in seconds
}

// ModelConfig holds prediction model configuration
type ModelConfig struct {
	Dir                  string  // directory for persisted model artifacts
	BaseSpeedLimit       float64 // nominal free-flow speed in km/h, not segment-aware
	PredictionTTLMinutes int     // cache lifetime of a prediction
	MinTestR2            float64 // strict mode: reject retrains scoring below this; 0 accepts all
	TrainSeed            int64   // seed for the train/test split shuffle
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8000"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ServiceName:    serviceName,
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT", 30),
			CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			OpTimeout: getEnvAsInt("REDIS_OP_TIMEOUT", 3),
		},
		Model: ModelConfig{
			Dir:                  getEnv("MODEL_DIR", "./models"),
			BaseSpeedLimit:       getEnvAsFloat("BASE_SPEED_LIMIT", 50.0),
			PredictionTTLMinutes: getEnvAsInt("PREDICTION_TTL_MINUTES", 30),
			MinTestR2:            getEnvAsFloat("MODEL_MIN_TEST_R2", 0),
			TrainSeed:            int64(getEnvAsInt("MODEL_TRAIN_SEED", 42)),
		},
	}

	return cfg, nil
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
