package global

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StorageRedis  = "redis"
	StorageMongo  = "mongo"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

type Config struct {
	Port        string
	Env         string
	CORSOrigins []string

	Storage       string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	MongoURI      string
	MongoDatabase string
	SQLitePath    string

	JWTSecret   string
	RabbitMQURL string
}

func (c Config) Production() bool {
	return c.Env == "production"
}

// LoadConfig reads the service configuration from the environment
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:          GetEnvOrDefault("PORT", "8000"),
		Env:           GetEnvOrDefault("ENV", "development"),
		Storage:       strings.ToLower(GetEnvOrDefault("CART_STORAGE", StorageRedis)),
		RedisAddress:  GetEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: GetEnvOrDefault("REDIS_PASSWORD", ""),
		MongoURI:      GetEnvOrDefault("MONGODB_URI", ""),
		MongoDatabase: GetEnvOrDefault("MONGODB_DATABASE", "uchef"),
		SQLitePath:    GetEnvOrDefault("SQLITE_PATH", "carts.db"),
		JWTSecret:     GetEnvOrDefault("JWT_SECRET", ""),
		RabbitMQURL:   GetEnvOrDefault("RABBITMQ_URL", ""),
	}

	for _, origin := range strings.Split(GetEnvOrDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	db, err := strconv.Atoi(GetEnvOrDefault("REDIS_DB", "0"))
	if err != nil || db < 0 {
		return Config{}, fmt.Errorf("REDIS_DB must be a non-negative integer, got %q", GetEnvOrDefault("REDIS_DB", ""))
	}
	cfg.RedisDB = db

	ttl, err := parseTTL(GetEnvOrDefault("CART_TTL", "0"))
	if err != nil {
		return Config{}, err
	}
	cfg.CartTTL = ttl

	switch cfg.Storage {
	case StorageRedis, StorageSQLite, StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGODB_URI is required when CART_STORAGE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("unknown CART_STORAGE %q", cfg.Storage)
	}

	return cfg, nil
}

// parseTTL accepts a Go duration or a number of seconds
func parseTTL(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("CART_TTL must not be negative")
		}
		return time.Duration(secs) * time.Second, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl < 0 {
		return 0, fmt.Errorf("CART_TTL must be a duration like 72h, got %q", raw)
	}
	return ttl, nil
}
