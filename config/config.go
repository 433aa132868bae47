package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config собирается из переменных окружения; .env подхватывается в main
type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Stock    StockConfig
}

type ServerConfig struct {
	AppEnv string
	Addr   string
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// StorageConfig выбирает реализацию хранилища: memory или postgres
type StorageConfig struct {
	Driver string
}

type PostgresConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type StockConfig struct {
	// LowStockThreshold граница low_stock в штуках
	LowStockThreshold int64
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv: getEnv("APP_ENV", "dev"),
			Addr:   getEnv("HTTP_ADDR", ":9091"),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOGGER_LEVEL", "info"),
			Encoding: getEnv("LOGGER_ENCODING", "json"),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "memory"),
		},
		Postgres: PostgresConfig{
			Host:         getEnv("POSTGRES_HOST", "localhost"),
			Port:         getEnv("POSTGRES_PORT", "5432"),
			User:         getEnv("POSTGRES_USER", "apteka"),
			Password:     getEnv("POSTGRES_PASSWORD", "apteka"),
			DBName:       getEnv("POSTGRES_DB", "apteka"),
			SSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Stock: StockConfig{
			LowStockThreshold: int64(getEnvInt("LOW_STOCK_THRESHOLD", 10)),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
