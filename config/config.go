package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HttpPort string

	// RabbitMQ
	BrokerURL     string
	PrefetchCount int

	// S3/MinIO
	BucketEndpoint  string
	BucketAccessID  string
	BucketAccessKey string
	BucketName      string
	BucketRegion    string
	UseSSL          bool   // MinIO: false, S3: true
	StorageType     string // "minio" or "s3"

	// Redis
	RedisURL      string
	RedisPassword string

	// Postgres
	Host     string
	User     string
	Password string
	DBName   string
	Port     string

	// Converter sidecar
	ConverterURL     string
	ConverterTimeout time.Duration

	// Pipeline
	SplitThresholdPages int // documents above this page count get split
	SplitSize           int // pages per part
	MaxRetries          int

	// Upload
	UploadTimeout time.Duration
	MaxFileSize   int64
}

const (
	DefaultSplitSize = 25
	MinSplitSize     = 10
	MaxSplitSize     = 100
)

func LoadConfig() *Config {
	return &Config{
		HttpPort:            os.Getenv("PORT"),
		BrokerURL:           os.Getenv("RABBITMQ_URL"),
		PrefetchCount:       envInt("PREFETCH_COUNT", 3),
		BucketEndpoint:      os.Getenv("BUCKET_ENDPOINT"),
		BucketAccessID:      os.Getenv("BUCKET_ACCESS_ID"),
		BucketAccessKey:     os.Getenv("BUCKET_ACCESS_KEY"),
		BucketName:          os.Getenv("BUCKET_NAME"),
		BucketRegion:        os.Getenv("BUCKET_REGION"),
		UseSSL:              os.Getenv("BUCKET_USE_SSL") == "true",
		StorageType:         os.Getenv("STORAGE_TYPE"),
		RedisURL:            os.Getenv("REDIS_URL"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		Host:                os.Getenv("PG_HOST"),
		User:                os.Getenv("PG_USER"),
		Password:            os.Getenv("PG_PASSWORD"),
		DBName:              os.Getenv("PG_DB"),
		Port:                os.Getenv("PG_PORT"),
		ConverterURL:        os.Getenv("CONVERTER_URL"),
		ConverterTimeout:    envDuration("CONVERTER_TIMEOUT", 10*time.Minute),
		SplitThresholdPages: envInt("SPLIT_THRESHOLD_PAGES", 50),
		SplitSize:           clampSplitSize(envInt("SPLIT_SIZE", DefaultSplitSize)),
		MaxRetries:          envInt("MAX_RETRIES", 3),
		UploadTimeout:       15 * time.Minute,
		MaxFileSize:         50 * 1024 * 1024,
	}
}

func clampSplitSize(n int) int {
	if n < MinSplitSize {
		return MinSplitSize
	}
	if n > MaxSplitSize {
		return MaxSplitSize
	}
	return n
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
