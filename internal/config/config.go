package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	PointsGeoKey  string
	RidersGeoKey  string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string // alert history; empty keeps history in memory

	JWTSecret string

	NotifyRadiusMeters float64
	CatalogRefresh     time.Duration
	DefaultSpeedMps    float64
	OSRMEndpoint       string

	FCMEndpoint string
	FCMKey      string

	CORSOrigins []string

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		MongoDB:            "bikehelp",
		PointsGeoKey:       "points_geo",
		RidersGeoKey:       "riders_geo",
		KafkaTopic:         "rider-locations",
		NotifyRadiusMeters: 200,
		CatalogRefresh:     30 * time.Second,
		DefaultSpeedMps:    5.5,
		LogLevel:           "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.MongoURI = strings.TrimSpace(os.Getenv("MONGO_URI"))
	setStringFromEnv(&cfg.MongoDB, "MONGO_DB")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.PointsGeoKey, "POINTS_GEO_KEY")
	setStringFromEnv(&cfg.RidersGeoKey, "RIDERS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	setFloatFromEnv(&cfg.NotifyRadiusMeters, "NOTIFY_RADIUS_METERS", &errs)
	setDurationFromEnv(&cfg.CatalogRefresh, "CATALOG_REFRESH", &errs)
	setFloatFromEnv(&cfg.DefaultSpeedMps, "DEFAULT_SPEED_MPS", &errs)
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")

	setStringFromEnv(&cfg.FCMEndpoint, "FCM_ENDPOINT")
	cfg.FCMKey = os.Getenv("FCM_KEY")

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitAndTrim(origins)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be set"))
	}
	if cfg.NotifyRadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_RADIUS_METERS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig covers the location-fix consumer process.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RidersGeoKey  string
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "rider-locations",
		KafkaGroup:   "bike-help-consumer",
		RedisAddr:    "localhost:6379",
		RidersGeoKey: "riders_geo",
		LogLevel:     "info",
	}
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RidersGeoKey, "RIDERS_GEO_KEY")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return cfg, nil
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
