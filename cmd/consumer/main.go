package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/bike-help/internal/config"
	"github.com/example/bike-help/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_fixes_consumed_total",
		Help: "Total rider location fixes consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_fixes_invalid_total",
		Help: "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis presence updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	_ = godotenv.Load()

	// allow a flag override for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			// readiness: check redis connectivity
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", cfg.KafkaTopic, cfg.KafkaBrokers, cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var f models.LocationFix
		if err := json.Unmarshal(m.Value, &f); err != nil || f.UserID == "" {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}

		// Update rider presence with retries and small backoff
		if err := updatePresenceWithRetry(ctx, radapter, cfg.RidersGeoKey, &f, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			log.Printf("presence update failed for rider=%s: %v", f.UserID, err)
			continue
		}
		redisUpdates.Inc()
	}
}

// PresenceUpdater defines the small subset of redis operations we need for tests and production.
type PresenceUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

// updatePresenceWithRetry writes a rider's position and metadata using the
// PresenceUpdater interface with retry/backoff.
func updatePresenceWithRetry(ctx context.Context, rc PresenceUpdater, geoKey string, f *models.LocationFix, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		if err := rc.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: f.Loc.Lon, Latitude: f.Loc.Lat, Name: f.UserID}); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		if err := rc.HSet(ctx, "rider:meta:"+f.UserID, map[string]interface{}{"seen": f.RecordedAt.Format(time.RFC3339)}); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return nil
}
