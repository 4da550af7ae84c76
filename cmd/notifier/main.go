// The notifier consumes delivery events from Kafka and pushes them to driver
// apps connected over websocket. It runs separately from the API so a slow
// socket never backs up the marketplace core.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/parcelmatch/internal/config"
	"github.com/example/parcelmatch/internal/logging"
	"github.com/example/parcelmatch/internal/notify"
)

var (
	eventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parcelmatch",
		Name:      "notifier_events_consumed_total",
		Help:      "Delivery events consumed from the broker.",
	})
	eventsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parcelmatch",
		Name:      "notifier_events_invalid_total",
		Help:      "Messages that failed to decode as events.",
	})
	pushesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parcelmatch",
		Name:      "notifier_pushes_failed_total",
		Help:      "Websocket pushes that failed after retries.",
	})
)

var upgrader = websocket.Upgrader{}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadNotifierConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsreg := notify.NewWSRegistry(logger)

	router := mux.NewRouter()
	router.HandleFunc("/ws/{driver_id}", func(w http.ResponseWriter, r *http.Request) {
		driverID := mux.Vars(r)["driver_id"]
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "upgrade failed", http.StatusBadRequest)
			return
		}
		wsreg.Add(driverID, conn)
		logger.Info("driver socket connected", "driver_id", driverID)
	})
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Info("notifier listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	logger.Info("consuming events", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroupID)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("kafka read failed", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		eventsConsumed.Inc()

		var e notify.Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			eventsInvalid.Inc()
			logger.Warn("invalid event payload", "error", err)
			continue
		}
		if e.DriverID == "" {
			continue
		}
		if err := pushWithRetry(wsreg, e, 3, 200*time.Millisecond); err != nil {
			pushesFailed.Inc()
			logger.Warn("push failed", "driver_id", e.DriverID, "type", e.Type, "error", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// Pusher is the slice of the registry the retry loop needs; tests substitute
// a fake.
type Pusher interface {
	Push(driverID string, e notify.Event) error
}

// pushWithRetry retries transient send failures with exponential backoff. A
// driver without a connected session is not retried; the event is simply not
// deliverable here.
func pushWithRetry(p Pusher, e notify.Event, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = p.Push(e.DriverID, e)
		if err == nil || errors.Is(err, notify.ErrNoSession) {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
