package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slotbook/slotbook/internal/events"
	"github.com/slotbook/slotbook/internal/handlers"
	"github.com/slotbook/slotbook/internal/schedule"
	"github.com/slotbook/slotbook/internal/store"
	"github.com/slotbook/slotbook/libs/config"
	"github.com/slotbook/slotbook/libs/db"
	"github.com/slotbook/slotbook/libs/httpx"
	"github.com/slotbook/slotbook/libs/kafkax"
	otelx "github.com/slotbook/slotbook/libs/otel"
	"github.com/slotbook/slotbook/libs/runtime"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "slotbook")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	checks := []runtime.ReadyCheck{}

	// DATABASE_URL selects the backend: Postgres when set, otherwise the
	// in-memory store for local development.
	var (
		availability schedule.AvailabilityStore
		services     schedule.ServiceStore
		appointments schedule.AppointmentStore
		pool         *db.Pool
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		pg := store.NewPostgres(pool)
		availability, services, appointments = pg, pg, pg
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		mem := store.NewMemory()
		availability, services, appointments = mem, mem, mem
	}

	// Events go through the Postgres outbox when both Postgres and Kafka are
	// configured, straight to Kafka when only the broker is, and nowhere
	// otherwise.
	var sink schedule.EventSink
	brokers := config.String("KAFKA_BROKERS", "")
	switch {
	case brokers != "" && pool != nil:
		sink = events.NewOutbox(pool)
		publisher := events.NewPublisher(pool, logger, events.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	case brokers != "":
		kafkaSink := events.NewKafkaSink(brokers, logger)
		defer kafkaSink.Close()
		sink = kafkaSink
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var strategy schedule.Strategy
	switch config.String("RECOMMEND_STRATEGY", "earliest") {
	case "random":
		strategy = schedule.RandomSample{Min: 1, Max: 3}
	case "preferred_hour":
		strategy = schedule.PreferredHour{History: appointments}
	default:
		strategy = schedule.EarliestFirst{N: config.Int("RECOMMEND_COUNT", 3)}
	}

	engine := schedule.NewEngine(schedule.Config{
		Availability: availability,
		Services:     services,
		Appointments: appointments,
		Strategy:     strategy,
		Events:       sink,
		Logger:       logger,
	})

	actors := handlers.ActorResolver{JWTSecret: config.String("JWT_SECRET", "")}
	booking := handlers.NewBookingHandler(engine, actors, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(engine, actors, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/slots", booking.Slots)
	mux.HandleFunc("/api/v1/slots/suggested", booking.Suggested)
	mux.HandleFunc("/api/v1/appointments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			booking.Create(w, r)
			return
		}
		booking.List(w, r)
	})
	mux.HandleFunc("/api/v1/appointments/status", booking.ChangeStatus)
	mux.HandleFunc("/api/v1/availability", availabilityHandler.Availability)
	mux.HandleFunc("/api/v1/services", availabilityHandler.Services)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,X-Actor-Id,X-Actor-Role,X-Actor-Name")),
			AllowCredentials: config.String("CORS_ALLOW_CREDENTIALS", "false") == "true",
			MaxAge:           10 * time.Minute,
		}),
	}

	// Rate limiting follows the store split: Redis when available so limits
	// hold across replicas, per-process otherwise.
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, config.Int("RATE_LIMIT", 120), time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		limiter := httpx.NewRateLimiter(config.Int("RATE_LIMIT", 120), time.Minute)
		middlewares = append(middlewares, limiter.Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
