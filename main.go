package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubpos/config"
	"clubpos/db"
	"clubpos/globals"
	"clubpos/idempotency"
	"clubpos/journal"
	"clubpos/kitchen"
	"clubpos/mq"
	"clubpos/orders"
	"clubpos/ratelim"
	"clubpos/rdx"
	"clubpos/routes"
	"clubpos/store"
	"clubpos/store/mongostore"
	"clubpos/store/pgstore"
	"clubpos/telemetry"

	"github.com/rs/cors"
)

const draftIdleTimeout = 2 * time.Hour

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request method, path, status, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

// resources collects everything that has to be closed on shutdown, in
// reverse order of opening.
type resources struct {
	closers []func(context.Context) error
}

func (r *resources) add(fn func(context.Context) error) { r.closers = append(r.closers, fn) }

func (r *resources) addCloser(c io.Closer) {
	r.add(func(context.Context) error { return c.Close() })
}

func (r *resources) close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config, res *resources) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		m, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		s := mongostore.New(m)
		res.add(s.Close)
		return s, nil
	case config.BackendPostgres:
		s, err := pgstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		res.add(s.Close)
		return s, nil
	default:
		slog.Warn("using in-memory order store; data is lost on restart")
		return store.NewMemory(), nil
	}
}

func openEvents(cfg *config.Config, redis *rdx.Client, res *resources) (mq.Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsRedis:
		if redis == nil {
			return nil, errors.New("events backend redis needs REDIS_ADDR")
		}
		return mq.NewRedis(redis, cfg.EventsChannel), nil
	case config.EventsRabbitMQ:
		r, err := mq.DialRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, err
		}
		res.addCloser(r)
		return r, nil
	default:
		return mq.Discard{}, nil
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	telemetry.InitLogger(os.Stdout, cfg.LogLevel)
	globals.JwtSecret = []byte(cfg.JWTSecret)

	res := &resources{}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := res.close(closeCtx); err != nil {
			slog.Error("closing resources", "error", err)
		}
	}()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	res.add(shutdownTracer)

	s, err := openStore(ctx, cfg, res)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	var redis *rdx.Client
	var idem idempotency.Store = idempotency.NewMemory()
	if cfg.RedisAddr != "" {
		redis, err = rdx.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, "clubpos")
		if err != nil {
			return err
		}
		res.addCloser(redis)
		s = store.WithCatalog(s, store.NewCachedCatalog(s, redis, cfg.CatalogCacheTTL))
		idem = idempotency.NewRedis(redis)
	}

	events, err := openEvents(cfg, redis, res)
	if err != nil {
		return err
	}

	var recorder journal.Recorder = journal.Discard{}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		res.addCloser(j)
		recorder = j
	}

	board := kitchen.NewBoard(s, kitchen.Options{Journal: recorder, Events: events})
	drafts := orders.NewDrafts()
	handler := orders.NewHandler(s, board, orders.NewService(s, events), drafts)

	router := routes.New(routes.Deps{
		Orders:         handler,
		RateLimiter:    ratelim.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Idempotency:    idem,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"}, // lock down in production
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", idempotency.Header},
		ExposedHeaders: []string{"Idempotent-Replayed", "Retry-After"},
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           loggingMiddleware(securityHeaders(corsHandler)),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := drafts.Expire(draftIdleTimeout); n > 0 {
					slog.Info("expired idle drafts", "count", n)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Port, "store", cfg.StoreBackend, "events", cfg.EventsBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received; shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("server stopped cleanly")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		stop()
		os.Exit(1)
	}
}
