// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/internal/catalog"
	"github.com/capitalize-ai/support-flow/internal/config"
	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/internal/handler"
	"github.com/capitalize-ai/support-flow/internal/lock"
	natsclient "github.com/capitalize-ai/support-flow/internal/nats"
	"github.com/capitalize-ai/support-flow/internal/service"
	"github.com/capitalize-ai/support-flow/internal/store/memory"
	redisstore "github.com/capitalize-ai/support-flow/internal/store/redis"
	"github.com/capitalize-ai/support-flow/pkg/logger"
	"github.com/capitalize-ai/support-flow/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) (*logger.Logger, error) {
	if os.Getenv("ENV") == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(level)
}

// stores groups the backends selected by configuration.
type stores struct {
	history   service.History
	messages  engine.MessageStore
	variables engine.VariableStore
	positions engine.PositionStore
	locker    lock.Locker
	events    engine.EventPublisher
	checks    map[string]handler.Pinger
	closers   []func()
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Info("starting API server",
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("history_backend", cfg.HistoryBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-flow", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	flows, err := service.LoadFlowSource(cfg.FlowFile, log)
	if err != nil {
		return fmt.Errorf("failed to load flow: %w", err)
	}

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	gw := gateway.New(gateway.Config{
		BaseURL:      cfg.ERPBaseURL,
		Token:        cfg.ERPToken,
		QueryTimeout: cfg.ERPQueryTimeout,
		WriteTimeout: cfg.ERPWriteTimeout,
		Retries:      cfg.ERPRetries,
	}, log)
	if cfg.ERPBaseURL == "" {
		log.Warn("ERP_BASE_URL is not set; integration and write nodes will report the service as unavailable")
	}

	eng := engine.New(engine.Dependencies{
		Messages:       st.messages,
		Variables:      st.variables,
		Positions:      st.positions,
		Gateway:        gw,
		WriteActions:   cat,
		SystemMessages: cat,
		Locker:         st.locker,
		Events:         st.events,
	}, log)

	conversationSvc := service.NewConversationService(eng, flows, st.history, st.variables, log)

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handler.RouterConfig{
			Conversations:            conversationSvc,
			Flows:                    flows,
			Checks:                   st.checks,
			Logger:                   log,
			JWTSecret:                cfg.JWTSecret,
			CORSOrigins:              cfg.CORSOrigins,
			RateLimitRequests:        cfg.RateLimitRequests,
			RateLimitWindow:          cfg.RateLimitWindow,
			ConversationRateRequests: cfg.ConversationRateRequests,
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-reload:
			if err := flows.Reload(); err != nil {
				log.Warn("flow reload rejected", zap.Error(err))
			}
		case <-ctx.Done():
			log.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("server forced to shutdown", zap.Error(err))
			}
			log.Info("server stopped")
			return nil
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	st := &stores{checks: map[string]handler.Pinger{}}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		store := redisstore.NewFromClient(client,
			redisstore.WithPrefix(cfg.RedisPrefix),
			redisstore.WithTTL(cfg.ConversationTTL),
		)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st.variables = store
		st.positions = store
		st.locker = redisstore.NewLocker(client, cfg.RedisPrefix, cfg.LockTTL)
		st.checks["redis"] = store
		st.closers = append(st.closers, func() { _ = store.Close() })
	default:
		st.variables = memory.NewVariableStore()
		st.positions = memory.NewPositionStore()
	}

	switch cfg.HistoryBackend {
	case config.BackendNATS:
		client, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, client.Close)

		history := natsclient.NewHistory(client)
		if err := history.EnsureStream(ctx); err != nil {
			st.close()
			return nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
		st.history = history
		st.messages = history
		st.events = history
		st.checks["nats"] = client
	default:
		messages := memory.NewMessageStore()
		st.history = messages
		st.messages = messages
	}

	return st, nil
}

func (s *stores) close() {
	for _, c := range s.closers {
		c()
	}
}
