package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"alumni-chat/config"
	"alumni-chat/logger"
	"alumni-chat/models"
	"alumni-chat/observability"
	"alumni-chat/routes"
	"alumni-chat/services"
	"alumni-chat/store"
	"alumni-chat/store/gormstore"
	"alumni-chat/store/memstore"
	"alumni-chat/store/mongostore"
)

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	manager := services.NewWSManager(services.ClientOptions{
		PingInterval:   cfg.WSPingInterval,
		PongTimeout:    cfg.WSPongTimeout,
		WriteWait:      cfg.WSWriteWait,
		SendBuffer:     cfg.WSSendBuffer,
		ReadLimit:      cfg.WSReadLimit,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, log)
	defer manager.Close()

	if cfg.RedisURL != "" {
		relay, err := services.NewRedisRelay(ctx, cfg.RedisURL, cfg.RedisChannel, manager, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect relay")
		}
		defer relay.Close()
		manager.SetRelay(relay)
		go relay.Run(ctx)
	}

	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	users := services.NewUserService(st)
	chat := services.NewChatService(st, manager, cfg.MessageMaxLength, log)

	r := routes.RegisterRoutes(routes.Dependencies{
		Config: cfg,
		Log:    log,
		Store:  st,
		Tokens: tokens,
		Users:  users,
		Chat:   chat,
		WS:     manager,
	})

	log.Info().
		Str("service", cfg.ServiceName).
		Int("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Str("store", cfg.StoreDriver).
		Msg("starting application")

	if err := run(ctx, cfg, r, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("application exited cleanly")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL, config.DriverPostgres:
		db, err := config.OpenDB(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := models.Migrate(db); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return gormstore.New(db), nil
	case config.DriverMongo:
		return mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return memstore.New(), nil
	}
}

// run serves HTTP until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, handler *gin.Engine, log zerolog.Logger) error {
	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
