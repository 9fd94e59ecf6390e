package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"trashbin/app"
	"trashbin/config"
	"trashbin/middleware"
	"trashbin/store"
	"trashbin/utils"
)

func main() {
	envFile := loadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := utils.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if envFile != "" {
		logger.Info("loaded environment file", zap.String("path", envFile))
	}
	cfg.Log(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.Warn("failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		return err
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.DatabaseName))
	db := mongoClient.Database(cfg.DatabaseName)

	deps := app.Deps{
		Collection: func(name string) store.Collection { return store.Mongo(db.Collection(name)) },
		Ping: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, readpref.Primary())
		},
		Logger: logger,
	}
	if deps.Blobs, err = app.OpenBlobStore(connectCtx, cfg, logger); err != nil {
		return err
	}

	a := app.New(cfg, deps)
	if err := a.EnsureIndexes(connectCtx); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler.Handler(a.Router(middleware.RequestLogger(logger))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// loadEnvFile loads the first .env found near the working directory and
// returns its path.
func loadEnvFile() string {
	pwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	candidates := []string{
		filepath.Join(pwd, ".env"),
		filepath.Join(filepath.Dir(pwd), ".env"),
		filepath.Join(filepath.Dir(filepath.Dir(pwd)), ".env"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}
