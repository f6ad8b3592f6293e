package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"journal-keeper/internal/config"
	apphttp "journal-keeper/internal/http"
	"journal-keeper/internal/repository/kvstore"
	"journal-keeper/internal/service"
	"journal-keeper/internal/storage"
	"journal-keeper/internal/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	passwordStorage, err := service.ParsePasswordStorage(cfg.Auth.PasswordStorage)
	if err != nil {
		logger.Fatalf("auth password storage: %v", err)
	}
	if cfg.Auth.Secret == "" {
		logger.Warn("auth secret is not configured; login and entry routes will answer 500")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	defer closeStore()

	codec := token.NewCodec(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	userService := service.NewUserService(kvstore.NewUserRepository(store, logger), codec, passwordStorage)
	entryService := service.NewEntryService(kvstore.NewEntryRepository(store, logger), codec, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(userService, entryService, logger).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		return storage.NewMemoryStore(), noop, nil
	case "sqlite", "":
		db, err := storage.OpenSQLite(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, noop, err
		}
		logger.Infof("using sqlite database %s", cfg.Storage.SQLite.Path)
		return storage.NewSQLStore(db, storage.SQLiteDialect), closeDB(db, logger), nil
	case "postgres":
		db, err := storage.OpenPostgres(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using postgres database")
		return storage.NewSQLStore(db, storage.PostgresDialect), closeDB(db, logger), nil
	case "s3":
		store, err := buildS3Store(ctx, cfg, logger)
		return store, noop, err
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func closeDB(db *sql.DB, logger *logrus.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Warnf("close database: %v", err)
		}
	}
}

func buildS3Store(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Store, error) {
	if cfg.Storage.S3.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.S3.Bucket, cfg.Storage.S3.Region)
	return storage.NewS3Store(client, cfg.Storage.S3.Bucket, cfg.Storage.S3.KeyPrefix)
}
