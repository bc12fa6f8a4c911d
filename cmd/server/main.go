package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"crud6-backend/internal/auth"
	"crud6-backend/internal/config"
	"crud6-backend/internal/engine"
	"crud6-backend/internal/instrument"
	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("schema_path", cfg.Schema.Path),
		zap.String("namespace", cfg.Schema.Namespace))

	// 2. Connect to the default database; named connections open on first use
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	stores := store.NewManager(db, cfg.Connections)
	defer stores.Close()
	logger.Info("database connected", zap.Strings("connections", stores.Names()))

	// 3. Schema store
	var metrics *instrument.Metrics
	if cfg.Metrics.Enabled {
		metrics = instrument.NewMetrics()
	}
	opts := []schema.Option{schema.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, schema.WithObserver(metrics))
	}
	if pc := cfg.Schema.PersistentCache; pc.Path != "" {
		cache, err := schema.OpenBuntCache(pc.Path)
		if err != nil {
			logger.Fatal("failed to open schema cache", zap.Error(err))
		}
		defer cache.Close()
		opts = append(opts, schema.WithPersistentCache(cache, time.Duration(pc.TTLSeconds)*time.Second))
	}
	schemas, err := schema.NewStore(schema.FileLocator{Root: cfg.Schema.Path}, cfg.Schema.Namespace, opts...)
	if err != nil {
		logger.Fatal("failed to create schema store", zap.Error(err))
	}

	// 4. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler(logger),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Log.Development,
	}))
	app.Use(instrument.Middleware(instrument.NewLogInstrumenter(logger), metrics, logger))

	// 5. Health check and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if metrics != nil {
		app.Get("/metrics", metrics.Handler())
	}

	// 6. Model routes; identity is optional, capabilities decide access
	handlerCfg := engine.Config{
		Schemas:    schemas,
		Stores:     stores,
		Authorizer: auth.NewRoleAuthorizer(cfg.Auth.AdminRole, cfg.Auth.Roles),
		Hasher:     auth.HashPassword,
		Logger:     logger,
	}
	if metrics != nil {
		handlerCfg.Relations = metrics
	}
	engine.RegisterRoutes(app, cfg.Schema.Namespace, engine.NewHandler(handlerCfg),
		auth.Middleware(cfg.Auth.JWTSecret, false))

	// 7. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}
