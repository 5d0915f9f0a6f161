package main

import (
	"context"
	"expvar"
	"fmt"
	"os"
	"runtime"
	"time"

	"reviewbot/internal/bot"
	"reviewbot/internal/catalog"
	"reviewbot/internal/config"
	"reviewbot/internal/conversation"
	"reviewbot/internal/db"
	"reviewbot/internal/domain/storage"
	"reviewbot/internal/flows"
	"reviewbot/internal/media"
	"reviewbot/internal/messenger"
	"reviewbot/internal/metrics"
	"reviewbot/internal/preview"
	"reviewbot/internal/ratelimiter"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	tele "gopkg.in/telebot.v3"
)

// NewLogger creates a new zap logger with color.
func NewLogger(level string) (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core).Sugar(), nil
}

var version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.HasAdmin() {
		logger.Warn("ADMIN_ID is not set, reviews will be stored without moderation dispatch")
	}

	// Database
	pool, err := db.New(cfg.DB.Addr, cfg.DB.MaxConns, cfg.DB.MaxIdleTime)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx, pool)
	cancel()
	if err != nil {
		logger.Fatal(err)
	}

	store := storage.NewContainer(pool)

	products := catalog.Default()
	if cfg.ProductsFile != "" {
		if products, err = catalog.LoadFile(cfg.ProductsFile); err != nil {
			logger.Fatal(err)
		}
	}

	var archive media.Archive = media.NopArchive{}
	if cfg.CloudinaryURL != "" {
		if archive, err = media.NewCloudinary(cfg.CloudinaryURL, "reviews"); err != nil {
			logger.Fatal(err)
		}
	}

	var states conversation.Store
	switch cfg.State.Backend {
	case config.StateRedis:
		rdb, err := conversation.DialRedis(cfg.State.RedisURL)
		if err != nil {
			logger.Fatal(err)
		}
		defer rdb.Close()
		states = conversation.NewRedisStore(rdb, cfg.State.TTL)
	default:
		states = conversation.NewMemoryStore(cfg.State.TTL)
	}

	poller := bot.NewPoller(cfg.Bot, logger)
	tb, err := tele.NewBot(tele.Settings{
		Token:   cfg.BotToken,
		Poller:  poller,
		OnError: bot.OnError(logger),
	})
	if err != nil {
		logger.Fatal(err)
	}

	m := metrics.New()
	limiter := ratelimiter.New(cfg.RateLimiter)

	svc := flows.New(flows.Deps{
		Store:     store,
		Messenger: messenger.NewTelebot(tb),
		Catalog:   products,
		States:    states,
		Archive:   archive,
		Logger:    logger,
		Metrics:   m,
	}, flows.Config{
		AdminID:        cfg.AdminID,
		BroadcastDelay: cfg.BroadcastDelay,
		BlurSigma:      preview.DefaultSigma,
	})

	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: m,
		states:  states,
		limiter: limiter,
		poller:  poller,
		bot: bot.New(tb, bot.Deps{
			Service: svc,
			Users:   store.Users,
			Limiter: limiter,
			Locker:  conversation.NewLocker(),
			Logger:  logger,
			Metrics: m,
		}),
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]int64{
			"total_conns":    int64(s.TotalConns()),
			"idle_conns":     int64(s.IdleConns()),
			"acquired_conns": int64(s.AcquiredConns()),
			"acquire_count":  s.AcquireCount(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	if err := app.run(mux); err != nil {
		logger.Fatal(err)
	}
}
