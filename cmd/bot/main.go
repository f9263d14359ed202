package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/bot"
	"github.com/Spok95/erp-catalog-bot/internal/config"
	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/preferences"
	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/Spok95/erp-catalog-bot/internal/domain/search"
	"github.com/Spok95/erp-catalog-bot/internal/domain/users"
	"github.com/Spok95/erp-catalog-bot/internal/infra/db"
	"github.com/Spok95/erp-catalog-bot/internal/infra/erp"
	httpx "github.com/Spok95/erp-catalog-bot/internal/infra/http"
	"github.com/Spok95/erp-catalog-bot/internal/infra/logger"
	"github.com/Spok95/erp-catalog-bot/internal/infra/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func preferenceStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, log *slog.Logger) (preferences.Store, func(), error) {
	if cfg.Preferences.Backend != config.BackendRedis {
		return preferences.NewRepo(pool), func() {}, nil
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	log.Info("redis connected", "addr", cfg.Redis.Addr)
	return preferences.NewRedisStore(rdb, cfg.Redis.Prefix), func() { _ = rdb.Close() }, nil
}

func main() {
	cfgPath := flag.String("config", "config/example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)
	if loc, err := time.LoadLocation(cfg.App.Timezone); err == nil {
		time.Local = loc
	} else {
		log.Warn("unknown timezone, using system", "tz", cfg.App.Timezone, "err", err)
	}

	if err := db.Migrate(cfg.Postgres.DSN, log); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	prefs, closePrefs, err := preferenceStore(ctx, cfg, pool, log)
	if err != nil {
		log.Error("preferences store failed", "err", err, "backend", cfg.Preferences.Backend)
		return
	}
	defer closePrefs()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	log.Info("telegram authorized", "username", api.Self.UserName)

	source := erp.New(erp.Options{
		BaseURL:        cfg.ERP.BaseURL,
		APIKey:         cfg.ERP.APIKey,
		APIKeyHeader:   cfg.ERP.APIKeyHeader,
		CatalogPath:    cfg.ERP.CatalogPath,
		WarehousesPath: cfg.ERP.WarehousesPath,
		Timeout:        cfg.ERP.Timeout,
	}, log)

	b := bot.New(bot.Deps{
		API:           api,
		Log:           log,
		Users:         users.NewRepo(pool),
		States:        dialog.NewRepo(pool),
		Prefs:         prefs,
		Reorder:       reorder.NewRepo(pool),
		Source:        source,
		Metrics:       m,
		AdminChat:     cfg.Telegram.AdminChatID,
		Section:       cfg.Preferences.Section,
		Search:        search.Policy{MinLength: cfg.Search.MinQueryLen},
		Debounce:      cfg.Search.Debounce,
		CheckInterval: cfg.Reorder.CheckInterval,
	})

	srv := httpx.New(httpx.Options{
		Addr:          cfg.HTTP.Addr,
		ExposeMetrics: cfg.Metrics.Enabled,
		Gatherer:      reg,
		Reorder:       b,
	}, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Telegram.PollTimeout
	updates := api.GetUpdatesChan(u)

	if err := b.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot stopped", "err", err)
	}
	api.StopReceivingUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
