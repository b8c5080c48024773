package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/cachecrawler/internal/api"
	"github.com/ocx/cachecrawler/internal/cache"
	"github.com/ocx/cachecrawler/internal/config"
	"github.com/ocx/cachecrawler/internal/crawler"
	"github.com/ocx/cachecrawler/internal/extstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := config.Get()

	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Logging.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting cachecrawler", "port", cfg.Server.Port)

	c := cache.New(cfg.Cache.Classes)
	col := c.Collaborators()

	if cfg.Redis.Enabled {
		store, err := extstore.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			log.Fatalf("extstore: failed to connect to redis: %v", err)
		}
		defer store.Close()
		col.Storage = store
		logger.Info("extstore: redis page validator enabled", "addr", cfg.Redis.Addr)
	}

	metrics := crawler.NewMetrics()
	col.Running = metrics

	pace := crawler.PaceConfig{
		CrawlsPerSleep: cfg.Crawler.CrawlsPerSleep,
		SleepFor:       time.Duration(cfg.Crawler.SleepMicros) * time.Microsecond,
	}

	sched := crawler.NewScheduler(col, pace, logger).WithMetrics(metrics)
	sched.Start()
	defer sched.Stop(true)

	if cfg.Crawler.Enabled {
		res := sched.Crawl("all", crawler.ScanAutoExpire, 0, nil)
		logger.Info("autoexpire sweep submitted at startup", "result", res.String())
	}

	srv := api.NewServer(sched, c, logger)
	router := srv.Router()

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	addr := cfg.Server.Interface + ":" + cfg.Server.Port
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	logger.Info("crawlerd listening", "addr", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
