// Command namacap-runner is the long-running daemon: it repeats the poll
// pass on a fixed interval and serves a small HTTP API exposing the
// shared state document and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/namacap/namacap/internal/api"
	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/httpapi"
	"github.com/namacap/namacap/internal/ids"
	"github.com/namacap/namacap/internal/log"
	"github.com/namacap/namacap/internal/poller"
	"github.com/namacap/namacap/internal/state"
	"github.com/namacap/namacap/internal/telemetry"
	"github.com/namacap/namacap/internal/youtube"
)

const shutdownTimeout = 10 * time.Second

func main() {
	skipLive := flag.Bool("skip-live-endpoint", false, "skip the per-channel /live probe")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting runner",
		zap.Int("channels", len(cfg.Channels)),
		zap.Duration("run_interval", cfg.RunInterval),
		zap.String("listen_addr", cfg.ListenAddr),
	)
	if len(cfg.Channels) == 0 {
		log.Fatal("no channels configured")
	}
	for _, ch := range cfg.Channels {
		if !ids.IsValidChannelID(ch) {
			log.Fatal("invalid channel id in configuration", zap.String("channel_id", ch))
		}
	}

	telemetry.Init()

	client := youtube.NewClient(youtube.WithCookiesFile(cfg.CookiesPath))
	store := state.NewStore(cfg.StatePath)
	lock := state.NewLock(store)
	launcher := poller.NewSpawnLauncher(cfg.CaptureBin)
	p := poller.New(client, store, lock, launcher, cfg.Thresholds())
	handler := api.NewHandler(store, state.PidProbe{}, cfg.Channels)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	if cfg.APIKey != "" {
		v1.Use(httpapi.APIKeyAuth(cfg.APIKey))
	}
	{
		v1.GET("/state", handler.GetState)
		v1.GET("/channels", handler.ListChannels)
		v1.GET("/channels/:channel_id", handler.GetChannel)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	pollCtx, cancelPolls := context.WithCancel(context.Background())
	go runPollLoop(pollCtx, p, cfg, *skipLive)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down runner")
	cancelPolls()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("runner stopped")
}

// runPollLoop repeats the poll pass until ctx is canceled. The first pass
// runs immediately; spawned captures outlive the loop.
func runPollLoop(ctx context.Context, p *poller.Poller, cfg *config.Config, skipLive bool) {
	opts := poller.Options{SkipLiveEndpoint: skipLive}
	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()

	for {
		failed := p.Poll(ctx, cfg.Channels, opts)
		if failed > 0 {
			log.Warn("poll pass finished with failures", zap.Int("failed_channels", failed))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
