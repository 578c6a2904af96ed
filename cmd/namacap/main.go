// Command namacap runs one poll pass over the configured channels and
// exits. It is the cron-friendly entry point; the runner daemon wraps the
// same pass in a loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/ids"
	"github.com/namacap/namacap/internal/log"
	"github.com/namacap/namacap/internal/poller"
	"github.com/namacap/namacap/internal/state"
	"github.com/namacap/namacap/internal/youtube"
)

func main() {
	skipLive := flag.Bool("skip-live-endpoint", false, "skip the per-channel /live probe")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	env := os.Getenv("ENVIRONMENT")
	if *verbose {
		env = "development"
	}
	if err := log.Init(env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if len(cfg.Channels) == 0 {
		log.Fatal("no channels configured")
	}
	for _, ch := range cfg.Channels {
		if !ids.IsValidChannelID(ch) {
			log.Fatal("invalid channel id in configuration", zap.String("channel_id", ch))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := youtube.NewClient(youtube.WithCookiesFile(cfg.CookiesPath))
	store := state.NewStore(cfg.StatePath)
	lock := state.NewLock(store)
	launcher := poller.NewSpawnLauncher(cfg.CaptureBin)

	p := poller.New(client, store, lock, launcher, cfg.Thresholds())
	failed := p.Poll(ctx, cfg.Channels, poller.Options{SkipLiveEndpoint: *skipLive})
	if failed > 0 {
		log.Warn("poll pass finished with failures",
			zap.Int("failed_channels", failed),
			zap.Int("total_channels", len(cfg.Channels)),
		)
		os.Exit(1)
	}
	log.Info("poll pass finished", zap.Int("channels", len(cfg.Channels)))
}
