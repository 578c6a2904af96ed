// Command namacap-capture records one livestream end to end: it waits for
// the scheduled start, captures and remuxes the stream, uploads the
// artifact, and announces it. The poller spawns one of these per video;
// the singleton ledger keeps duplicates out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/namacap/namacap/internal/capture"
	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/dropbox"
	"github.com/namacap/namacap/internal/hls"
	"github.com/namacap/namacap/internal/ids"
	"github.com/namacap/namacap/internal/log"
	"github.com/namacap/namacap/internal/notify"
	"github.com/namacap/namacap/internal/state"
	"github.com/namacap/namacap/internal/youtube"
)

func main() {
	force := flag.Bool("force", false, "capture even when a live owner already holds the ledger entry")
	noDownload := flag.Bool("no-download", false, "reuse the raw capture already in the work directory")
	noRemux := flag.Bool("no-remux", false, "upload the raw capture without remuxing")
	noUpload := flag.Bool("no-upload", false, "stop after the remux, keep the artifact locally")
	noNotify := flag.Bool("no-notify", false, "do not send the completion mail")
	noDelete := flag.Bool("no-delete", false, "keep intermediate and uploaded files")
	forceLogToFile := flag.Bool("force-log-to-file", false, "log to a file even when attached to a terminal")
	overrideChannelName := flag.String("override-channel-name", "", "channel name to use instead of the stream author")
	overrideVideoName := flag.String("override-video-name", "", "title to use instead of the stream title")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: namacap-capture [flags] <video-id>")
		os.Exit(2)
	}
	videoID := flag.Arg(0)
	if !ids.IsValidVideoID(videoID) {
		fmt.Fprintf(os.Stderr, "invalid video id: %q\n", videoID)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := initLogging(cfg, videoID, *forceLogToFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := youtube.NewClient(youtube.WithCookiesFile(cfg.CookiesPath))
	store := state.NewStore(cfg.StatePath)
	lock := state.NewLock(store)
	streamlink := capture.NewStreamlink(cfg.StreamlinkPath)
	ffmpeg := capture.NewFFmpeg(cfg.FFmpegPath)
	probe := hls.NewProbe(30 * time.Second)

	var publisher capture.Publisher
	if cfg.DropboxAccessToken != "" {
		dbx := dropbox.NewClient(cfg.DropboxAccessToken)
		publisher = dropbox.NewUploader(dbx, cfg.ChunkSize())
	} else if !*noUpload {
		log.Warn("no upload credential configured, artifact will stay local")
	}

	var notifier capture.Notifier
	if !*noNotify && cfg.NotifyTo != "" {
		notifier = notify.NewMailer(cfg.SMTPAddr, cfg.NotifyFrom, cfg.NotifyTo)
	}

	pipeline := capture.NewPipeline(cfg, client, lock, streamlink, ffmpeg, probe, publisher, notifier)

	opts := capture.Options{
		Force:         *force,
		SkipDownload:  *noDownload,
		SkipRemux:     *noRemux,
		SkipUpload:    *noUpload,
		KeepWorkFiles: *noDelete,
		ChannelName:   *overrideChannelName,
		VideoName:     *overrideVideoName,
	}
	result, err := pipeline.Run(ctx, videoID, opts)
	if err != nil {
		if errors.Is(err, capture.ErrAlreadyRunning) {
			log.Info("another capture already owns this video, nothing to do",
				zap.String("video_id", videoID))
			return
		}
		log.Error("capture failed", zap.String("video_id", videoID), zap.Error(err))
		log.Sync()
		os.Exit(1)
	}

	log.Info("capture finished",
		zap.String("video_id", videoID),
		zap.String("title", result.Title),
		zap.String("link", result.Link),
	)
}

// initLogging writes to stderr when run interactively and to a per-video
// log file when detached, since a spawned capture has nowhere else to put
// its output.
func initLogging(cfg *config.Config, videoID string, forceFile bool) error {
	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if interactive && !forceFile {
		return log.Init(cfg.Environment)
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d.log", videoID, os.Getpid())
	return log.InitFile(filepath.Join(cfg.LogDir, name))
}
