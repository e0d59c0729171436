package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/claude/cyclesense/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "CycleSense server URL (required unless -dry-run)")
	apiKey := flag.String("api-key", os.Getenv("CYCLESENSE_API_KEY"), "ingest API key (default $CYCLESENSE_API_KEY)")
	autoSyncPath := flag.String("path", "", "path to AutoSync directory or one of its parents (required)")
	dryRun := flag.Bool("dry-run", false, "convert files and report counts without sending")
	batchSize := flag.Int("batch-size", 2000, "data points per payload")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Usage: cyclesense-upload -server https://cyclesense.example.ts.net -path /path/to/AutoSync [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	dir := upload.ResolveAutoSync(*autoSyncPath)
	if dir == "" {
		log.Error("AutoSync directory not found; pass -path")
		os.Exit(1)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Error("cannot determine home directory", "error", err)
		os.Exit(1)
	}
	state, err := upload.OpenStateDB(filepath.Join(home, ".cyclesense-upload"))
	if err != nil {
		log.Error("failed to open state db", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	var client upload.Sender
	if !*dryRun {
		client = upload.NewClient(*serverURL, *apiKey)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uploader := upload.New(client, state, dir, *dryRun, *batchSize, log)
	if last, err := uploader.LastRun(); err == nil && !last.IsZero() {
		log.Info("previous upload", "at", last)
	}

	log.Info("uploading", "path", dir, "dry_run", *dryRun, "version", Version)
	stats, err := uploader.Run(ctx)
	if stats != nil {
		log.Info("upload stats",
			"files_total", stats.FilesTotal,
			"files_uploaded", stats.FilesUploaded,
			"files_skipped", stats.FilesSkipped,
			"files_errored", stats.FilesErrored,
			"points_sent", stats.MetricPointsSent,
			"payloads_sent", stats.PayloadsSent,
		)
		if len(stats.RejectedMetrics) > 0 {
			log.Info("metrics not in server allowlist", "metrics", stats.RejectedMetrics)
		}
	}
	if err != nil {
		log.Error("upload failed", "error", err)
		os.Exit(1)
	}
}
