package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claude/cyclesense/internal/config"
	"github.com/claude/cyclesense/internal/importer"
	"github.com/claude/cyclesense/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	autoSyncPath := flag.String("path", "", "path to AutoSync directory (required)")
	login := flag.String("user", "", "login to import data for (defaults to auth.dev_user)")
	dryRun := flag.Bool("dry-run", false, "report counts without inserting into database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *autoSyncPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: cyclesense-import -config config.yaml -path /path/to/AutoSync [-user login] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*autoSyncPath)
	if err != nil || !info.IsDir() {
		log.Error("AutoSync path does not exist or is not a directory", "path", *autoSyncPath)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *login == "" {
		*login = cfg.Auth.DevUser
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, cfg.Server.MigrationsPath); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	}

	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	uid, err := db.GetOrCreateUser(ctx, *login, "")
	if err != nil {
		log.Error("failed to resolve user", "login", *login, "error", err)
		os.Exit(1)
	}

	var logID int64
	if !*dryRun {
		logID, err = db.InsertImportLog(ctx, storage.ImportLog{UserID: uid, Source: storage.SourceHAEFile, Status: "running"})
		if err != nil {
			log.Warn("failed to create import log", "error", err)
		}
	}

	started := time.Now()
	imp := importer.New(db, log, uid, *dryRun)
	stats, importErr := imp.Import(ctx, *autoSyncPath)

	if logID != 0 {
		finishLog(ctx, log, db, logID, uid, stats, importErr, time.Since(started))
	}

	printStats(log, stats)
	if importErr != nil {
		log.Error("import failed", "error", importErr)
		os.Exit(1)
	}
	log.Info("import complete", "user", *login)
}

func finishLog(ctx context.Context, log *slog.Logger, db *storage.DB, id int64, uid int, stats *importer.Stats, importErr error, took time.Duration) {
	ms := int(took.Milliseconds())
	entry := storage.ImportLog{
		UserID:          uid,
		Source:          storage.SourceHAEFile,
		Status:          "success",
		MetricsReceived: stats.MetricsReceived,
		SamplesReceived: stats.MetricsReceived,
		SamplesInserted: stats.MetricsInserted,
		DurationMs:      &ms,
	}
	if importErr != nil {
		entry.Status = "error"
		msg := importErr.Error()
		entry.ErrorMessage = &msg
	}
	if err := db.UpdateImportLog(ctx, id, entry); err != nil {
		log.Warn("failed to update import log", "error", err)
	}
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"metrics_received", stats.MetricsReceived,
		"metrics_inserted", stats.MetricsInserted,
		"metrics_duplicated", stats.MetricsDuplicated,
	)
	if len(stats.RejectedMetrics) > 0 {
		log.Info("rejected metrics (not in allowlist)", "metrics", stats.RejectedMetrics)
	}
}
