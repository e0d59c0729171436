package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claude/cyclesense/internal/analysis"
	"github.com/claude/cyclesense/internal/config"
	"github.com/claude/cyclesense/internal/ingest/wearable"
	"github.com/claude/cyclesense/internal/models"
)

func main() {
	configPath := flag.String("config", "", "optional config file for cycle settings")
	baseline := flag.Float64("baseline", 0, "baseline temperature in °C (0 derives it from the readings)")
	merge := flag.Bool("merge", true, "merge adjacent phases of the same stage")
	tz := flag.String("tz", "UTC", "IANA time zone of the export timestamps")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: cyclesense-analyze [-baseline 36.5] [-merge=false] [-tz Europe/Berlin] export.csv\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cycleCfg := config.DefaultCycleConfig()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cycleCfg = cfg.Cycle
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Error("invalid time zone", "tz", *tz, "error", err)
		os.Exit(1)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Error("failed to open export", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	records, skipped, err := wearable.Parse(f, loc)
	if err != nil {
		log.Error("failed to parse export", "error", err)
		os.Exit(1)
	}
	if skipped > 0 {
		log.Warn("skipped unparseable lines", "count", skipped)
	}

	samples := make([]models.CycleSample, len(records))
	for i, r := range records {
		samples[i] = models.CycleSample{Time: r.Time, Temperature: r.TemperatureC, HRVMs: r.HRVMs}
	}
	readings, rejected := analysis.ReadingsFromSamples(samples)

	svc, err := analysis.New(nil, nil, cycleCfg, log)
	if err != nil {
		log.Error("invalid cycle config", "error", err)
		os.Exit(1)
	}

	var base *float64
	if *baseline > 0 {
		base = baseline
	}
	res, err := svc.Analyze(readings, base, *merge)
	if err != nil {
		log.Error("analysis failed", "error", err)
		os.Exit(1)
	}
	res.Rejected = rejected

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Error("failed to encode result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
