// Command soelive runs one live voice session for a student support meeting
// and writes the attendance report when it ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/soelive/internal/app"
	"github.com/MrWong99/soelive/internal/config"
	"github.com/MrWong99/soelive/internal/observe"
	"github.com/MrWong99/soelive/internal/report"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	attendancePath := flag.String("attendance", "", "YAML or JSON file with the meeting data (student, class, notes)")
	refine := flag.Bool("refine", false, "rewrite the notes as a formal report using the configured refiners")
	var signatures signatureFlags
	flag.Var(&signatures, "sign", "role=path.png signature image for the printed report; repeatable (roles: responsible, soe, coord, aee, integral)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "soelive: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "soelive: %v\n", err)
		}
		return 1
	}

	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("soelive starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	var attendance report.AttendanceData
	if *attendancePath != "" {
		attendance, err = report.ReadAttendance(*attendancePath)
		if err != nil {
			slog.Error("failed to read attendance data", "err", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "soelive",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if *refine && providers.Refiner == nil {
		slog.Warn("-refine given but no providers.refiners configured; the report keeps the rough notes")
	}

	printStartupSummary(cfg, *refine)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithLogger(logger),
		app.WithLevelVar(&level),
		app.WithAttendance(attendance),
		app.WithSignatures(signatures.data),
		app.WithRefine(*refine),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig, config.WithWatcherLogger(logger))
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go func() { _ = watcher.Run(ctx) }()
	}

	slog.Info("session starting; press Ctrl+C to end it and write the report")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}
	if r, path := application.LastReport(); r != nil {
		fmt.Printf("report %s written to %s\n", r.ID, path)
		if p := application.PrintPath(); p != "" {
			fmt.Printf("printable form: %s\n", p)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

func printStartupSummary(cfg *config.Config, refine bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         soelive: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("S2S", providerLabel(cfg.Providers.S2S))
	printRow("Audio", providerLabel(cfg.Providers.Audio))
	printRow("Voice", cfg.Live.Voice)
	for i, e := range cfg.Providers.Refiners {
		printRow(fmt.Sprintf("Refiner %d", i+1), providerLabel(e))
	}
	if refine {
		printRow("Refine", "on")
	} else {
		printRow("Refine", "off")
	}
	if cfg.Store.PostgresDSN != "" {
		printRow("Store", "postgres")
	} else {
		printRow("Store", "(files only)")
	}
	printRow("Reports", cfg.Report.OutputDir)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func printRow(key, value string) {
	if value == "" {
		value = "(default)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", key, value)
}
