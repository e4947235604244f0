package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxform-ai/voxform/internal/api"
	"github.com/voxform-ai/voxform/internal/bus"
	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/extract"
	"github.com/voxform-ai/voxform/internal/natsserver"
	"github.com/voxform-ai/voxform/internal/presynth"
	"github.com/voxform-ai/voxform/internal/questionnaire"
	"github.com/voxform-ai/voxform/internal/runtime"
	"github.com/voxform-ai/voxform/internal/store"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "voxform.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedded, err := natsserver.Start(cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to start embedded NATS", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer busClient.Close()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	extractor, err := buildExtractor(cfg, logger)
	if err != nil {
		logger.Error("failed to build extractor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	presynthService := presynth.NewService(ctx, cfg.Presynth, cfg.Store.AudioDir, busClient, st, logger)
	if err := presynthService.Start(); err != nil {
		logger.Error("failed to start presynthesis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer presynthService.Close()

	workerClient := api.NewWorkerClient(cfg.Presynth.WorkerURL)
	apiService := api.NewService(cfg, questionnaire.NewSession(), st, extractor, workerClient, busClient, logger)

	rt := runtime.New(cfg, logger, func(mux *http.ServeMux) {
		apiService.Register(mux)
	}, busClient.Healthy, presynthService.Healthy)

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// buildExtractor wires the document extraction pipeline; returns nil when
// extraction is disabled so uploads report unavailability.
func buildExtractor(cfg config.Config, logger *slog.Logger) (*extract.Extractor, error) {
	if !cfg.Extract.Enabled {
		return nil, nil
	}
	ocr, err := extract.NewExecOCR(cfg.Extract.OCRCommand, cfg.Extract.OCRLanguage, logger)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(cfg.Extract.Endpoint, "/") + "/chat/completions"
	structurer := extract.NewStructureClient(endpoint, cfg.Extract.APIKey, cfg.Extract.Model)
	return extract.NewExtractor(ocr, structurer, logger), nil
}
