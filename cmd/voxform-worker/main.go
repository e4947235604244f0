package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/orpheus"
	"github.com/voxform-ai/voxform/internal/runtime"
	"github.com/voxform-ai/voxform/internal/stt"
	"github.com/voxform-ai/voxform/internal/tts"
	"github.com/voxform-ai/voxform/internal/worker"
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

	engines, err := buildEngines(cfg, logger)
	if err != nil {
		logger.Error("failed to build synthesis engines", slog.String("error", err.Error()))
		os.Exit(1)
	}
	recognizers, err := buildRecognizers(cfg)
	if err != nil {
		logger.Error("failed to build recognizers", slog.String("error", err.Error()))
		os.Exit(1)
	}

	synthesizer := tts.NewSelector(logger, engines...)
	transcriber := stt.NewSelector(logger, recognizers...)
	logger.Info("speech worker configured",
		slog.Any("engines", synthesizer.Engines()),
		slog.Any("recognizers", transcriber.Recognizers()))

	service := worker.NewService(cfg.Synthesis, synthesizer, transcriber, logger)
	rt := runtime.New(cfg, logger, func(mux *http.ServeMux) {
		service.Register(mux)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// buildEngines assembles the synthesis fallback chain: the local pipeline
// first, the token-streaming engine as fallback.
func buildEngines(cfg config.Config, logger *slog.Logger) ([]tts.Engine, error) {
	var engines []tts.Engine
	if cfg.Synthesis.Local.Enabled {
		local, err := tts.NewLocalEngine(cfg.Synthesis.Local, logger)
		if err != nil {
			return nil, fmt.Errorf("local engine: %w", err)
		}
		engines = append(engines, local)
	}
	if cfg.Synthesis.Stream.Enabled {
		decoder, err := orpheus.NewExecDecoder(cfg.Synthesis.Stream.DecoderCommand, logger)
		if err != nil {
			return nil, fmt.Errorf("stream decoder: %w", err)
		}
		engines = append(engines, orpheus.NewEngine(cfg.Synthesis.Stream, decoder, logger))
	}
	return engines, nil
}

// buildRecognizers assembles the transcription chain: the English-only
// backend first, the multilingual backend as fallback and for every other
// language.
func buildRecognizers(cfg config.Config) ([]stt.Recognizer, error) {
	var recognizers []stt.Recognizer
	if cfg.Transcribe.English.Enabled {
		english, err := stt.NewEnglishRecognizer(cfg.Transcribe.English)
		if err != nil {
			return nil, fmt.Errorf("english recognizer: %w", err)
		}
		recognizers = append(recognizers, english)
	}
	if cfg.Transcribe.Multilingual.Enabled {
		multilingual, err := stt.NewExecRecognizer(cfg.Transcribe.Multilingual)
		if err != nil {
			return nil, fmt.Errorf("multilingual recognizer: %w", err)
		}
		recognizers = append(recognizers, multilingual)
	}
	return recognizers, nil
}
