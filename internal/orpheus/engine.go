package orpheus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/voxform-ai/voxform/internal/audio"
	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/tts"
)

// Engine adapts the streaming client, token assembler, and codec to the
// synthesis engine contract. The caller only ever sees a finished artifact:
// the WAV file is fully written and finalized before Synthesize returns.
type Engine struct {
	cfg     config.StreamTTSConfig
	client  *Client
	decoder Decoder
	logger  *slog.Logger
}

func NewEngine(cfg config.StreamTTSConfig, decoder Decoder, logger *slog.Logger) *Engine {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Engine{
		cfg:     cfg,
		client:  NewClient(cfg.StreamURL(), timeout, logger),
		decoder: decoder,
		logger:  logger.With(slog.String("component", "tts-stream")),
	}
}

func (e *Engine) Name() string { return "stream" }

func (e *Engine) Supports(language string) bool {
	_, ok := e.cfg.Languages[strings.ToLower(language)]
	return ok
}

func (e *Engine) Synthesize(ctx context.Context, req tts.Request, outputPath string) (tts.Artifact, error) {
	voice, ok := e.cfg.Languages[strings.ToLower(req.Language)]
	if !ok {
		return tts.Artifact{}, fmt.Errorf("%w: %q", tts.ErrLanguageUnsupported, req.Language)
	}

	writer, err := audio.NewWriter(outputPath, voice.SampleRate)
	if err != nil {
		return tts.Artifact{}, err
	}

	params := GenerationParams{
		Model:             voice.Model,
		Voice:             voice.Voice,
		Temperature:       voice.Temperature,
		TopP:              voice.TopP,
		MaxTokens:         voice.MaxTokens,
		RepetitionPenalty: voice.RepetitionPenalty,
	}
	assembler := NewAssembler(e.decoder, writer, e.logger)

	streamErr := e.client.StreamTokens(ctx, params, req.Text, func(fragment string) error {
		return assembler.Consume(ctx, fragment)
	})
	closeErr := writer.Close()

	if streamErr != nil {
		// A partial artifact is a hard failure; whatever was written is gone.
		_ = os.Remove(outputPath)
		return tts.Artifact{}, fmt.Errorf("token stream: %w", streamErr)
	}
	if closeErr != nil {
		_ = os.Remove(outputPath)
		return tts.Artifact{}, closeErr
	}
	if writer.Frames() == 0 {
		_ = os.Remove(outputPath)
		return tts.Artifact{}, fmt.Errorf("stream engine: %w", tts.ErrNoAudio)
	}

	e.logger.Info("stream synthesis complete",
		slog.Int("accepted_tokens", assembler.Accepted()),
		slog.Int("decodes", assembler.Decodes()),
		slog.Int("frames", writer.Frames()))
	return tts.Artifact{Path: outputPath, SampleRate: voice.SampleRate}, nil
}
