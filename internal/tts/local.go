package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/voxform-ai/voxform/internal/audio"
	"github.com/voxform-ai/voxform/internal/config"
)

// LocalEngine drives the self-contained neural pipeline. The pipeline runs
// as an external process: one JSON request on stdin, one JSON line per
// emitted audio segment on stdout. All segments are collected and written as
// a single artifact; this engine never streams incrementally.
type LocalEngine struct {
	cmd    []string
	cfg    config.LocalTTSConfig
	logger *slog.Logger
	mu     sync.Mutex
}

type pipelineRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	LangCode     string  `json:"lang_code"`
	Speed        float64 `json:"speed"`
	SplitPattern string  `json:"split_pattern"`
	SampleRate   int     `json:"sample_rate"`
}

type pipelineSegment struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewLocalEngine(cfg config.LocalTTSConfig, logger *slog.Logger) (*LocalEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse local pipeline command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("local pipeline command empty")
	}
	return &LocalEngine{
		cmd:    args,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "tts-local")),
	}, nil
}

func (e *LocalEngine) Name() string { return "local" }

func (e *LocalEngine) Supports(language string) bool {
	_, ok := e.cfg.Languages[strings.ToLower(language)]
	return ok
}

// Synthesize invokes the pipeline once and concatenates every emitted
// segment in emission order. The pipeline process is not reentrant, so
// invocations are serialized.
func (e *LocalEngine) Synthesize(ctx context.Context, req Request, outputPath string) (Artifact, error) {
	voice, ok := e.cfg.Languages[strings.ToLower(req.Language)]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %q", ErrLanguageUnsupported, req.Language)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	payload := pipelineRequest{
		Text:         req.Text,
		Voice:        voice.Voice,
		LangCode:     voice.PipelineCode,
		Speed:        e.cfg.Speed,
		SplitPattern: e.cfg.SplitPattern,
		SampleRate:   e.cfg.SampleRate,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal pipeline request: %w", err)
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Artifact{}, fmt.Errorf("pipeline stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Artifact{}, fmt.Errorf("pipeline stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Artifact{}, fmt.Errorf("start pipeline: %w", err)
	}

	if _, err := stdin.Write(data); err != nil {
		_ = cmd.Wait()
		return Artifact{}, fmt.Errorf("write pipeline request: %w", err)
	}
	stdin.Close()

	var samples []int
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	segment := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var seg pipelineSegment
		if err := json.Unmarshal(line, &seg); err != nil {
			e.logger.Warn("skipping malformed pipeline segment",
				slog.Int("segment", segment), slog.String("error", err.Error()))
			segment++
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(seg.PCMBase64)
		if err != nil {
			e.logger.Warn("skipping undecodable pipeline segment",
				slog.Int("segment", segment), slog.String("error", err.Error()))
			segment++
			continue
		}
		if len(pcm) == 0 {
			segment++
			continue
		}
		decoded, err := audio.DecodePCM(pcm)
		if err != nil {
			e.logger.Warn("skipping unaligned pipeline segment",
				slog.Int("segment", segment), slog.String("error", err.Error()))
			segment++
			continue
		}
		samples = append(samples, decoded...)
		segment++
	}
	if err := cmd.Wait(); err != nil {
		return Artifact{}, fmt.Errorf("pipeline failed: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return Artifact{}, fmt.Errorf("read pipeline output: %w", err)
	}
	if len(samples) == 0 {
		return Artifact{}, fmt.Errorf("local pipeline: %w", ErrNoAudio)
	}

	if err := audio.WriteSamples(outputPath, samples, e.cfg.SampleRate); err != nil {
		return Artifact{}, fmt.Errorf("write local artifact: %w", err)
	}
	return Artifact{Path: outputPath, SampleRate: e.cfg.SampleRate}, nil
}
