package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/voxform-ai/voxform/internal/config"
)

// englishRecognizer wraps an English-only model that is faster and more
// accurate than the multilingual one for its single language. It never
// detects languages, so results carry "en" with full confidence.
type englishRecognizer struct {
	cmd []string
	cfg config.RecognizerConfig
	mu  sync.Mutex
}

type englishResult struct {
	Text string `json:"text"`
}

func NewEnglishRecognizer(cfg config.RecognizerConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	return &englishRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *englishRecognizer) Name() string { return "english" }

func (r *englishRecognizer) Supports(language string) bool { return language == "en" }

func (r *englishRecognizer) Transcribe(ctx context.Context, audioPath string, _ string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.cmd[0]
	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", audioPath)
	if r.cfg.ModelPath != "" {
		args = append(args, "--model", r.cfg.ModelPath)
	}

	command := exec.CommandContext(ctx, base, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("recognizer command failed: %w: %s", err, stderr.String())
	}

	var resp englishResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode recognizer response: %w", err)
	}
	return Result{Text: resp.Text, Language: "en", LanguageProbability: 1.0}, nil
}
