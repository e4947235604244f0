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

// execRecognizer shells out to a multilingual recognition model. The process
// receives the audio path and an optional language hint as flags and prints
// one JSON object on stdout. Model inference is not reentrant, so calls are
// serialized.
type execRecognizer struct {
	cmd []string
	cfg config.RecognizerConfig
	mu  sync.Mutex
}

type execResult struct {
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

func NewExecRecognizer(cfg config.RecognizerConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Name() string { return "multilingual" }

// Supports always reports true: the multilingual model takes any hint and
// falls back to automatic detection without one.
func (r *execRecognizer) Supports(string) bool { return true }

func (r *execRecognizer) Transcribe(ctx context.Context, audioPath string, language string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.cmd[0]
	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", audioPath)
	if r.cfg.ModelPath != "" {
		args = append(args, "--model", r.cfg.ModelPath)
	}
	if language != "" {
		args = append(args, "--language", language)
	} else {
		args = append(args, "--language", "auto")
	}

	command := exec.CommandContext(ctx, base, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("recognizer command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode recognizer response: %w", err)
	}
	result := Result{
		Text:                resp.Text,
		Language:            resp.Language,
		LanguageProbability: resp.LanguageProbability,
	}
	// With an explicit hint the model skips detection; report the hint back
	// with full confidence so clients see a consistent shape.
	if language != "" && result.Language == "" {
		result.Language = language
		result.LanguageProbability = 1.0
	}
	return result, nil
}
