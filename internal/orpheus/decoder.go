package orpheus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecDecoder shells out to the paired codec binary for each decode window:
// one JSON request on stdin, one JSON object with base64 PCM on stdout. The
// codec process is loaded fresh per invocation and is not reentrant, so
// calls are serialized.
type ExecDecoder struct {
	cmd    []string
	logger *slog.Logger
	mu     sync.Mutex
}

type decodeRequest struct {
	Tokens []int `json:"tokens"`
	Count  int   `json:"count"`
}

type decodeResponse struct {
	PCMBase64 string `json:"pcm_base64"`
}

func NewExecDecoder(command string, logger *slog.Logger) (*ExecDecoder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("decoder command empty")
	}
	return &ExecDecoder{
		cmd:    args,
		logger: logger.With(slog.String("component", "stream-decoder")),
	}, nil
}

func (d *ExecDecoder) Decode(ctx context.Context, window []int, count int) ([]byte, error) {
	if len(window) != windowSize {
		return nil, fmt.Errorf("decoder requires exactly %d tokens, got %d", windowSize, len(window))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	payload, err := json.Marshal(decodeRequest{Tokens: window, Count: count})
	if err != nil {
		return nil, fmt.Errorf("marshal decode request: %w", err)
	}

	base := d.cmd[0]
	args := append([]string{}, d.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decoder failed: %w: %s", err, stderr.String())
	}

	var resp decodeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode codec response: %w", err)
	}
	if resp.PCMBase64 == "" {
		return nil, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return nil, fmt.Errorf("decode codec payload: %w", err)
	}
	return pcm, nil
}
