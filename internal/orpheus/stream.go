package orpheus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Prompt sentinel markers expected by the inference server.
const (
	promptStart  = "<|audio|>"
	promptEnd    = "<|eot_id|>"
	ssePrefix    = "data: "
	doneSentinel = "[DONE]"
)

// GenerationParams carries the per-language sampling configuration sent with
// every completion request.
type GenerationParams struct {
	Model             string
	Voice             string
	Temperature       float64
	TopP              float64
	MaxTokens         int
	RepetitionPenalty float64
}

// Client streams completion fragments from the inference server. The stream
// is finite and non-restartable: one POST, one pass over the SSE body.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "stream-client")),
	}
}

type completionRequest struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Stream            bool    `json:"stream"`
}

type completionChunk struct {
	Choices []struct {
		Text  string `json:"text"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// FormatPrompt wraps "{voice}: {text}" in the sentinel markers.
func FormatPrompt(text, voice string) string {
	return promptStart + voice + ": " + text + promptEnd
}

// StreamTokens issues one streaming completion request and hands every
// received text fragment to consumer in arrival order. Malformed data lines
// are logged and skipped; the stream ends on the done sentinel or body
// closure. A request-time failure returns an error with zero fragments
// delivered.
func (c *Client) StreamTokens(ctx context.Context, params GenerationParams, text string, consumer func(fragment string) error) error {
	payload := completionRequest{
		Model:             params.Model,
		Prompt:            FormatPrompt(text, params.Voice),
		MaxTokens:         params.MaxTokens,
		Temperature:       params.Temperature,
		TopP:              params.TopP,
		RepetitionPenalty: params.RepetitionPenalty,
		Stream:            true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("inference server returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := line[len(ssePrefix):]
		if strings.TrimSpace(data) == doneSentinel {
			break
		}
		var chunk completionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("skipping malformed stream line", slog.String("error", err.Error()))
			continue
		}
		fragment := fragmentFromChunk(chunk)
		if fragment == "" {
			continue
		}
		if err := consumer(fragment); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read token stream: %w", err)
	}
	return nil
}

// fragmentFromChunk accepts both chat-style delta payloads and plain
// completion text payloads.
func fragmentFromChunk(chunk completionChunk) string {
	if len(chunk.Choices) == 0 {
		return ""
	}
	if content := chunk.Choices[0].Delta.Content; content != "" {
		return content
	}
	return chunk.Choices[0].Text
}
