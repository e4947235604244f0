package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WorkerClient talks to the speech worker's HTTP endpoints.
type WorkerClient struct {
	baseURL    string
	httpClient *http.Client
}

// TranscriptionResult mirrors the worker's transcription response.
type TranscriptionResult struct {
	Transcription       string  `json:"transcription"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

func NewWorkerClient(baseURL string) *WorkerClient {
	return &WorkerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 150 * time.Second},
	}
}

// Synthesize renders text to a WAV payload.
func (c *WorkerClient) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	var body strings.Builder
	form := multipart.NewWriter(&body)
	if err := form.WriteField("text", text); err != nil {
		return nil, err
	}
	if err := form.WriteField("language", language); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize-speech", strings.NewReader(body.String()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worker synthesis request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("worker synthesis returned status %s: %s", resp.Status, detail)
	}
	return io.ReadAll(resp.Body)
}

// Transcribe sends recorded audio to the worker and returns the transcript.
func (c *WorkerClient) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (TranscriptionResult, error) {
	var body strings.Builder
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("audio_file", filename)
	if err != nil {
		return TranscriptionResult{}, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return TranscriptionResult{}, err
	}
	if err := form.WriteField("language", language); err != nil {
		return TranscriptionResult{}, err
	}
	if err := form.Close(); err != nil {
		return TranscriptionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe-audio", strings.NewReader(body.String()))
	if err != nil {
		return TranscriptionResult{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("worker transcription request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return TranscriptionResult{}, fmt.Errorf("worker transcription returned status %s: %s", resp.Status, detail)
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return TranscriptionResult{}, fmt.Errorf("decode transcription response: %w", err)
	}
	return result, nil
}
