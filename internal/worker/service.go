// Package worker exposes the speech worker HTTP surface: speech synthesis
// with engine fallback and answer transcription.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/stt"
	"github.com/voxform-ai/voxform/internal/tts"
)

const maxUploadBytes = 64 << 20

// Service handles synthesis and transcription requests. Both operations are
// stateless: every request gets its own scratch file which is removed once
// the response is written.
type Service struct {
	cfg         config.SynthesisConfig
	synthesizer *tts.Selector
	transcriber *stt.Selector
	logger      *slog.Logger

	synthCount metric.Int64Counter
	transCount metric.Int64Counter
}

func NewService(cfg config.SynthesisConfig, synthesizer *tts.Selector, transcriber *stt.Selector, logger *slog.Logger) *Service {
	meter := otel.Meter("voxform/worker")
	synthCount, _ := meter.Int64Counter("voxform_synthesize_requests_total",
		metric.WithDescription("Synthesis requests by outcome"))
	transCount, _ := meter.Int64Counter("voxform_transcribe_requests_total",
		metric.WithDescription("Transcription requests by outcome"))
	return &Service{
		cfg:         cfg,
		synthesizer: synthesizer,
		transcriber: transcriber,
		logger:      logger.With(slog.String("component", "worker")),
		synthCount:  synthCount,
		transCount:  transCount,
	}
}

// Register mounts the worker endpoints on mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("/synthesize-speech", s.handleSynthesize)
	mux.HandleFunc("/transcribe-audio", s.handleTranscribe)
}

func (s *Service) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeDetail(w, http.StatusBadRequest, "malformed form data")
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))
	language := strings.ToLower(strings.TrimSpace(r.FormValue("language")))
	if text == "" {
		s.recordSynth(r.Context(), language, "bad_request")
		writeDetail(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	if language == "" {
		language = "en"
	}

	outputPath := filepath.Join(s.tempDir(), fmt.Sprintf("voxform_tts_%s.wav", uuid.NewString()))
	defer os.Remove(outputPath)

	artifact, attempts, err := s.synthesizer.Synthesize(r.Context(), tts.Request{Text: text, Language: language}, outputPath)
	if err != nil {
		status, outcome := synthesisStatus(err)
		s.recordSynth(r.Context(), language, outcome)
		s.logger.Error("synthesis failed",
			slog.String("language", language),
			slog.Int("attempts", len(attempts)),
			slog.String("error", err.Error()))
		writeDetail(w, status, synthesisDetail(err, language))
		return
	}

	s.recordSynth(r.Context(), language, "ok")
	s.logger.Info("synthesis complete",
		slog.String("language", language),
		slog.Int("attempts", len(attempts)),
		slog.Int("sample_rate", artifact.SampleRate))

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s.wav", uuid.NewString()))
	http.ServeFile(w, r, artifact.Path)
}

func (s *Service) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	language := strings.ToLower(strings.TrimSpace(r.FormValue("language")))

	upload, header, err := r.FormFile("audio_file")
	if err != nil {
		s.recordTrans(r.Context(), language, "bad_request")
		writeDetail(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer upload.Close()

	audioPath := filepath.Join(s.tempDir(), fmt.Sprintf("voxform_stt_%s%s", uuid.NewString(), uploadExt(header.Filename)))
	if err := saveUpload(audioPath, upload); err != nil {
		s.recordTrans(r.Context(), language, "error")
		s.logger.Error("failed to spool upload", slog.String("error", err.Error()))
		writeDetail(w, http.StatusInternalServerError, "could not store uploaded audio")
		return
	}
	defer os.Remove(audioPath)

	result, err := s.transcriber.Transcribe(r.Context(), audioPath, language)
	if err != nil {
		status, outcome := transcriptionStatus(err)
		s.recordTrans(r.Context(), language, outcome)
		s.logger.Error("transcription failed",
			slog.String("language", language),
			slog.String("error", err.Error()))
		writeDetail(w, status, "transcription failed")
		return
	}

	s.recordTrans(r.Context(), language, "ok")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"transcription":        result.Text,
		"language":             result.Language,
		"language_probability": result.LanguageProbability,
	})
}

func (s *Service) tempDir() string {
	if s.cfg.TempDir != "" {
		return s.cfg.TempDir
	}
	return os.TempDir()
}

func (s *Service) recordSynth(ctx context.Context, language, outcome string) {
	s.synthCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("outcome", outcome)))
}

func (s *Service) recordTrans(ctx context.Context, language, outcome string) {
	s.transCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("outcome", outcome)))
}

func synthesisStatus(err error) (int, string) {
	switch {
	case errors.Is(err, tts.ErrLanguageUnsupported):
		return http.StatusBadRequest, "unsupported_language"
	case errors.Is(err, tts.ErrNoEngines):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func synthesisDetail(err error, language string) string {
	switch {
	case errors.Is(err, tts.ErrLanguageUnsupported):
		return fmt.Sprintf("language %q is not supported", language)
	case errors.Is(err, tts.ErrNoEngines):
		return "no speech synthesis engines available"
	default:
		return "speech synthesis failed"
	}
}

func transcriptionStatus(err error) (int, string) {
	if errors.Is(err, stt.ErrNoRecognizers) {
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "error"
}

func uploadExt(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ".wav"
	}
	return ext
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
