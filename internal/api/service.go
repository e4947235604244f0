// Package api exposes the questionnaire platform's HTTP surface: loading
// and extracting questionnaires, the voice session flow, and result export.
package api

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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/extract"
	"github.com/voxform-ai/voxform/internal/presynth"
	"github.com/voxform-ai/voxform/internal/protocol"
	"github.com/voxform-ai/voxform/internal/questionnaire"
	"github.com/voxform-ai/voxform/internal/store"
)

const maxUploadBytes = 64 << 20

// Publisher publishes platform events; nil-able for bus-less deployments.
type Publisher interface {
	PublishJSON(subject string, payload any) error
}

// Worker is the speech worker surface the platform depends on.
type Worker interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
	Transcribe(ctx context.Context, audio io.Reader, filename, language string) (TranscriptionResult, error)
}

// Service wires the session, store, extractor, and worker together behind
// the platform endpoints.
type Service struct {
	cfg       config.Config
	session   *questionnaire.Session
	store     *store.Store
	extractor *extract.Extractor
	worker    Worker
	publisher Publisher
	logger    *slog.Logger

	// sessionDocID is the store id of the questionnaire backing the
	// in-flight session; answers and exports are keyed by it.
	mu           sync.Mutex
	sessionDocID string
}

func (s *Service) docID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionDocID
}

func (s *Service) setDocID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionDocID = id
}

func NewService(cfg config.Config, session *questionnaire.Session, st *store.Store, extractor *extract.Extractor, worker Worker, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		session:   session,
		store:     st,
		extractor: extractor,
		worker:    worker,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "api")),
	}
}

// Register mounts the platform endpoints on mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/questionnaire/load", s.handleLoad)
	mux.HandleFunc("/api/questionnaire/upload-pdf", s.handleUpload)
	mux.HandleFunc("/api/questionnaire/next-question", s.handleNextQuestion)
	mux.HandleFunc("/api/answer/submit", s.handleSubmitAnswer)
	mux.HandleFunc("/api/questionnaire/confirm-answer", s.handleConfirmAnswer)
	mux.HandleFunc("/api/results/export-csv", s.handleExportCSV)
	mux.HandleFunc("/api/audio/", s.handleAudio)
	mux.HandleFunc("/api/state/reset", s.handleReset)
}

type loadRequest struct {
	FileName        string `json:"file_name"`
	QuestionnaireID string `json:"questionnaire_id"`
}

// handleLoad starts a session from a stored questionnaire or a JSON file in
// the questionnaire directory.
func (s *Service) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var doc questionnaire.Questionnaire
	var docID string
	var err error
	switch {
	case req.QuestionnaireID != "":
		doc, err = s.store.LoadQuestionnaire(r.Context(), req.QuestionnaireID)
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, err.Error())
			return
		}
		docID = req.QuestionnaireID
	case req.FileName != "":
		if filepath.Base(req.FileName) != req.FileName {
			writeDetail(w, http.StatusBadRequest, "file_name must not contain path separators")
			return
		}
		path := filepath.Join(s.cfg.Store.QuestionnaireDir, req.FileName)
		doc, err = questionnaire.LoadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("questionnaire file %q not found", req.FileName))
			return
		}
		if err == nil {
			docID, err = s.store.SaveQuestionnaire(r.Context(), doc)
		}
	default:
		writeDetail(w, http.StatusBadRequest, "file_name or questionnaire_id is required")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.session.Load(doc)
	s.setDocID(docID)
	s.requestPresynthesis(docID, doc)
	s.logger.Info("questionnaire session started",
		slog.String("questionnaire_id", docID),
		slog.String("title", doc.Title))

	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Questionnaire loaded successfully.",
		"questionnaire_id": docID,
		"title":            doc.Title,
		"description":      doc.Description,
		"total_questions":  len(doc.Questions),
	})
}

// requestPresynthesis asks the presynthesis service to render any question
// that has no cached recording yet, so later next-question calls hit the
// cache instead of synthesizing on the critical path.
func (s *Service) requestPresynthesis(questionnaireID string, doc questionnaire.Questionnaire) {
	if s.publisher == nil {
		return
	}
	for _, question := range doc.Questions {
		if _, err := os.Stat(presynth.CachePath(s.cfg.Store.AudioDir, questionnaireID, question.ID)); err == nil {
			continue
		}
		event := protocol.SynthesisRequested{
			QuestionnaireID: questionnaireID,
			QuestionID:      question.ID,
			Text:            question.SpokenText(),
			Language:        s.cfg.Presynth.Language,
		}
		if err := s.publisher.PublishJSON(protocol.SubjectSynthesisRequested, event); err != nil {
			s.logger.Warn("failed to request presynthesis",
				slog.String("question_id", question.ID), slogError(err))
		}
	}
}

// handleUpload extracts a questionnaire from an uploaded document, stores
// it, and announces it on the bus for pre-synthesis.
func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.extractor == nil {
		writeDetail(w, http.StatusServiceUnavailable, "document extraction is not configured")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	upload, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer upload.Close()

	docPath := filepath.Join(os.TempDir(), fmt.Sprintf("voxform_doc_%s%s", uuid.NewString(), filepath.Ext(header.Filename)))
	if err := spool(docPath, upload); err != nil {
		s.logger.Error("failed to spool document", slogError(err))
		writeDetail(w, http.StatusInternalServerError, "could not store uploaded document")
		return
	}
	defer os.Remove(docPath)

	doc, err := s.extractor.FromDocument(r.Context(), docPath)
	if err != nil {
		s.logger.Error("extraction failed", slogError(err))
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("extraction failed: %v", err))
		return
	}

	id, err := s.store.SaveQuestionnaire(r.Context(), doc)
	if err != nil {
		s.logger.Error("failed to save extracted questionnaire", slogError(err))
		writeDetail(w, http.StatusInternalServerError, "could not persist questionnaire")
		return
	}

	if s.publisher != nil {
		event := protocol.QuestionnaireExtracted{
			QuestionnaireID: id,
			Title:           doc.Title,
			QuestionCount:   len(doc.Questions),
			Languages:       []string{s.cfg.Presynth.Language},
			Timestamp:       time.Now().UTC(),
		}
		if err := s.publisher.PublishJSON(protocol.SubjectQuestionnaireExtracted, event); err != nil {
			s.logger.Warn("failed to publish extracted event", slogError(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Questionnaire extracted successfully.",
		"questionnaire_id": id,
		"title":            doc.Title,
		"total_questions":  len(doc.Questions),
	})
}

func (s *Service) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.session.Loaded() {
		writeDetail(w, http.StatusBadRequest, "No questionnaire loaded.")
		return
	}

	next, err := s.session.Next()
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if next.Completed {
		writeJSON(w, http.StatusOK, map[string]any{
			"completed": true,
			"message":   "Questionnaire complete.",
		})
		return
	}

	q := next.Question
	audioURL, err := s.questionAudio(r.Context(), q)
	if err != nil {
		s.logger.Error("question audio unavailable",
			slog.String("question_id", q.ID), slogError(err))
		writeDetail(w, http.StatusServiceUnavailable, "speech synthesis unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"question_id":     q.ID,
		"question_text":   q.Text,
		"question_number": next.QuestionNumber,
		"total_questions": next.TotalQuestions,
		"audio_url":       audioURL,
		"options_text":    q.OptionsText,
		"question_type":   q.Type,
		"min_value":       q.MinValue,
		"max_value":       q.MaxValue,
		"completed":       false,
	})
}

// questionAudio returns the URL of the question's recording, serving the
// pre-synthesized cache when possible and falling back to the worker.
func (s *Service) questionAudio(ctx context.Context, q questionnaire.Question) (string, error) {
	cached := presynth.CachePath(s.cfg.Store.AudioDir, s.docID(), q.ID)
	if _, err := os.Stat(cached); err == nil {
		return "/api/audio/" + filepath.Base(cached), nil
	}

	if s.worker == nil {
		return "", errors.New("no synthesis backend configured")
	}
	audio, err := s.worker.Synthesize(ctx, q.SpokenText(), s.cfg.Presynth.Language)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.cfg.Store.AudioDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(cached, audio, 0o644); err != nil {
		return "", err
	}
	return "/api/audio/" + filepath.Base(cached), nil
}

// handleSubmitAnswer transcribes a recorded answer and parses it against
// the active question. Unparseable answers are not errors; the client
// re-prompts using the returned message.
func (s *Service) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	current, err := s.session.Current()
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "No active question to answer.")
		return
	}
	if s.worker == nil {
		writeDetail(w, http.StatusServiceUnavailable, "transcription unavailable")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	upload, header, err := r.FormFile("audio_file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer upload.Close()

	result, err := s.worker.Transcribe(r.Context(), upload, header.Filename, s.cfg.Presynth.Language)
	if err != nil {
		s.logger.Error("transcription failed", slogError(err))
		writeDetail(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	parsed := questionnaire.ParseAnswer(result.Transcription, current)
	writeJSON(w, http.StatusOK, map[string]any{
		"transcription": result.Transcription,
		"parsed_value":  parsed.Value,
		"value_found":   parsed.ValueFound,
		"error_message": parsed.Message,
	})
}

func (s *Service) handleConfirmAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var answer questionnaire.Answer
	if err := json.NewDecoder(r.Body).Decode(&answer); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed answer payload")
		return
	}

	confirmed, err := s.session.Confirm(answer)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if id := s.docID(); id != "" {
		if err := s.store.RecordAnswer(r.Context(), id, confirmed); err != nil {
			s.logger.Error("failed to persist answer", slogError(err))
			writeDetail(w, http.StatusInternalServerError, "could not persist answer")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Answer confirmed and saved.",
		"answer":  confirmed,
	})
}

func (s *Service) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := s.docID()
	if id == "" {
		writeDetail(w, http.StatusBadRequest, "No answers to export.")
		return
	}
	csvContent, err := s.store.ExportCSV(r.Context(), id)
	if err != nil {
		s.logger.Error("csv export failed", slogError(err))
		writeDetail(w, http.StatusInternalServerError, "export failed")
		return
	}
	if strings.Count(csvContent, "\n") <= 1 {
		writeDetail(w, http.StatusBadRequest, "No answers to export.")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=questionnaire_results.csv")
	_, _ = io.WriteString(w, csvContent)
}

func (s *Service) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/audio/")
	if name == "" || filepath.Base(name) != name {
		writeDetail(w, http.StatusBadRequest, "invalid audio file name")
		return
	}
	path := filepath.Join(s.cfg.Store.AudioDir, name)
	if _, err := os.Stat(path); err != nil {
		writeDetail(w, http.StatusNotFound, "Audio file not found.")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	s.setDocID("")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Application state reset."})
}

func spool(path string, src io.Reader) error {
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
