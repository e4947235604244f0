package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/presynth"
	"github.com/voxform-ai/voxform/internal/protocol"
	"github.com/voxform-ai/voxform/internal/questionnaire"
	"github.com/voxform-ai/voxform/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWorker struct {
	audio         []byte
	synthErr      error
	transcription TranscriptionResult
	transErr      error
	synthCalls    int
}

func (f *fakeWorker) Synthesize(context.Context, string, string) ([]byte, error) {
	f.synthCalls++
	return f.audio, f.synthErr
}

func (f *fakeWorker) Transcribe(context.Context, io.Reader, string, string) (TranscriptionResult, error) {
	return f.transcription, f.transErr
}

type publishedEvent struct {
	subject string
	payload any
}

type fakePublisher struct {
	events []publishedEvent
}

func (f *fakePublisher) PublishJSON(subject string, payload any) error {
	f.events = append(f.events, publishedEvent{subject: subject, payload: payload})
	return nil
}

const sampleQuestionnaire = `{
	"title": "KIDSCREEN-10",
	"description": "Fragen zu deinem Wohlbefinden.",
	"questions": [
		{"id": "Q1", "text": "Hast du dich fit gefühlt?", "type": "scale", "min_value": 1, "max_value": 5,
		 "options_text": "Bitte antworte mit einer Zahl zwischen 1 und 5."},
		{"id": "Q2", "text": "Hast du Geschwister?", "type": "boolean_custom_map",
		 "true_value_spoken": ["ja"], "true_value_numeric": 1,
		 "false_value_spoken": ["nein"], "false_value_numeric": 0}
	]
}`

type fixture struct {
	server    *httptest.Server
	worker    *fakeWorker
	publisher *fakePublisher
	cfg       config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "voxform.db")
	cfg.Store.QuestionnaireDir = filepath.Join(dir, "questionnaires")
	cfg.Store.AudioDir = filepath.Join(dir, "audio")
	if err := os.MkdirAll(cfg.Store.QuestionnaireDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Store.QuestionnaireDir, "example.json"), []byte(sampleQuestionnaire), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(context.Background(), cfg.Store, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	worker := &fakeWorker{audio: []byte("RIFFfake-wav")}
	publisher := &fakePublisher{}
	service := NewService(cfg, questionnaire.NewSession(), st, nil, worker, publisher, testLogger())
	mux := http.NewServeMux()
	service.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &fixture{server: server, worker: worker, publisher: publisher, cfg: cfg}
}

func (f *fixture) postJSON(t *testing.T, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func (f *fixture) load(t *testing.T) map[string]any {
	t.Helper()
	resp := f.postJSON(t, "/api/questionnaire/load", map[string]string{"file_name": "example.json"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load status = %d", resp.StatusCode)
	}
	return decode(t, resp)
}

func TestLoadQuestionnaire(t *testing.T) {
	f := newFixture(t)
	payload := f.load(t)
	if payload["title"] != "KIDSCREEN-10" || payload["total_questions"] != float64(2) {
		t.Fatalf("payload = %+v", payload)
	}
	if payload["questionnaire_id"] == "" {
		t.Fatal("no questionnaire id assigned")
	}
}

func TestLoadRequestsPresynthesisForUncachedQuestions(t *testing.T) {
	f := newFixture(t)
	payload := f.load(t)
	docID, _ := payload["questionnaire_id"].(string)

	if len(f.publisher.events) != 2 {
		t.Fatalf("published %d events, want 2", len(f.publisher.events))
	}
	for _, event := range f.publisher.events {
		if event.subject != protocol.SubjectSynthesisRequested {
			t.Errorf("subject = %q", event.subject)
		}
	}
	first, ok := f.publisher.events[0].payload.(protocol.SynthesisRequested)
	if !ok {
		t.Fatalf("payload type = %T", f.publisher.events[0].payload)
	}
	if first.QuestionnaireID != docID || first.QuestionID != "Q1" {
		t.Errorf("first request = %+v", first)
	}
	if first.Text != "Hast du dich fit gefühlt? Bitte antworte mit einer Zahl zwischen 1 und 5." {
		t.Errorf("text = %q", first.Text)
	}

	// Cached questions are skipped on reload.
	if err := os.MkdirAll(f.cfg.Store.AudioDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(presynth.CachePath(f.cfg.Store.AudioDir, docID, "Q1"), []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.publisher.events = nil
	resp := f.postJSON(t, "/api/questionnaire/load", map[string]string{"questionnaire_id": docID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d", resp.StatusCode)
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("published %d events after caching Q1, want 1", len(f.publisher.events))
	}
	second, _ := f.publisher.events[0].payload.(protocol.SynthesisRequested)
	if second.QuestionID != "Q2" {
		t.Errorf("request = %+v", second)
	}
}

func TestLoadMissingFile(t *testing.T) {
	f := newFixture(t)
	resp := f.postJSON(t, "/api/questionnaire/load", map[string]string{"file_name": "nope.json"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	f := newFixture(t)
	resp := f.postJSON(t, "/api/questionnaire/load", map[string]string{"file_name": "../secrets.json"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNextQuestionFlow(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	first := decode(t, f.get(t, "/api/questionnaire/next-question"))
	if first["question_id"] != "Q1" || first["question_number"] != float64(1) {
		t.Fatalf("first = %+v", first)
	}
	audioURL, _ := first["audio_url"].(string)
	if !strings.HasPrefix(audioURL, "/api/audio/") {
		t.Fatalf("audio_url = %q", audioURL)
	}
	if f.worker.synthCalls != 1 {
		t.Fatalf("worker synth calls = %d", f.worker.synthCalls)
	}

	// The recording is cached, so serving it does not hit the worker again.
	audio := f.get(t, audioURL)
	if audio.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", audio.StatusCode)
	}
	body, _ := io.ReadAll(audio.Body)
	if string(body) != "RIFFfake-wav" {
		t.Fatalf("audio body = %q", body)
	}

	second := decode(t, f.get(t, "/api/questionnaire/next-question"))
	if second["question_id"] != "Q2" {
		t.Fatalf("second = %+v", second)
	}
	done := decode(t, f.get(t, "/api/questionnaire/next-question"))
	if done["completed"] != true {
		t.Fatalf("done = %+v", done)
	}
}

func TestNextQuestionWithoutQuestionnaire(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/api/questionnaire/next-question")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNextQuestionSynthesisUnavailable(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.worker.synthErr = errors.New("no engines")

	resp := f.get(t, "/api/questionnaire/next-question")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func submitAudio(t *testing.T, f *fixture) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("audio_file", "answer.webm")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("fake-recording"))
	_ = form.Close()

	resp, err := http.Post(f.server.URL+"/api/answer/submit", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /api/answer/submit: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSubmitAnswerParsesTranscription(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.get(t, "/api/questionnaire/next-question")
	f.worker.transcription = TranscriptionResult{Transcription: "ich sage vier", Language: "de", LanguageProbability: 0.97}

	resp := submitAudio(t, f)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decode(t, resp)
	if payload["value_found"] != true || payload["parsed_value"] != float64(4) {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSubmitAnswerWithoutActiveQuestion(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	resp := submitAudio(t, f)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConfirmAnswerAndExportCSV(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.get(t, "/api/questionnaire/next-question")

	resp := f.postJSON(t, "/api/questionnaire/confirm-answer", questionnaire.Answer{
		QuestionID:          "Q1",
		QuestionText:        "Hast du dich fit gefühlt?",
		TranscribedResponse: "ich sage vier",
		ParsedValue:         4,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d", resp.StatusCode)
	}

	export := f.get(t, "/api/results/export-csv")
	if export.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", export.StatusCode)
	}
	if ct := export.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(export.Body)
	if !strings.Contains(string(body), "Q1") || !strings.Contains(string(body), ",4,true") {
		t.Fatalf("csv = %q", body)
	}
}

func TestConfirmAnswerWrongQuestion(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.get(t, "/api/questionnaire/next-question")

	resp := f.postJSON(t, "/api/questionnaire/confirm-answer", questionnaire.Answer{QuestionID: "Q2"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestExportCSVWithoutAnswers(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	resp := f.get(t, "/api/results/export-csv")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.get(t, "/api/questionnaire/next-question")

	resp := f.get(t, "/api/state/reset")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	next := f.get(t, "/api/questionnaire/next-question")
	if next.StatusCode != http.StatusBadRequest {
		t.Fatalf("status after reset = %d, want 400", next.StatusCode)
	}
}

func TestAudioNotFound(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/api/audio/missing.wav")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUploadWithoutExtractor(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, _ := form.CreateFormFile("file", "doc.pdf")
	_, _ = part.Write([]byte("%PDF-1.4"))
	_ = form.Close()

	resp, err := http.Post(f.server.URL+"/api/questionnaire/upload-pdf", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
