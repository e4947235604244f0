package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxform-ai/voxform/internal/config"
	"github.com/voxform-ai/voxform/internal/questionnaire"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func intPtr(v int) *int { return &v }

func sampleDoc() questionnaire.Questionnaire {
	return questionnaire.Questionnaire{
		Title:       "KIDSCREEN-10",
		Description: "Fragen zu deinem Wohlbefinden.",
		Questions: []questionnaire.Question{
			{ID: "Q1", Text: "Wie oft hast du dich fit gefühlt?", Type: questionnaire.TypeScale, MinValue: intPtr(1), MaxValue: intPtr(5)},
			{ID: "Q2", Text: "Hast du Geschwister?", Type: questionnaire.TypeBooleanCustomMap, TrueValueSpoken: []string{"ja"}, TrueValueNumeric: 1},
		},
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "voxform.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadQuestionnaire(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.SaveQuestionnaire(ctx, sampleDoc())
	if err != nil {
		t.Fatalf("save questionnaire: %v", err)
	}
	if id == "" {
		t.Fatal("empty questionnaire id")
	}

	doc, err := s.LoadQuestionnaire(ctx, id)
	if err != nil {
		t.Fatalf("load questionnaire: %v", err)
	}
	if doc.Title != "KIDSCREEN-10" || len(doc.Questions) != 2 {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Questions[0].ID != "Q1" || doc.Questions[1].ID != "Q2" {
		t.Fatalf("question order lost: %+v", doc.Questions)
	}
	if doc.Questions[0].MinValue == nil || *doc.Questions[0].MinValue != 1 {
		t.Fatalf("scale bounds lost: %+v", doc.Questions[0])
	}
}

func TestLoadMissingQuestionnaire(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadQuestionnaire(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveRejectsInvalidDocument(t *testing.T) {
	s := openStore(t)
	_, err := s.SaveQuestionnaire(context.Background(), questionnaire.Questionnaire{Title: "empty"})
	if err == nil {
		t.Fatal("questionnaire without questions saved")
	}
}

func TestListQuestionnaires(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.SaveQuestionnaire(ctx, sampleDoc()); err != nil {
		t.Fatalf("save: %v", err)
	}
	infos, err := s.ListQuestionnaires(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d questionnaires", len(infos))
	}
	if infos[0].Title != "KIDSCREEN-10" || infos[0].QuestionCount != 2 {
		t.Fatalf("info = %+v", infos[0])
	}
}

func TestRecordAnswerAndExportCSV(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.SaveQuestionnaire(ctx, sampleDoc())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.RecordAnswer(ctx, id, questionnaire.Answer{
		QuestionID: "Q1", QuestionText: "Wie oft hast du dich fit gefühlt?",
		TranscribedResponse: "ich sage vier", ParsedValue: 4, IsConfirmed: true,
	}); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	// Unconfirmed answers stay out of the export.
	if err := s.RecordAnswer(ctx, id, questionnaire.Answer{
		QuestionID: "Q2", TranscribedResponse: "vielleicht", IsConfirmed: false,
	}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	out, err := s.ExportCSV(ctx, id)
	if err != nil {
		t.Fatalf("export csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv has %d lines, want header + 1 answer:\n%s", len(lines), out)
	}
	if lines[0] != "question_id,question_text,transcribed_response,parsed_value,is_confirmed" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Q1,") || !strings.Contains(lines[1], ",4,true") {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestRecordAnswerUpserts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.SaveQuestionnaire(ctx, sampleDoc())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, value := range []int{2, 5} {
		if err := s.RecordAnswer(ctx, id, questionnaire.Answer{
			QuestionID: "Q1", QuestionText: "t", TranscribedResponse: "r",
			ParsedValue: value, IsConfirmed: true,
		}); err != nil {
			t.Fatalf("record answer: %v", err)
		}
	}

	out, err := s.ExportCSV(ctx, id)
	if err != nil {
		t.Fatalf("export csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv has %d lines after re-confirmation:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], ",5,true") {
		t.Fatalf("row = %q, want replaced value 5", lines[1])
	}
}
