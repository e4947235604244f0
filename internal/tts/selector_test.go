package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSelectorNoEngines(t *testing.T) {
	s := NewSelector(newLogger())
	_, _, err := s.Synthesize(context.Background(), Request{Text: "hi", Language: "en"}, filepath.Join(t.TempDir(), "o.wav"))
	if !errors.Is(err, ErrNoEngines) {
		t.Fatalf("expected ErrNoEngines, got %v", err)
	}
}

func TestSelectorUnsupportedLanguage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "o.wav")
	s := NewSelector(newLogger(), &MockEngine{EngineName: "local", Languages: []string{"en"}})
	_, attempts, err := s.Synthesize(context.Background(), Request{Text: "test", Language: "xx"}, out)
	if !errors.Is(err, ErrLanguageUnsupported) {
		t.Fatalf("expected ErrLanguageUnsupported, got %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("expected no attempts, got %d", len(attempts))
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("no artifact file should be created for an unsupported language")
	}
}

func TestSelectorFirstEngineWins(t *testing.T) {
	local := &MockEngine{EngineName: "local", Languages: []string{"de"}, SampleRate: 24000}
	stream := &MockEngine{EngineName: "stream", Languages: []string{"de"}}
	s := NewSelector(newLogger(), local, stream)

	artifact, attempts, err := s.Synthesize(context.Background(), Request{Text: "Hallo Welt", Language: "de"}, filepath.Join(t.TempDir(), "o.wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.SampleRate != 24000 {
		t.Fatalf("expected configured sample rate, got %d", artifact.SampleRate)
	}
	if len(attempts) != 0 {
		t.Fatalf("expected no failed attempts, got %d", len(attempts))
	}
	if stream.Calls != 0 {
		t.Fatal("fallback engine must not run when the primary succeeds")
	}
	info, err := os.Stat(artifact.Path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty artifact: %v", err)
	}
}

func TestSelectorFallsBackOnFailure(t *testing.T) {
	local := &MockEngine{EngineName: "local", Languages: []string{"en"}, Fail: errors.New("pipeline crashed")}
	stream := &MockEngine{EngineName: "stream", Languages: []string{"en"}}
	s := NewSelector(newLogger(), local, stream)

	artifact, attempts, err := s.Synthesize(context.Background(), Request{Text: "hello", Language: "en"}, filepath.Join(t.TempDir(), "o.wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Engine != "local" {
		t.Fatalf("expected one recorded local failure, got %v", attempts)
	}
	if stream.Calls != 1 {
		t.Fatal("expected the streaming engine to be attempted")
	}
	if artifact.Path == "" {
		t.Fatal("expected artifact from fallback engine")
	}
}

func TestSelectorAllEnginesFail(t *testing.T) {
	local := &MockEngine{EngineName: "local", Languages: []string{"en"}, Fail: errors.New("boom")}
	stream := &MockEngine{EngineName: "stream", Languages: []string{"en"}, Fail: ErrNoAudio}
	s := NewSelector(newLogger(), local, stream)

	_, attempts, err := s.Synthesize(context.Background(), Request{Text: "hello", Language: "en"}, filepath.Join(t.TempDir(), "o.wav"))
	if !errors.Is(err, ErrAllEnginesFailed) {
		t.Fatalf("expected ErrAllEnginesFailed, got %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
}
