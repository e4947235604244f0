package stt

import (
	"context"
	"errors"
)

// MockRecognizer is a configurable backend for tests and dry runs.
type MockRecognizer struct {
	RecognizerName string
	Languages      map[string]bool
	Text           string
	Language       string
	Probability    float64
	Fail           bool
	Calls          int
}

func (m *MockRecognizer) Name() string { return m.RecognizerName }

func (m *MockRecognizer) Supports(language string) bool {
	if m.Languages == nil {
		return true
	}
	return m.Languages[language]
}

func (m *MockRecognizer) Transcribe(_ context.Context, _ string, language string) (Result, error) {
	m.Calls++
	if m.Fail {
		return Result{}, errors.New("mock recognizer failure")
	}
	result := Result{Text: m.Text, Language: m.Language, LanguageProbability: m.Probability}
	if result.Language == "" {
		result.Language = language
	}
	return result, nil
}
