// Package stt turns recorded answers into text with an ordered chain of
// speech recognition backends.
package stt

import (
	"context"
	"errors"
)

// Result captures recognizer output. Language is the recognized (or
// confirmed) language code and LanguageProbability the backend's confidence
// in that detection.
type Result struct {
	Text                string
	Language            string
	LanguageProbability float64
}

// Recognizer abstracts speech recognition backends.
type Recognizer interface {
	Name() string
	// Supports reports whether the backend can handle the given language
	// hint. An empty hint means the caller wants automatic detection.
	Supports(language string) bool
	Transcribe(ctx context.Context, audioPath string, language string) (Result, error)
}

var (
	// ErrNoRecognizers means no recognition backend is configured at all.
	ErrNoRecognizers = errors.New("no transcription engines available")
	// ErrAllRecognizersFailed means every eligible backend errored.
	ErrAllRecognizersFailed = errors.New("all transcription engines failed")
)
