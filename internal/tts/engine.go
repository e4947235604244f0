// Package tts provides the synthesis engine contract and the fallback
// selector that orders engine attempts per request.
package tts

import (
	"context"
	"errors"
)

// Request contains parameters to synthesize speech.
type Request struct {
	Text     string
	Language string
}

// Artifact describes a finished WAV file produced by an engine.
type Artifact struct {
	Path       string
	SampleRate int
}

var (
	// ErrLanguageUnsupported means no engine carries configuration for the
	// requested language. No synthesis attempt was made.
	ErrLanguageUnsupported = errors.New("language not supported by any engine")

	// ErrNoEngines means the process started without a single usable engine.
	ErrNoEngines = errors.New("no synthesis engines available")

	// ErrNoAudio means an engine ran but produced zero usable audio.
	ErrNoAudio = errors.New("engine produced no audio")

	// ErrAllEnginesFailed means at least one engine was attempted and every
	// attempt failed.
	ErrAllEnginesFailed = errors.New("all configured engines failed")
)

// Engine is a concrete synthesis backend. Engines write their artifact to
// the caller-owned outputPath; the caller controls the file's lifecycle.
type Engine interface {
	Name() string
	Supports(language string) bool
	Synthesize(ctx context.Context, req Request, outputPath string) (Artifact, error)
}
