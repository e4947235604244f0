package tts

import (
	"context"
	"fmt"
	"log/slog"
)

// Attempt records the outcome of one engine try within a request.
type Attempt struct {
	Engine string
	Err    error
}

// Selector evaluates engines in priority order until one produces an
// artifact. The engine list is fixed at startup; an engine whose backing
// dependency failed to load is never added, so requests short-circuit past
// it without re-probing.
type Selector struct {
	engines []Engine
	logger  *slog.Logger
}

func NewSelector(logger *slog.Logger, engines ...Engine) *Selector {
	return &Selector{
		engines: engines,
		logger:  logger.With(slog.String("component", "tts-selector")),
	}
}

// Engines reports the names of the available engines in priority order.
func (s *Selector) Engines() []string {
	names := make([]string, 0, len(s.engines))
	for _, e := range s.engines {
		names = append(names, e.Name())
	}
	return names
}

// Synthesize tries each engine that supports the requested language and
// returns the first artifact. Failures of individual engines are logged,
// never surfaced, unless every attempt fails.
func (s *Selector) Synthesize(ctx context.Context, req Request, outputPath string) (Artifact, []Attempt, error) {
	if len(s.engines) == 0 {
		return Artifact{}, nil, ErrNoEngines
	}

	var attempts []Attempt
	for _, engine := range s.engines {
		if !engine.Supports(req.Language) {
			continue
		}
		artifact, err := engine.Synthesize(ctx, req, outputPath)
		if err == nil {
			return artifact, attempts, nil
		}
		attempts = append(attempts, Attempt{Engine: engine.Name(), Err: err})
		s.logger.Warn("engine attempt failed",
			slog.String("engine", engine.Name()),
			slog.String("language", req.Language),
			slog.String("error", err.Error()))
	}

	if len(attempts) == 0 {
		return Artifact{}, nil, fmt.Errorf("%w: %q", ErrLanguageUnsupported, req.Language)
	}
	return Artifact{}, attempts, fmt.Errorf("%w for language %q: last error: %v",
		ErrAllEnginesFailed, req.Language, attempts[len(attempts)-1].Err)
}
