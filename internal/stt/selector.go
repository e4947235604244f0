package stt

import (
	"context"
	"fmt"
	"log/slog"
)

// Selector runs recognizers in priority order and returns the first usable
// transcript. Backends that do not support the requested language are
// skipped without counting as attempts.
type Selector struct {
	recognizers []Recognizer
	logger      *slog.Logger
}

func NewSelector(logger *slog.Logger, recognizers ...Recognizer) *Selector {
	return &Selector{
		recognizers: recognizers,
		logger:      logger.With(slog.String("component", "stt-selector")),
	}
}

// Recognizers lists configured backend names in priority order.
func (s *Selector) Recognizers() []string {
	names := make([]string, 0, len(s.recognizers))
	for _, r := range s.recognizers {
		names = append(names, r.Name())
	}
	return names
}

func (s *Selector) Transcribe(ctx context.Context, audioPath string, language string) (Result, error) {
	if len(s.recognizers) == 0 {
		return Result{}, ErrNoRecognizers
	}

	var lastErr error
	attempted := 0
	for _, recognizer := range s.recognizers {
		if !recognizer.Supports(language) {
			continue
		}
		attempted++
		result, err := recognizer.Transcribe(ctx, audioPath, language)
		if err != nil {
			lastErr = err
			s.logger.Warn("recognizer failed, trying next",
				slog.String("recognizer", recognizer.Name()),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("transcription complete",
			slog.String("recognizer", recognizer.Name()),
			slog.String("language", result.Language))
		return result, nil
	}
	if attempted == 0 {
		return Result{}, fmt.Errorf("%w for language %q", ErrNoRecognizers, language)
	}
	return Result{}, fmt.Errorf("%w: %w", ErrAllRecognizersFailed, lastErr)
}
