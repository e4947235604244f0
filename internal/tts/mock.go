package tts

import (
	"context"
	"strings"

	"github.com/voxform-ai/voxform/internal/audio"
)

// MockEngine is a test double that writes a short constant artifact or
// fails on demand.
type MockEngine struct {
	EngineName string
	Languages  []string
	SampleRate int
	Fail       error
	Calls      int
}

func (m *MockEngine) Name() string { return m.EngineName }

func (m *MockEngine) Supports(language string) bool {
	for _, l := range m.Languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

func (m *MockEngine) Synthesize(_ context.Context, _ Request, outputPath string) (Artifact, error) {
	m.Calls++
	if m.Fail != nil {
		return Artifact{}, m.Fail
	}
	rate := m.SampleRate
	if rate == 0 {
		rate = 24000
	}
	samples := make([]int, 240)
	for i := range samples {
		samples[i] = i % 128
	}
	if err := audio.WriteSamples(outputPath, samples, rate); err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: outputPath, SampleRate: rate}, nil
}
