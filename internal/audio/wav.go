// Package audio writes synthesis artifacts as mono 16-bit PCM WAV files.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoAudio is reported when an artifact ends up with zero frames.
var ErrNoAudio = errors.New("no audio frames written")

const (
	bitDepth = 16
	channels = 1
)

// Writer appends PCM frames to a WAV file as they are decoded. The RIFF
// header is finalized on Close, so a Writer that is never closed leaves an
// unreadable file behind.
type Writer struct {
	file       *os.File
	enc        *wav.Encoder
	sampleRate int
	frames     int
}

// NewWriter creates the artifact file and prepares the encoder.
func NewWriter(path string, sampleRate int) (*Writer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	enc := wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)
	return &Writer{file: file, enc: enc, sampleRate: sampleRate}, nil
}

// AppendPCM writes one frame of little-endian 16-bit mono PCM.
// Empty frames are ignored without advancing the frame count.
func (w *Writer) AppendPCM(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm frame not 16-bit aligned (%d bytes)", len(pcm))
	}
	buffer := pcmToBuffer(pcm, w.sampleRate)
	if err := w.enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames reports how many non-empty PCM frames were appended.
func (w *Writer) Frames() int { return w.frames }

// Close finalizes the container header and closes the file.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("close wav encoder: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close artifact: %w", fileErr)
	}
	return nil
}

// WriteSamples writes a complete sample buffer to path in one shot. Used by
// engines that materialize all audio before returning.
func WriteSamples(path string, samples []int, sampleRate int) error {
	if len(samples) == 0 {
		return ErrNoAudio
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer file.Close()

	buffer := &gaudio.IntBuffer{
		Format: &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// DecodePCM converts little-endian 16-bit PCM bytes to int samples.
func DecodePCM(pcm []byte) ([]int, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples, nil
}

func pcmToBuffer(pcm []byte, sampleRate int) *gaudio.IntBuffer {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return &gaudio.IntBuffer{
		Format: &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}
}
