package orpheus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/voxform-ai/voxform/internal/audio"
)

type recordingDecoder struct {
	windows [][]int
	counts  []int
	pcm     []byte
	err     error
}

func (d *recordingDecoder) Decode(_ context.Context, window []int, count int) ([]byte, error) {
	snapshot := make([]int, len(window))
	copy(snapshot, window)
	d.windows = append(d.windows, snapshot)
	d.counts = append(d.counts, count)
	return d.pcm, d.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWriter(t *testing.T) *audio.Writer {
	t.Helper()
	writer, err := audio.NewWriter(filepath.Join(t.TempDir(), "out.wav"), 24000)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	t.Cleanup(func() { writer.Close() })
	return writer
}

// marker builds a fragment whose embedded value decodes to id when the
// token lands at stream position index.
func marker(id, index int) string {
	return fmt.Sprintf("%s%d%s", tokenPrefix, id+tokenOffset+(index%decodeCadence)*positionStride, tokenSuffix)
}

func TestAssemblerDecodeCadence(t *testing.T) {
	cases := []struct {
		tokens  int
		decodes int
	}{
		{0, 0},
		{27, 0},
		{28, 1},
		{34, 1},
		{35, 2},
		{70, 7},
	}
	for _, tc := range cases {
		dec := &recordingDecoder{}
		asm := NewAssembler(dec, newTestWriter(t), discardLogger())
		for i := 0; i < tc.tokens; i++ {
			if err := asm.Consume(context.Background(), marker(i+1, i)); err != nil {
				t.Fatalf("Consume token %d: %v", i, err)
			}
		}
		if asm.Accepted() != tc.tokens {
			t.Fatalf("tokens=%d: accepted %d", tc.tokens, asm.Accepted())
		}
		if asm.Decodes() != tc.decodes {
			t.Errorf("tokens=%d: got %d decodes, want %d", tc.tokens, asm.Decodes(), tc.decodes)
		}
	}
}

func TestAssemblerWindowContents(t *testing.T) {
	dec := &recordingDecoder{}
	asm := NewAssembler(dec, newTestWriter(t), discardLogger())
	for i := 0; i < 35; i++ {
		if err := asm.Consume(context.Background(), marker(i+1, i)); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	if len(dec.windows) != 2 {
		t.Fatalf("got %d decoder calls, want 2", len(dec.windows))
	}

	// First decode fires at token 28 and sees IDs 1..28; the second fires
	// at token 35 and sees the window slid forward by seven, IDs 8..35.
	for i, want := range []int{1, 8} {
		window := dec.windows[i]
		if len(window) != windowSize {
			t.Fatalf("decode %d: window length %d", i, len(window))
		}
		for j, id := range window {
			if id != want+j {
				t.Fatalf("decode %d: window[%d] = %d, want %d", i, j, id, want+j)
			}
		}
	}
	if dec.counts[0] != 28 || dec.counts[1] != 35 {
		t.Errorf("decode counts = %v, want [28 35]", dec.counts)
	}
}

func TestAssemblerMultipleMarkersPerFragment(t *testing.T) {
	dec := &recordingDecoder{}
	asm := NewAssembler(dec, newTestWriter(t), discardLogger())

	fragment := "noise" + marker(1, 0) + marker(2, 1)
	if err := asm.Consume(context.Background(), fragment); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if asm.Accepted() != 2 {
		t.Fatalf("accepted %d, want 2", asm.Accepted())
	}
}

func TestAssemblerDiscardsInvalidTokens(t *testing.T) {
	dec := &recordingDecoder{}
	asm := NewAssembler(dec, newTestWriter(t), discardLogger())

	fragments := []string{
		"plain text without markers",
		tokenPrefix + "junk" + tokenSuffix,
		// Value equals the offset, so the recovered ID is zero.
		fmt.Sprintf("%s%d%s", tokenPrefix, tokenOffset, tokenSuffix),
	}
	for _, f := range fragments {
		if err := asm.Consume(context.Background(), f); err != nil {
			t.Fatalf("Consume %q: %v", f, err)
		}
	}
	if asm.Accepted() != 0 {
		t.Fatalf("accepted %d invalid tokens", asm.Accepted())
	}
	if asm.Decodes() != 0 {
		t.Fatalf("decoded %d windows off invalid input", asm.Decodes())
	}
}

func TestAssemblerSurvivesDecoderFailure(t *testing.T) {
	dec := &recordingDecoder{err: fmt.Errorf("codec crashed")}
	writer := newTestWriter(t)
	asm := NewAssembler(dec, writer, discardLogger())

	for i := 0; i < 35; i++ {
		if err := asm.Consume(context.Background(), marker(i+1, i)); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	if asm.Decodes() != 2 {
		t.Fatalf("got %d decodes, want 2", asm.Decodes())
	}
	if writer.Frames() != 0 {
		t.Fatalf("failed decodes wrote %d frames", writer.Frames())
	}
}

func TestAssemblerAppendsDecodedPCM(t *testing.T) {
	dec := &recordingDecoder{pcm: []byte{0x01, 0x00, 0x02, 0x00}}
	writer := newTestWriter(t)
	asm := NewAssembler(dec, writer, discardLogger())

	for i := 0; i < 28; i++ {
		if err := asm.Consume(context.Background(), marker(i+1, i)); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	if writer.Frames() != 1 {
		t.Fatalf("got %d frames, want 1", writer.Frames())
	}
}
