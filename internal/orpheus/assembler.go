package orpheus

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voxform-ai/voxform/internal/audio"
)

// Decoder converts a window of accepted token IDs into PCM bytes. The codec
// consumes exactly windowSize IDs per invocation; count is the running total
// of accepted tokens at the time of the call. A nil/empty result means the
// window decoded to no audio, which is not an error.
type Decoder interface {
	Decode(ctx context.Context, window []int, count int) ([]byte, error)
}

// Assembler consumes text fragments from the token stream, maintains the
// sliding decode window, and appends decoded PCM frames to the artifact
// writer in generation order.
type Assembler struct {
	decoder Decoder
	writer  *audio.Writer
	logger  *slog.Logger
	window  []int
	count   int
	decodes int
}

func NewAssembler(decoder Decoder, writer *audio.Writer, logger *slog.Logger) *Assembler {
	return &Assembler{
		decoder: decoder,
		writer:  writer,
		logger:  logger.With(slog.String("component", "stream-assembler")),
		window:  make([]int, 0, windowSize),
	}
}

// Consume extracts token IDs from one fragment and triggers decodes at the
// fixed cadence: one decode per 7 accepted tokens once 28 have accumulated.
// IDs of zero or below are discarded as invalid; malformed markers are
// skipped without advancing the counter.
func (a *Assembler) Consume(ctx context.Context, fragment string) error {
	parts := strings.Split(fragment, tokenPrefix)
	for i, part := range parts {
		if i == 0 && !strings.HasPrefix(fragment, tokenPrefix) {
			continue
		}
		id, ok := TokenID(tokenPrefix+part, a.count)
		if !ok || id <= 0 {
			continue
		}
		a.window = append(a.window, id)
		if len(a.window) > windowSize {
			a.window = a.window[1:]
		}
		a.count++
		if a.count%decodeCadence == 0 && a.count > windowSize-1 {
			if err := a.decode(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Assembler) decode(ctx context.Context) error {
	window := make([]int, windowSize)
	copy(window, a.window[len(a.window)-windowSize:])
	a.decodes++

	pcm, err := a.decoder.Decode(ctx, window, a.count)
	if err != nil {
		// The codec skipping a window is recoverable: the counter and
		// window keep advancing and later windows may still decode.
		a.logger.Warn("decoder skipped window",
			slog.Int("count", a.count), slog.String("error", err.Error()))
		return nil
	}
	if len(pcm) == 0 {
		return nil
	}
	return a.writer.AppendPCM(pcm)
}

// Accepted reports the number of accepted token IDs.
func (a *Assembler) Accepted() int { return a.count }

// Decodes reports how many decoder invocations were triggered.
func (a *Assembler) Decodes() int { return a.decodes }
