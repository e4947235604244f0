// Package orpheus implements the token-streaming synthesis engine: an SSE
// client for the inference server, recovery of audio token IDs from text
// fragments, and the windowed assembly of decoded PCM into a WAV artifact.
package orpheus

import (
	"strconv"
	"strings"
)

// Protocol contract values of the paired codec. These are fixed by the
// token scheme the decoder was trained against and must not be tuned.
const (
	tokenPrefix    = "<custom_token_"
	tokenSuffix    = ">"
	tokenOffset    = 10
	positionStride = 4096
	decodeCadence  = 7
	windowSize     = 28
)

// TokenID recovers the audio token ID embedded in fragment, correcting for
// the token's zero-based position in the accepted stream. When the fragment
// holds several concatenated markers, only the last one is honored. A
// fragment without a well-formed marker yields ok=false; malformed input is
// never an error.
func TokenID(fragment string, index int) (int, bool) {
	fragment = strings.TrimSpace(fragment)
	start := strings.LastIndex(fragment, tokenPrefix)
	if start == -1 {
		return 0, false
	}
	marker := fragment[start:]
	if !strings.HasSuffix(marker, tokenSuffix) {
		return 0, false
	}
	numeral := marker[len(tokenPrefix) : len(marker)-len(tokenSuffix)]
	value, err := strconv.Atoi(numeral)
	if err != nil {
		return 0, false
	}
	return value - tokenOffset - (index%decodeCadence)*positionStride, true
}
