package assembler

import (
	"math"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts (or estimates) the token cost of a string. Turns always
// carry a measured token_count from the caller; everything else routed
// through the context assembler is estimated here (spec §4.8 step 3).
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator builds an Estimator backed by the named tiktoken encoding
// (e.g. "cl100k_base"). If the encoding cannot be loaded — offline, or an
// unrecognized name — Estimate falls back to the spec's explicit
// ceil(len/3.5) heuristic (spec §4.8 step 3: "others use a ceil(len/3.5)
// estimator").
func NewEstimator(encodingName string) *Estimator {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{enc: enc}
}

// Estimate returns the token count of text, using the registered tiktoken
// encoding if available, the ceil(len/3.5) fallback otherwise.
func (e *Estimator) Estimate(text string) int {
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return int(math.Ceil(float64(len(text)) / 3.5))
}
