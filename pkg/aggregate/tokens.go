package aggregate

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// tokenCounter wraps a tiktoken encoding for run-level accounting.
type tokenCounter struct {
	enc *tiktoken.Tiktoken
}

// newTokenCounter resolves the encoding for model, falling back to the
// default model when the requested one is unknown. Returns nil when no
// encoding can be loaded at all; the run then proceeds without counts.
func newTokenCounter(model string, logger *zap.Logger) *tokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.Warn("Unknown token model, falling back",
			zap.String("model", model),
			zap.String("fallback", DefaultTokenModel),
			zap.Error(err))
		enc, err = tiktoken.EncodingForModel(DefaultTokenModel)
	}
	if err != nil {
		logger.Warn("Token counting disabled", zap.Error(err))
		return nil
	}
	return &tokenCounter{enc: enc}
}

// Count returns the token count of text under the counter's encoding.
func (t *tokenCounter) Count(text string) int {
	return len(t.enc.EncodeOrdinary(text))
}
