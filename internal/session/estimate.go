package session

import "github.com/flemzord/parley/internal/provider"

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens with a fixed characters-per-token ratio.
// About 4 works for English text.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator returns a CharEstimator. A ratio <= 0 means 4.
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate rounds up so short strings never count as zero.
func (e *CharEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text))/e.CharsPerToken) + 1
}

// perMessageOverhead approximates the role and framing tokens the chat
// format adds around each message.
const perMessageOverhead = 4

func estimateMessages(e TokenEstimator, msgs []provider.LLMMessage) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead + e.Estimate(m.Content)
	}
	return total
}
