package session

import (
	"context"
	"io"
	"strings"

	"github.com/flemzord/parley/internal/transcript"
)

// TerminatedMarker is printed after an interrupted streaming answer.
const TerminatedMarker = "\n<Terminated>"

// PromptAndPrint asks query, writes the answer and a newline to w, and
// logs the exchange to the transcript.
func (s *Session) PromptAndPrint(ctx context.Context, w io.Writer, query string, opts ...AskOption) (string, error) {
	text, err := s.Ask(ctx, query, opts...)
	if err != nil {
		return "", err
	}
	_, _ = io.WriteString(w, text+"\n")

	fromCache := false
	if h := s.History(); len(h) > 0 {
		fromCache = h[len(h)-1].FromCache
	}
	s.record(ctx, transcript.Exchange{Query: query, Response: text, FromCache: fromCache})
	return text, nil
}

// PromptStreamAndPrint streams the answer to query into w as it arrives
// and logs the exchange to the transcript. Cancelling ctx stops the answer
// gracefully: the marker "\n<Terminated>" is printed and the partial text
// is returned without error. Any other failure is returned as is.
func (s *Session) PromptStreamAndPrint(ctx context.Context, w io.Writer, query string, opts ...AskOption) (string, error) {
	var (
		text       strings.Builder
		terminated bool
	)
	for fragment, err := range s.AskStream(ctx, query, opts...) {
		if err != nil {
			if IsInterrupted(err) {
				terminated = true
				break
			}
			return text.String(), err
		}
		text.WriteString(fragment)
		_, _ = io.WriteString(w, fragment)
	}

	if terminated {
		_, _ = io.WriteString(w, TerminatedMarker)
	}
	_, _ = io.WriteString(w, "\n")

	// The caller's context may be the one that was cancelled.
	s.record(context.WithoutCancel(ctx), transcript.Exchange{
		Query:      query,
		Response:   text.String(),
		Terminated: terminated,
	})
	return text.String(), nil
}

// record appends e to the transcript. A transcript failure is logged and
// does not fail the exchange.
func (s *Session) record(ctx context.Context, e transcript.Exchange) {
	if s.transcript == nil {
		return
	}
	e.SessionID = s.id
	e.Model = s.Model()
	if err := s.transcript.Append(ctx, e); err != nil {
		s.logger.Warn("transcript append failed", "error", err)
	}
}
