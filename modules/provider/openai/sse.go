package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/flemzord/parley/internal/provider"
)

// maxEventSize bounds a single SSE line. Long deltas overflow the bufio
// default of 64 KiB.
const maxEventSize = 1 << 20

var doneMarker = []byte("[DONE]")

// eventReader splits a text/event-stream body into events and returns the
// data payload of each. Multiple data lines of one event are joined with
// a newline. Comments and fields other than data are dropped.
type eventReader struct {
	sc   *bufio.Scanner
	data [][]byte
}

func newEventReader(r io.Reader) *eventReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventSize)
	return &eventReader{sc: sc}
}

// next returns the payload of the next event with a non-empty data field.
// It returns io.EOF once the body is exhausted.
func (er *eventReader) next() ([]byte, error) {
	for er.sc.Scan() {
		line := er.sc.Bytes()
		if len(line) == 0 {
			if payload := er.flush(); payload != nil {
				return payload, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		er.data = append(er.data, bytes.Clone(value))
	}
	if err := er.sc.Err(); err != nil {
		return nil, err
	}
	// A stream may end without the blank line closing the last event.
	if payload := er.flush(); payload != nil {
		return payload, nil
	}
	return nil, io.EOF
}

func (er *eventReader) flush() []byte {
	if len(er.data) == 0 {
		return nil
	}
	payload := bytes.TrimSpace(bytes.Join(er.data, []byte("\n")))
	er.data = er.data[:0]
	if len(payload) == 0 {
		return nil
	}
	return payload
}

// streamChunk converts one decoded SSE payload into a provider chunk.
// ok is false for payloads carrying nothing worth forwarding, such as the
// role-only delta that opens every stream.
func streamChunk(payload []byte) (chunk provider.StreamChunk, ok bool, err error) {
	var raw chatStreamChunk
	if err := json.Unmarshal(payload, &raw); err != nil {
		return provider.StreamChunk{}, false, err
	}
	if raw.Usage != nil {
		u := fromUsage(*raw.Usage)
		chunk.Usage = &u
	}
	if len(raw.Choices) > 0 {
		chunk.Content = raw.Choices[0].Delta.Content
		chunk.FinishReason = mapFinishReason(raw.Choices[0].FinishReason)
	}
	ok = chunk.Content != "" || chunk.FinishReason != "" || chunk.Usage != nil
	return chunk, ok, nil
}

// readStream forwards the chunks of an SSE body on ch until [DONE], a read
// or decode error, or ctx cancellation. It closes both ch and body.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Closing the body is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	emit := func(c provider.StreamChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	events := newEventReader(body)
	for {
		payload, err := events.next()
		if ctx.Err() != nil {
			emit(provider.StreamChunk{Err: ctx.Err()})
			return
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			emit(provider.StreamChunk{Err: transportError(err)})
			return
		}
		if bytes.Equal(payload, doneMarker) {
			return
		}

		chunk, ok, err := streamChunk(payload)
		if err != nil {
			emit(provider.StreamChunk{Err: err})
			return
		}
		if ok && !emit(chunk) {
			return
		}
	}
}
