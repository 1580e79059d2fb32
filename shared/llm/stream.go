package llm

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// Delta is one increment of streamed content. Err is set at most once, as the
// final delta before the channel closes, and only for mid-stream transport
// failures — ordinary end-of-stream just closes the channel.
type Delta struct {
	Text string
	Err  error
}

// DecodeSSE consumes an SSE response body and yields content deltas strictly
// in receipt order. The body is read in raw chunks into a byte buffer so a
// multi-byte character straddling two reads is never split: only complete
// newline-terminated lines are decoded, the trailing partial line carries
// over to the next read. Lines that fail to parse are skipped; the [DONE]
// sentinel stops yielding but keeps draining the connection. Cancelling ctx
// stops reading and releases the connection; whatever text was already
// yielded stays with the caller.
func DecodeSSE(ctx context.Context, body io.ReadCloser) <-chan Delta {
	ch := make(chan Delta)
	go func() {
		defer body.Close()
		defer close(ch)

		var buf []byte
		chunk := make([]byte, 2048)
		done := false

		for {
			n, err := body.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
				for {
					idx := bytes.IndexByte(buf, '\n')
					if idx < 0 {
						break
					}
					line := string(buf[:idx])
					buf = buf[idx+1:]

					if done {
						continue
					}
					text, isDone := decodeLine(line)
					if isDone {
						done = true
						continue
					}
					if text == "" {
						continue
					}
					if ctx.Err() != nil {
						return
					}
					select {
					case <-ctx.Done():
						return
					case ch <- Delta{Text: text}:
					}
				}
			}
			if err != nil {
				if err == io.EOF || ctx.Err() != nil {
					return
				}
				select {
				case <-ctx.Done():
				case ch <- Delta{Err: err}:
				}
				return
			}
		}
	}()
	return ch
}

// decodeLine extracts the content delta from one SSE line. Returns ("",
// false) for anything that is not a usable data line.
func decodeLine(line string) (text string, done bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		return "", true
	}
	if !gjson.Valid(payload) {
		return "", false
	}
	return gjson.Get(payload, "choices.0.delta.content").String(), false
}
