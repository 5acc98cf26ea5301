package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/papercomputeco/chatserve/pkg/llm"
)

// SSE framing.
const (
	SSEDataPrefix = "data: "
	SSEDone       = "data: [DONE]\n\n"
)

// FrameWriter is the destination of SSE frames. *bufio.Writer satisfies it.
type FrameWriter interface {
	io.Writer
	Flush() error
}

// FragmentStream is a pull-style sequence of generated fragments, as
// produced by bridge.Start.
type FragmentStream interface {
	// Next returns the next fragment, or false once the stream has ended.
	Next() (string, bool)

	// Err returns the error the stream ended with, after Next returned false.
	Err() error

	// Close abandons the stream, cancelling generation.
	Close()
}

// Framer turns fragments of one response into stream chunks and SSE frames.
// ID and Model are stable across every chunk of the response.
type Framer struct {
	ID    string
	Model string
	now   func() time.Time
}

// NewFramer creates a Framer for the response identified by id.
func NewFramer(id, model string) *Framer {
	return &Framer{ID: id, Model: model, now: time.Now}
}

// Chunk builds the content chunk carrying fragment.
func (f *Framer) Chunk(fragment string) llm.ChatCompletionStreamResponse {
	return f.chunk(llm.DeltaMessage{Content: &fragment}, nil)
}

// Final builds the terminal chunk: an empty delta with finish_reason "stop".
func (f *Framer) Final() llm.ChatCompletionStreamResponse {
	stop := llm.FinishReasonStop
	return f.chunk(llm.DeltaMessage{}, &stop)
}

func (f *Framer) chunk(delta llm.DeltaMessage, finishReason *string) llm.ChatCompletionStreamResponse {
	return llm.ChatCompletionStreamResponse{
		ID:      f.ID,
		Object:  llm.ObjectChatCompletionChunk,
		Created: f.now().Unix(),
		Model:   f.Model,
		Choices: []llm.StreamChoice{
			{
				Index:        0,
				Delta:        delta,
				FinishReason: finishReason,
			},
		},
	}
}

// WriteFrame writes v as one "data: <json>\n\n" frame and flushes it.
func (f *Framer) WriteFrame(w FrameWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(w, "%s%s\n\n", SSEDataPrefix, data); err != nil {
		return err
	}
	return w.Flush()
}

// WriteDone writes the end-of-stream sentinel and flushes it.
func (f *Framer) WriteDone(w FrameWriter) error {
	if _, err := io.WriteString(w, SSEDone); err != nil {
		return err
	}
	return w.Flush()
}

// Pump writes one chunk per fragment, in order, then the terminal chunk and
// the sentinel. It returns the number of content chunks written.
//
// If the stream ends with a generation error, Pump writes a single error
// event followed by the sentinel instead of the terminal chunk, and returns
// the error wrapped in ErrGeneration. If writing fails, the client is gone:
// Pump closes the stream, which cancels generation, and returns the write
// error.
func (f *Framer) Pump(w FrameWriter, stream FragmentStream) (int, error) {
	written := 0
	for {
		fragment, ok := stream.Next()
		if !ok {
			break
		}

		if err := f.WriteFrame(w, f.Chunk(fragment)); err != nil {
			stream.Close()
			return written, fmt.Errorf("write chunk: %w", err)
		}
		written++
	}

	if genErr := stream.Err(); genErr != nil {
		err := fmt.Errorf("%w: %w", ErrGeneration, genErr)
		event := llm.NewErrorResponse(llm.ErrorTypeGeneration, err.Error())
		if werr := f.WriteFrame(w, event); werr != nil {
			return written, errors.Join(err, werr)
		}
		if werr := f.WriteDone(w); werr != nil {
			return written, errors.Join(err, werr)
		}
		return written, err
	}

	if err := f.WriteFrame(w, f.Final()); err != nil {
		return written, fmt.Errorf("write final chunk: %w", err)
	}
	if err := f.WriteDone(w); err != nil {
		return written, fmt.Errorf("write sentinel: %w", err)
	}
	return written, nil
}

// Prime blocks until stream yields its first fragment or ends. If it ended
// with an error before producing anything, that error is returned wrapped in
// ErrGeneration so the caller can still answer with a plain error response.
// Otherwise the returned stream replays the first fragment before continuing.
func Prime(stream FragmentStream) (FragmentStream, error) {
	first, ok := stream.Next()
	if !ok {
		if err := stream.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		return stream, nil
	}
	return &primedStream{FragmentStream: stream, first: first, pending: true}, nil
}

type primedStream struct {
	FragmentStream
	first   string
	pending bool
}

func (p *primedStream) Next() (string, bool) {
	if p.pending {
		p.pending = false
		return p.first, true
	}
	return p.FragmentStream.Next()
}
