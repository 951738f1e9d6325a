package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/felixgeelhaar/relay/protocol"
)

// maxLineSize bounds a single newline-delimited message.
const maxLineSize = 4 * 1024 * 1024

// Stdio serves newline-delimited JSON-RPC over stdin/stdout.
type Stdio struct {
	in  io.Reader
	out io.Writer

	mu sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets a custom stdin reader.
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) {
		s.in = r
	}
}

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.out = w
	}
}

// NewStdio creates a new stdio transport.
func NewStdio(opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:  os.Stdin,
		out: os.Stdout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the transport address.
func (s *Stdio) Addr() string {
	return "stdio"
}

// Serve processes requests from stdin until EOF or ctx is canceled.
// Requests are handled one at a time in arrival order. A line longer than
// maxLineSize is discarded and answered with an invalid request error.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	reader := bufio.NewReaderSize(s.in, 64*1024)

	lines := make(chan stdioLine)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			line, err := readLine(reader, maxLineSize)
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if line.tooLong {
				s.writeResponse(protocol.NewErrorResponse(nil, protocol.NewInvalidRequest("request line too large")))
				continue
			}
			if len(line.data) == 0 {
				continue
			}
			if resp := Dispatch(ctx, handler, line.data); resp != nil {
				s.writeResponse(resp)
			}
		}
	}
}

type stdioLine struct {
	data    []byte
	tooLong bool
}

// readLine reads one newline-delimited line. Once a line exceeds limit the
// rest of it is consumed and dropped.
func readLine(r *bufio.Reader, limit int) (stdioLine, error) {
	var line stdioLine
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return stdioLine{}, err
		}
		if !line.tooLong {
			if len(line.data)+len(chunk) > limit {
				line.tooLong = true
				line.data = nil
			} else {
				line.data = append(line.data, chunk...)
			}
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func (s *Stdio) writeResponse(resp *protocol.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(protocol.NewErrorResponse(resp.ID, protocol.NewInternalError("marshal response: "+err.Error())))
	}

	_, _ = s.out.Write(append(data, '\n'))
}
