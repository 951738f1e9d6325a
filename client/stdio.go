package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/felixgeelhaar/relay/protocol"
)

const maxLineSize = 10 * 1024 * 1024

// StdioTransport exchanges newline-delimited JSON over a pair of streams,
// usually the stdin and stdout of a relay subprocess.
type StdioTransport struct {
	cmd    *exec.Cmd
	in     io.Reader
	out    io.WriteCloser
	stderr io.ReadCloser

	writeMu sync.Mutex
	pending *pending

	closeOnce sync.Once
	readWG    sync.WaitGroup
}

// NewStdioTransport starts command and talks to it over its stdio.
func NewStdioTransport(command string, args ...string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	t := newStdio(stdout, stdin)
	t.cmd = cmd
	t.stderr = stderr
	return t, nil
}

// NewStreamTransport talks to a server reading from out and writing to in.
// Closing the transport closes out, and in when it is an io.Closer.
func NewStreamTransport(in io.Reader, out io.WriteCloser) *StdioTransport {
	return newStdio(in, out)
}

func newStdio(in io.Reader, out io.WriteCloser) *StdioTransport {
	t := &StdioTransport{
		in:      in,
		out:     out,
		pending: newPending(),
	}
	t.readWG.Add(1)
	go t.readResponses()
	return t
}

// Send writes req as one line and waits for the response with the same id.
func (t *StdioTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if req.IsNotification() {
		return nil, t.write(data)
	}

	ch, err := t.pending.register(req.ID)
	if err != nil {
		return nil, err
	}
	defer t.pending.forget(req.ID)

	if err := t.write(data); err != nil {
		return nil, err
	}
	return t.pending.wait(ctx, ch)
}

func (t *StdioTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Close closes the streams and, for a subprocess, waits for it to exit.
func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.pending.fail(ErrClosed)
		_ = t.out.Close()
		if c, ok := t.in.(io.Closer); ok && t.cmd == nil {
			_ = c.Close()
		}
		if t.cmd == nil {
			t.readWG.Wait()
			return
		}

		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill() //nolint:errcheck // process may have exited
		}
		t.readWG.Wait()
		err = t.cmd.Wait()
	})
	return err
}

// Stderr returns the subprocess stderr, or nil for stream transports.
func (t *StdioTransport) Stderr() io.Reader {
	if t.stderr == nil {
		return nil
	}
	return t.stderr
}

func (t *StdioTransport) readResponses() {
	defer t.readWG.Done()

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var resp protocol.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		t.pending.deliver(&resp)
	}

	if err := scanner.Err(); err != nil {
		t.pending.fail(fmt.Errorf("%w: %v", ErrClosed, err))
		return
	}
	t.pending.fail(ErrClosed)
}
