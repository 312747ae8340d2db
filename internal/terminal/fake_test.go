package terminal

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

type fakeTerminal struct {
	mu         sync.Mutex
	written    []string
	closeCount int

	reads    chan []byte
	closed   chan struct{}
	readErr  error
	writeErr error
	respond  func(input string) string
}

func newFakeTerminal(initial ...string) *fakeTerminal {
	f := &fakeTerminal{
		reads:  make(chan []byte, 32),
		closed: make(chan struct{}),
	}
	for _, chunk := range initial {
		f.reads <- []byte(chunk)
	}
	return f
}

func (f *fakeTerminal) Read(b []byte) (int, error) {
	select {
	case chunk, ok := <-f.reads:
		if !ok {
			if f.readErr != nil {
				return 0, f.readErr
			}
			return 0, io.EOF
		}
		return copy(b, chunk), nil
	case <-f.closed:
		return 0, os.ErrClosed
	}
}

func (f *fakeTerminal) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	input := string(b)
	f.written = append(f.written, input)
	if f.respond != nil {
		if out := f.respond(input); out != "" {
			f.reads <- []byte(out)
		}
	}
	return len(b), nil
}

func (f *fakeTerminal) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	if f.closeCount == 1 {
		close(f.closed)
	}
	return nil
}

func (f *fakeTerminal) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeTerminal) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

type fakeLauncher struct {
	term     *fakeTerminal
	err      error
	launches int
	path     string
	env      []string
}

func (f *fakeLauncher) Launch(path string, env []string) (Terminal, error) {
	f.launches++
	f.path = path
	f.env = env
	if f.err != nil {
		return nil, f.err
	}
	return f.term, nil
}

var errFakeIO = errors.New("input/output error")

// quickScript is DefaultScript with every window shortened to window.
func quickScript(window time.Duration) []Step {
	script := DefaultScript()
	for i := range script {
		if script[i].Kind == StepWait {
			script[i].Window = window
		}
	}
	return script
}
