package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	readChunkSize   = 4096
	pumpBacklog     = 64
	pumpJoinTimeout = 500 * time.Millisecond
)

// Session owns one launched terminal and the output read from it. The
// terminal and its child process are released together by Close.
type Session struct {
	term   Terminal
	logger *log.Logger

	output   bytes.Buffer
	chunks   chan []byte
	stop     chan struct{}
	pumpDone chan struct{}
	readErr  error

	closeOnce sync.Once
}

// Open launches path through launcher and starts collecting its output.
// The caller must Close the returned session.
func Open(launcher Launcher, path string, env []string, logger *log.Logger) (*Session, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if strings.TrimSpace(path) == "" {
		return nil, ErrTargetNotFound
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	term, err := launcher.Launch(path, env)
	if err != nil {
		return nil, sessionError("launch", err)
	}

	s := &Session{
		term:     term,
		logger:   logger,
		chunks:   make(chan []byte, pumpBacklog),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// pump is the only reader of the terminal. It ends on the first read error,
// which includes the controller being closed during teardown.
func (s *Session) pump() {
	defer close(s.pumpDone)
	defer close(s.chunks)

	for {
		buf := make([]byte, readChunkSize)
		n, err := s.term.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

// Collect appends output until window elapses, ctx is done, or the terminal
// stops producing output because of a read error. None of these is a failure;
// it returns the number of bytes appended.
func (s *Session) Collect(ctx context.Context, window time.Duration) int {
	if window <= 0 {
		return 0
	}
	timer := time.NewTimer(window)
	defer timer.Stop()

	collected := 0
	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				if s.readErr != nil && !errors.Is(s.readErr, io.EOF) {
					s.logger.Debug("terminal read ended", "err", s.readErr)
				}
				return collected
			}
			s.output.Write(chunk)
			collected += len(chunk)
		case <-timer.C:
			return collected
		case <-ctx.Done():
			return collected
		}
	}
}

// Send writes literal input, such as a command or a keystroke, to the terminal.
func (s *Session) Send(input string) error {
	if _, err := io.WriteString(s.term, input); err != nil {
		return sessionError(fmt.Sprintf("write %q", input), err)
	}
	return nil
}

// Transcript returns everything collected so far. Invalid UTF-8 is dropped.
func (s *Session) Transcript() string {
	return strings.ToValidUTF8(s.output.String(), "")
}

// Close terminates the child, closes the controller and stops the reader.
// It is idempotent and never fails; teardown problems are only logged.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.stop)
		if err := s.term.Close(); err != nil {
			s.logger.Warn("terminal teardown", "err", err)
		}

		timer := time.NewTimer(pumpJoinTimeout)
		defer timer.Stop()
		select {
		case <-s.pumpDone:
		case <-timer.C:
			s.logger.Warn("terminal reader did not stop after close")
		}
	})
}
