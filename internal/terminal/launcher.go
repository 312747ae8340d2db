package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const (
	// TermType makes the CLI render the same full-color UI a person would see.
	TermType = "xterm-256color"

	terminateGrace = 2 * time.Second
	termRows       = 50
	termCols       = 160
)

// Terminal is a child process attached to a pseudo-terminal, seen from the
// controller side.
type Terminal interface {
	io.Reader
	io.Writer
	// Close terminates the child and releases the controller. Calling it more
	// than once is safe and never reports "already exited" as an error.
	Close() error
}

// Launcher starts the target program on a fresh pseudo-terminal.
type Launcher interface {
	Launch(path string, env []string) (Terminal, error)
}

// ProcessSignaler sends unix signals to a process ID.
type ProcessSignaler interface {
	Signal(pid int, signal syscall.Signal) error
}

type defaultProcessSignaler struct{}

func (defaultProcessSignaler) Signal(pid int, signal syscall.Signal) error {
	return syscall.Kill(pid, signal)
}

// PTYLauncher launches programs on a real pseudo-terminal. Zero fields fall
// back to syscall.Kill and a two second termination grace.
type PTYLauncher struct {
	Signaler ProcessSignaler
	Grace    time.Duration
}

// Launch spawns path with stdin, stdout and stderr on the follower side of a
// new pseudo-terminal. The follower is closed in this process once the child
// holds it.
func (l PTYLauncher) Launch(path string, env []string) (Terminal, error) {
	cmd := exec.Command(path)
	cmd.Env = env

	controller, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: termRows, Cols: termCols})
	if err != nil {
		return nil, fmt.Errorf("start %s on pty: %w", path, err)
	}

	signaler := l.Signaler
	if signaler == nil {
		signaler = defaultProcessSignaler{}
	}
	grace := l.Grace
	if grace <= 0 {
		grace = terminateGrace
	}

	return &ptyTerminal{
		controller: controller,
		cmd:        cmd,
		signaler:   signaler,
		grace:      grace,
	}, nil
}

type ptyTerminal struct {
	controller *os.File
	cmd        *exec.Cmd
	signaler   ProcessSignaler
	grace      time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (p *ptyTerminal) Read(b []byte) (int, error) {
	return p.controller.Read(b)
}

func (p *ptyTerminal) Write(b []byte) (int, error) {
	return p.controller.Write(b)
}

func (p *ptyTerminal) Close() error {
	p.closeOnce.Do(func() {
		if p.cmd.Process != nil {
			exited := make(chan struct{})
			go func() {
				_ = p.cmd.Wait()
				close(exited)
			}()
			stopProcess(p.signaler, p.cmd.Process.Pid, exited, p.grace)
		}
		if err := p.controller.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.closeErr = fmt.Errorf("close pty controller: %w", err)
		}
	})
	return p.closeErr
}

// stopProcess applies SIGTERM -> grace -> SIGKILL to pid. exited closes once
// the child has been reaped. A process that is already gone is not signalled
// again.
func stopProcess(signaler ProcessSignaler, pid int, exited <-chan struct{}, grace time.Duration) {
	select {
	case <-exited:
		return
	default:
	}

	if err := signaler.Signal(pid, syscall.SIGTERM); errors.Is(err, syscall.ESRCH) {
		waitExit(exited, grace)
		return
	}
	if waitExit(exited, grace) {
		return
	}

	// ESRCH here only means it exited in the meantime.
	_ = signaler.Signal(pid, syscall.SIGKILL)
	waitExit(exited, grace)
}

func waitExit(exited <-chan struct{}, grace time.Duration) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
		return true
	case <-timer.C:
		return false
	}
}
