package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName           = "claude-usage/terminal"
	maxInputEventLength  = 64
	termEnvironmentKey   = "TERM"
	termEnvironmentEntry = termEnvironmentKey + "=" + TermType
)

// Option configures a Driver.
type Option func(*Driver)

// WithLauncher replaces the pseudo-terminal launcher.
func WithLauncher(launcher Launcher) Option {
	return func(d *Driver) {
		if launcher != nil {
			d.launcher = launcher
		}
	}
}

// WithScript replaces DefaultScript.
func WithScript(script []Step) Option {
	return func(d *Driver) {
		d.script = append([]Step(nil), script...)
	}
}

// WithLogger sets the logger used for session diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEnviron sets the base environment handed to the child. TERM is always
// overridden.
func WithEnviron(env []string) Option {
	return func(d *Driver) {
		d.environ = func() []string { return append([]string(nil), env...) }
	}
}

// Driver runs the usage script against the interactive CLI.
type Driver struct {
	launcher Launcher
	script   []Step
	logger   *log.Logger
	environ  func() []string
	now      func() time.Time
}

// New builds a Driver that uses a real pseudo-terminal and DefaultScript.
func New(options ...Option) *Driver {
	d := &Driver{
		launcher: PTYLauncher{},
		script:   DefaultScript(),
		logger:   log.New(io.Discard),
		environ:  os.Environ,
		now:      time.Now,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(d)
	}
	return d
}

// Run launches the executable at path, plays the script and returns the raw
// transcript. An empty path fails with ErrTargetNotFound before anything is
// spawned. Once the session is open, teardown runs on every return path.
func (d *Driver) Run(ctx context.Context, path string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer(tracerName).Start(
		ctx,
		"terminal.session",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int("steps", len(d.script)),
		),
	)
	defer span.End()

	transcript, err := d.run(ctx, span, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("transcript_bytes", len(transcript)))
	span.SetStatus(codes.Ok, "session completed")
	return transcript, nil
}

func (d *Driver) run(ctx context.Context, span trace.Span, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrTargetNotFound
	}
	if err := validateScript(d.script); err != nil {
		return "", sessionError("validate script", err)
	}

	logger := d.logger
	if sc := span.SpanContext(); sc.HasTraceID() {
		logger = logger.With("trace_id", sc.TraceID().String())
	}

	started := d.now()
	sess, err := Open(d.launcher, path, childEnv(d.environ()), logger)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	logger.Info("session started", "path", path, "steps", len(d.script))

	for i, step := range d.script {
		if err := ctx.Err(); err != nil {
			return "", sessionError(fmt.Sprintf("step %d", i), err)
		}
		switch step.Kind {
		case StepWrite:
			span.AddEvent("terminal.write", trace.WithAttributes(
				attribute.Int("step", i),
				attribute.String("input", truncate(step.Input, maxInputEventLength)),
			))
			logger.Debug("script step", "step", i, "action", step.String())
			if err := sess.Send(step.Input); err != nil {
				return "", err
			}
		case StepWait:
			collected := sess.Collect(ctx, step.Window)
			span.AddEvent("terminal.wait", trace.WithAttributes(
				attribute.Int("step", i),
				attribute.Int64("window_ms", step.Window.Milliseconds()),
				attribute.Int("bytes", collected),
			))
			logger.Debug("script step", "step", i, "action", step.String(), "bytes", collected)
		}
	}

	sess.Close()
	transcript := sess.Transcript()
	logger.Info(
		"session finished",
		"bytes", len(transcript),
		"duration", d.now().Sub(started).Round(time.Millisecond),
	)
	return transcript, nil
}

func validateScript(script []Step) error {
	for i, step := range script {
		switch step.Kind {
		case StepWrite, StepWait:
		default:
			return fmt.Errorf("step %d: unknown kind %q", i, string(step.Kind))
		}
	}
	return nil
}

// childEnv copies env with TERM forced to TermType.
func childEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, termEnvironmentKey+"=") {
			continue
		}
		out = append(out, entry)
	}
	return append(out, termEnvironmentEntry)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "...(truncated)"
}
