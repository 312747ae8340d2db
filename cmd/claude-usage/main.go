package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/optimalversion/claude-usage/internal/config"
	"github.com/optimalversion/claude-usage/internal/locator"
	"github.com/optimalversion/claude-usage/internal/logging"
	"github.com/optimalversion/claude-usage/internal/report"
	"github.com/optimalversion/claude-usage/internal/telemetry"
	"github.com/optimalversion/claude-usage/internal/terminal"
	"github.com/optimalversion/claude-usage/internal/usage"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// errReported marks a failure whose result was already printed.
var errReported = errors.New("usage capture failed")

var (
	loadConfigFn = config.Load
	locateFn     = func(explicit string) (string, error) {
		return locator.New().Find(explicit)
	}
	captureFn = func(ctx context.Context, path string, logger *log.Logger) (string, error) {
		return terminal.New(terminal.WithLogger(logger)).Run(ctx, path)
	}
	telemetryInitFn = telemetry.Init
)

type flags struct {
	claudePath   string
	format       string
	logLevel     string
	otelEndpoint string
	raw          bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCommand(ctx)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(ctx context.Context) *cobra.Command {
	opts := &flags{}
	root := &cobra.Command{
		Use:           "claude-usage",
		Short:         "Report Claude subscription usage from the claude CLI",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = ctx
			}
			return runUsage(runCtx, cmd, opts)
		},
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.Flags().StringVar(&opts.claudePath, "claude", "", "path to the claude executable (skips discovery)")
	root.Flags().StringVar(&opts.format, "format", "", "output format: json or text")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.Flags().StringVar(&opts.otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint for traces")
	root.Flags().BoolVar(&opts.raw, "raw", false, "print the cleaned transcript instead of parsed usage")
	root.AddCommand(newBugreportCommand())

	return root
}

func runUsage(ctx context.Context, cmd *cobra.Command, opts *flags) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfigFn(ctx)
	if err != nil {
		return emit(out, config.FormatJSON, report.Failure(fmt.Errorf("load config: %w", err)))
	}
	if err := applyFlags(cmd, cfg, opts); err != nil {
		return err
	}

	logger, closeLogger := openLogger(ctx, cfg, cmd.ErrOrStderr())
	defer closeLogger()
	logger = logger.With("command", cmd.Name())

	shutdown, err := telemetryInitFn(ctx, cfg.OTELEndpoint)
	if err != nil {
		logger.With("error", err).Warn("telemetry disabled")
		shutdown = func() {}
	}
	defer shutdown()

	path, err := locateFn(cfg.ClaudePath)
	if err != nil {
		logger.With("error", err).Error("claude executable not found")
		return emit(out, cfg.Format, report.Failure(err))
	}
	logger.With("path", path).Debug("claude executable resolved")

	transcript, err := captureFn(ctx, path, logger)
	if err != nil {
		logger.With("error", err).Error("usage capture failed")
		return emit(out, cfg.Format, report.Failure(err))
	}

	if opts.raw {
		_, err := fmt.Fprintln(out, usage.Clean(transcript))
		return err
	}

	record := usage.ParseContext(ctx, transcript)
	logger.With(
		"session_percent", record.SessionPercent,
		"weekly_percent", record.WeeklyPercent,
		"sonnet_percent", record.SonnetPercent,
	).Info("usage parsed")

	return emit(out, cfg.Format, report.Success(record))
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *flags) error {
	changed := cmd.Flags().Changed
	if changed("claude") {
		cfg.ClaudePath = strings.TrimSpace(opts.claudePath)
	}
	if changed("otel-endpoint") {
		cfg.OTELEndpoint = strings.TrimSpace(opts.otelEndpoint)
	}
	if changed("format") {
		format, err := config.NormalizeFormat(opts.format)
		if err != nil {
			return err
		}
		cfg.Format = format
	}
	if changed("log-level") {
		level, err := config.NormalizeLogLevel(opts.logLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	return nil
}

// openLogger falls back to a discarding logger when the log file cannot be
// created; a logging failure never fails the run.
func openLogger(ctx context.Context, cfg *config.Config, stderr io.Writer) (*log.Logger, func()) {
	runtimeLogger, err := logging.New(ctx, logging.WithDir(cfg.LogDir), logging.WithLevel(cfg.LogLevel))
	if err != nil {
		fmt.Fprintf(stderr, "warning: file logging disabled: %v\n", err)
		return log.NewWithOptions(io.Discard, log.Options{}), func() {}
	}
	return runtimeLogger.Logger, func() {
		if closeErr := runtimeLogger.Close(); closeErr != nil {
			fmt.Fprintf(stderr, "failed to close logger: %v\n", closeErr)
		}
	}
}

func emit(out io.Writer, format string, result report.Result) error {
	var err error
	if format == config.FormatText {
		err = report.WriteText(out, result)
	} else {
		err = report.WriteJSON(out, result)
	}
	if err != nil {
		return err
	}
	if result.Failed() {
		return errReported
	}
	return nil
}
