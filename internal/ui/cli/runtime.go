package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreapp "depaudit/internal/core/app"
	"depaudit/internal/core/config"
	"depaudit/internal/core/errors"
	"depaudit/internal/shared/observability"
	"depaudit/internal/ui/report"

	"github.com/spf13/cobra"
)

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	switch {
	case errors.IsCode(err, errors.CodeValidationError):
		return 2
	case errors.IsCode(err, errors.CodeBuildFailed):
		return 3
	default:
		return 1
	}
}

func configureLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// loadConfig reads .env, the config file (or defaults when it does not
// exist) and environment overrides, then applies command line flags.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "load config"), errors.CtxPath, opts.configPath)
	}
	config.ApplyEnvOverrides(cfg)

	if opts.includeTests {
		cfg.Project.IncludeTests = true
	}
	if opts.noBuild {
		off := false
		cfg.Build.RunBuild = &off
	}
	if opts.noCompile {
		off := false
		cfg.Build.Compile = &off
	}

	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid config")
	}
	return cfg, nil
}

// runtime is an App plus the process-level services started around it.
type runtime struct {
	app      *coreapp.App
	server   *ObservabilityServer
	shutdown func(context.Context) error
}

func startRuntime(ctx context.Context, opts *cliOptions) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}

	a, err := coreapp.New(cfg, cwd)
	if err != nil {
		return nil, err
	}
	rt := &runtime{app: a}

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint, cfg.Observability.OTLPInsecure)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		rt.shutdown = shutdown
	}

	if cfg.Observability.MetricsAddr != "" {
		rt.server = NewObservabilityServer(cfg.Observability.MetricsAddr, coreapp.NewHealthService(a))
		if err := rt.server.Start(ctx); err != nil {
			rt.close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rt.server != nil {
		if err := rt.server.Stop(ctx); err != nil {
			slog.Warn("failed to stop observability server", "error", err)
		}
	}
	if rt.shutdown != nil {
		if err := rt.shutdown(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}
	if err := rt.app.Close(); err != nil {
		slog.Warn("failed to close app", "error", err)
	}
}

func newAnalyzeCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := startRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.close()

			rep, err := rt.app.Analyze(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.RenderSummary(rep.Summary()))
			return nil
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func newWatchCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Analyse once, then re-analyse whenever compiled classes change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := startRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			return rt.app.Watch(ctx, func(rep *coreapp.Report, err error) {
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "analysis failed:", err)
					return
				}
				fmt.Fprintln(out, report.RenderSummary(rep.Summary()))
			})
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}
