// # internal/core/app/watch.go
package app

import (
	"context"
	"log/slog"
	"os"

	"depaudit/internal/core/errors"
	"depaudit/internal/core/watcher"
	"depaudit/internal/shared/observability"
	"depaudit/internal/shared/util"
)

// Watch runs a full analysis and then re-analyses the client classes each
// time class files change, until ctx is cancelled. Re-runs are debounced by
// the watcher and throttled to watch.max_runs_per_minute. Failed re-runs are
// reported to onRun and do not stop the loop.
func (a *App) Watch(ctx context.Context, onRun func(*Report, error)) error {
	if onRun == nil {
		onRun = func(*Report, error) {}
	}

	rep, err := a.Analyze(ctx)
	onRun(rep, err)
	if err != nil {
		return err
	}

	dirs := a.watchDirs()
	if len(dirs) == 0 {
		return errors.New(errors.CodeNotFound, "no class directory to watch")
	}

	trigger := make(chan struct{}, 1)
	w, err := watcher.NewWatcher(a.Config.Watch.Debounce, nil, nil, func(paths []string) {
		slog.Debug("class files changed", "count", len(paths))
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "start watcher")
	}
	defer w.Close()
	w.SetIgnore(a.ignored)

	if err := w.Watch(ctx, dirs); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "watch class directories")
	}
	slog.Info("watching class directories", "dirs", dirs)

	limiter := util.NewRunLimiter(a.Config.Watch.MaxRunsPerMinute)
	limiter.Allow() // the initial run spends the first token

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
		}

		if !limiter.Allow() {
			observability.RunsThrottledTotal.Inc()
			slog.Info("re-run throttled", "delay", limiter.Delay())
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		rep, err := a.Reanalyze(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Warn("re-analysis failed", "error", err)
		}
		onRun(rep, err)
	}
}

func (a *App) watchDirs() []string {
	candidates := append([]string(nil), a.Paths.ClassesDirs...)
	if a.Config.Project.IncludeTests {
		candidates = append(candidates, a.Paths.TestClassesDirs...)
	}
	var dirs []string
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
