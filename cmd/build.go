package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bundlex/internal/host"
	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/ui"
)

// Build runs every task, or the tasks named as arguments, once.
func (r *Runner) Build(ctx context.Context, cmd *cli.Command) error {
	h, closeDB, err := r.newHost(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	results, err := r.runTasks(ctx, h, cmd.Args().Slice())
	for _, res := range results {
		r.writeResult(res)
	}
	return err
}

func (r *Runner) runTasks(ctx context.Context, h *host.Host, names []string) ([]*host.Result, error) {
	if len(names) == 0 {
		return h.RunAll(ctx)
	}

	var (
		results []*host.Result
		errs    []error
	)
	for _, name := range names {
		res, err := h.Run(ctx, name)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return results, errors.Join(errs...)
}

// Watch runs every task once, then re-runs tasks as their sources change until interrupted.
//
// Failed runs are reported but do not stop watch mode.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Bool("ui") {
		return r.watchWithUI(ctx, cmd)
	}

	h, closeDB, err := r.newHost(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if !cmd.Bool("skip-initial") {
		results, err := h.RunAll(ctx)
		for _, res := range results {
			r.writeResult(res)
		}
		if errors.Is(err, shared.ErrNoTasks) {
			return err
		}
	}

	if err := h.Watch(ctx); err != nil {
		return err
	}
	r.logger.Info("watch mode stopped")
	return nil
}

// watchWithUI drives watch mode from the dashboard. Logs go to --log-file so
// they do not interfere with rendering.
func (r *Runner) watchWithUI(ctx context.Context, cmd *cli.Command) error {
	logger, f, err := shared.NewFileLogger(r.abs(cmd.String("log-file")))
	if err != nil {
		return err
	}
	defer f.Close()
	shared.SetLogLevel(logger, shared.ParseLogLevel(r.config.LogLevel))
	r.SetLogger(logger)

	events := make(chan host.Event, 64)
	h, closeDB, err := r.newHost(cmd, host.WithEvents(events))
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		defer close(events)
		if !cmd.Bool("skip-initial") {
			if _, err := h.RunAll(ctx); errors.Is(err, shared.ErrNoTasks) {
				errc <- err
				return
			}
		}
		errc <- h.Watch(ctx)
	}()

	p := tea.NewProgram(ui.NewModel(ctx, cancel, h.Tasks(), events), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-errc
		return fmt.Errorf("error running dashboard: %w", err)
	}

	cancel()
	return <-errc
}
