package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/desertthunder/bundlex/internal/bundle"
	"github.com/desertthunder/bundlex/internal/host"
	"github.com/desertthunder/bundlex/internal/repositories"
	"github.com/desertthunder/bundlex/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	workDir    string
	bundler    bundle.Bundler
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	WorkDir    string
	Bundler    bundle.Bundler // defaults to esbuild
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.WorkDir = wd
		} else {
			opts.WorkDir = "."
		}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		workDir:    opts.WorkDir,
		bundler:    opts.Bundler,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// command builds the root CLI command.
func (r *Runner) command() *cli.Command {
	return &cli.Command{
		Name:     "bundlex",
		Usage:    "Bundle JavaScript with esbuild, once or on every change",
		Version:  "0.1.0",
		Flags:    []cli.Flag{configFlag()},
		Before:   r.loadConfig,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		buildCommand, watchCommand, historyCommand, tasksCommand, setupCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by commands and the tasks they create.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads the configuration file named by --config.
//
// A missing default file keeps the current configuration; a missing file
// the user asked for is an error.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path == "" {
		path = shared.DefaultConfigPath
	}
	r.configPath = r.abs(path)

	if _, err := os.Stat(r.configPath); err != nil {
		if cmd.IsSet("config") {
			return ctx, fmt.Errorf("%w: %s", shared.ErrMissingConfig, r.configPath)
		}
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	} else {
		cfg, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = cfg
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.LogLevel))
	return ctx, nil
}

// settings combines the config file with command flags.
func (r *Runner) settings(cmd *cli.Command) host.Settings {
	s := host.Settings{Production: r.config.Production, SourceMaps: r.config.SourceMaps}
	if cmd.IsSet("production") {
		s.Production = cmd.Bool("production")
	}
	if cmd.IsSet("sourcemaps") {
		s.SourceMaps = cmd.Bool("sourcemaps")
	}
	return s
}

// newHost creates a host with every configured task registered.
//
// Runs are recorded in the history database unless --no-history is set.
// The returned func closes the database.
func (r *Runner) newHost(cmd *cli.Command, extra ...host.Option) (*host.Host, func(), error) {
	settings := r.settings(cmd)
	watch := r.config.Watch

	limit := rate.Limit(watch.RatePerSec)
	if watch.RatePerSec <= 0 {
		limit = rate.Inf
	}
	opts := []host.Option{
		host.WithLogger(r.logger),
		host.WithSettings(settings),
		host.WithWorkDir(r.workDir),
		host.WithRateLimit(limit, max(watch.Burst, 1)),
	}
	if d := watch.Debounce(); d > 0 {
		opts = append(opts, host.WithDebounce(d))
	}

	closeDB := func() {}
	if !cmd.Bool("no-history") && r.config.Database.Path != "" {
		db, err := r.openHistory()
		if err != nil {
			r.logger.Warn("run history disabled", "error", err)
		} else {
			opts = append(opts, host.WithRecorder(repositories.NewRunRepository(db)))
			closeDB = func() { db.Close() }
		}
	}

	h := host.New(append(opts, extra...)...)
	for _, tc := range r.config.Tasks {
		task, err := r.newTask(tc, settings)
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("%s: %w", tc.Name, err)
		}
		if err := h.Register(task); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return h, closeDB, nil
}

func (r *Runner) newTask(tc shared.TaskConfig, settings host.Settings) (*bundle.Task, error) {
	base := tc.SrcBase
	if base == "" {
		base = filepath.Dir(tc.Src)
	}
	paths := host.Paths{
		SrcBaseDir: base,
		SrcPath:    tc.Src,
		OutputDir:  tc.OutputDir,
		OutputName: tc.OutputName,
	}

	opts := []bundle.Option{
		bundle.WithLogger(r.logger),
		bundle.WithWorkDir(r.workDir),
		bundle.WithSettings(settings),
	}
	if r.bundler != nil {
		opts = append(opts, bundle.WithBundler(r.bundler))
	}
	return bundle.New(tc.Name, paths, bundle.Options(maps.Clone(tc.Options)), opts...)
}

func (r *Runner) openHistory() (*sql.DB, error) {
	cfg := r.config.Database
	cfg.Path = r.abs(cfg.Path)
	return shared.OpenHistory(cfg)
}

func (r *Runner) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.workDir, path)
}

func (r *Runner) writeResult(res *host.Result) {
	status := styles.ok.Render("✓")
	if res.Err != nil {
		status = styles.fail.Render("✗")
		if errors.Is(res.Err, context.Canceled) {
			status = styles.muted.Render("-")
		}
	}

	r.writePlain("%s %s %s\n", status, res.Task, styles.muted.Render(formatDuration(res.Duration)))
	for _, out := range res.Outputs {
		r.writePlain("    %s\n", relativeTo(r.workDir, out))
	}
	if res.Err != nil {
		r.writePlain("    %s\n", res.Err)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

func relativeTo(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
