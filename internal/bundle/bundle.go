// package bundle implements the bundle task: it assembles the default esbuild
// plugins, merges configuration and pipes esbuild's output through the host's
// source map, minify and output stages.
package bundle

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/desertthunder/bundlex/internal/bundle/plugins"
	"github.com/desertthunder/bundlex/internal/host"
	"github.com/desertthunder/bundlex/internal/luaconf"
	"github.com/desertthunder/bundlex/internal/minify"
	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/sourcemap"
	"github.com/desertthunder/bundlex/internal/stream"
)

const (
	// PluginsKey holds extra esbuild plugins in [Options].
	PluginsKey = "plugins"
	// DefaultModuleName is the global an iife bundle is assigned to.
	DefaultModuleName = "BundlexBundle"
)

// Options maps bundler option names to values.
type Options map[string]any

// Env is the host state the default plugins depend on.
type Env struct {
	SrcBaseDir string
	Production bool
	Logger     *log.Logger // receives CommonJS detections at debug level
}

// AssemblePlugins returns opts without [PluginsKey] and the plugin list: the
// five defaults in fixed order followed by the caller's plugins. opts is not modified.
func AssemblePlugins(opts Options, env Env) (Options, []api.Plugin) {
	commonjs := plugins.CommonJSOptions{
		Include: []string{"node_modules/**", strings.TrimSuffix(env.SrcBaseDir, "/") + "/**"},
	}
	if env.Logger != nil {
		logger := env.Logger
		commonjs.OnDetect = func(path string) { logger.Debug("loading CommonJS module", "path", path) }
	}

	list := []api.Plugin{
		plugins.NodeResolve(plugins.ResolveOptions{Browser: true}),
		plugins.CommonJS(commonjs),
		plugins.Replace(map[string]string{"process.env.NODE_ENV": strconv.FormatBool(env.Production)}),
		plugins.Downlevel(plugins.DownlevelOptions{}),
		plugins.MultiEntry(plugins.MultiEntryOptions{}),
	}

	rest := maps.Clone(opts)
	if rest == nil {
		rest = Options{}
	}
	if user, ok := rest[PluginsKey]; ok {
		list = append(list, pluginList(user)...)
		delete(rest, PluginsKey)
	}
	return rest, list
}

// pluginList accepts a plugin, a slice of plugins or a mixed list and drops anything else.
func pluginList(v any) []api.Plugin {
	switch v := v.(type) {
	case api.Plugin:
		return []api.Plugin{v}
	case []api.Plugin:
		return append([]api.Plugin(nil), v...)
	case []any:
		var out []api.Plugin
		for _, item := range v {
			if p, ok := item.(api.Plugin); ok {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// Merge overlays each layer onto base in order. [PluginsKey] is never copied
// from a layer; the result holds list instead.
func Merge(base Options, list []api.Plugin, layers ...Options) Options {
	out := maps.Clone(base)
	if out == nil {
		out = Options{}
	}
	for _, layer := range layers {
		for k, v := range layer {
			if k == PluginsKey {
				continue
			}
			out[k] = v
		}
	}
	out[PluginsKey] = list
	return out
}

// PluginNames lists the names of the plugins held under [PluginsKey].
func (o Options) PluginNames() []string {
	return plugins.Names(pluginList(o[PluginsKey]))
}

// Task bundles one entry (or set of entries) into a single script.
type Task struct {
	*host.Base

	paths   host.Paths
	opts    Options
	project Options

	bundler    Bundler
	workDir    string
	configFile string
	settings   host.Settings
	logger     *log.Logger
}

// Option configures a [Task].
type Option func(*Task)

// WithBundler replaces the esbuild bundler.
func WithBundler(b Bundler) Option {
	return func(t *Task) { t.bundler = b }
}

// WithConfigFile loads the project configuration from path instead of looking it up.
func WithConfigFile(path string) Option {
	return func(t *Task) { t.configFile = path }
}

// WithLogger sets the task logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Task) { t.logger = l }
}

// WithWorkDir resolves relative paths and the project configuration against dir.
func WithWorkDir(dir string) Option {
	return func(t *Task) { t.workDir = dir }
}

// WithSettings sets the production and source map switches.
func WithSettings(s host.Settings) Option {
	return func(t *Task) { t.settings = s }
}

// New creates a bundle task. The project configuration file is evaluated
// once here and reused by every run; a missing file is not an error.
func New(name string, paths host.Paths, opts Options, options ...Option) (*Task, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: task name is required", shared.ErrInvalidInput)
	}
	if err := paths.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	t := &Task{paths: paths, opts: opts}
	for _, opt := range options {
		opt(t)
	}
	if t.opts == nil {
		t.opts = Options{}
	}
	if t.logger == nil {
		t.logger = shared.DiscardLogger()
	}
	if t.workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		t.workDir = wd
	}
	if abs, err := filepath.Abs(t.workDir); err == nil {
		t.workDir = abs
	}

	t.Base = host.NewBase(name, t.settings, t.logger)
	if t.bundler == nil {
		t.bundler = ESBuild{Logger: t.Logger()}
	}

	if err := t.loadProjectConfig(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task) loadProjectConfig() error {
	path := t.configFile
	if path == "" {
		found, ok := luaconf.Find(t.workDir)
		if !ok {
			return nil
		}
		path = found
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(t.workDir, path)
	}

	cfg, err := luaconf.Load(path,
		luaconf.WithLogger(t.Logger()),
		luaconf.WithGlobals(map[string]any{"production": t.InProduction()}),
	)
	if err != nil {
		return err
	}
	t.project = Options(cfg)
	t.Logger().Debug("loaded project configuration", "path", path, "keys", len(cfg))
	return nil
}

// Paths returns the task's input and output locations.
func (t *Task) Paths() host.Paths { return t.paths }

// Options returns the caller's options. The map is shared; edits apply to the next run.
func (t *Task) Options() Options { return t.opts }

// ProjectConfig returns the cached project configuration, nil when there is none.
func (t *Task) ProjectConfig() Options { return maps.Clone(t.project) }

// ResolveConfig merges the defaults, the project configuration and the task
// options, in increasing precedence. It is recomputed on every call.
func (t *Task) ResolveConfig() Options {
	rest, list := AssemblePlugins(t.opts, Env{
		SrcBaseDir: t.abs(t.paths.SrcBaseDir),
		Production: t.InProduction(),
		Logger:     t.Logger(),
	})

	defaults := Options{
		KeyInput:      t.paths.SrcPath,
		KeySourceMap:  true,
		KeyFormat:     "iife",
		KeyModuleName: DefaultModuleName,
	}
	return Merge(defaults, list, t.project, rest)
}

// Build returns the pipeline for one run. The configuration is decoded once
// here; a decode error is reported by the pipeline's source.
func (t *Task) Build() *stream.Pipeline {
	t.ResetSteps()
	t.RecordStep("Transforming ES2015 to ES5")
	t.RecordStep("Bundling")

	cfg, err := Decode(t.ResolveConfig(), t.Logger())
	return stream.From(func(ctx context.Context) ([]*stream.File, error) {
		if err != nil {
			return nil, err
		}
		return t.bundle(ctx, cfg)
	}).
		OnError(t.OnError()).
		Pipe(stream.Named(t.paths.OutputName)).
		Pipe(stream.Buffer()).
		Pipe(t.InitSourceMaps(sourcemap.LoadOptions{LoadMaps: true, LargeFile: true})).
		Pipe(t.Minify(minifyOptions(cfg))).
		OnError(t.OnError()).
		Pipe(t.WriteSourceMaps()).
		Pipe(t.SaveAs(t.abs(t.paths.OutputDir)))
}

// minifyOptions keeps the minifier at the bundle's language target so it
// cannot reintroduce syntax the downlevel step removed.
func minifyOptions(cfg *Config) minify.Options {
	opts := minify.DefaultOptions()
	opts.Target = plugins.DefaultTarget
	if cfg != nil && cfg.Target != api.DefaultTarget {
		opts.Target = cfg.Target
	}
	return opts
}

// bundle runs the bundler and yields its output as a single streaming file.
func (t *Task) bundle(ctx context.Context, cfg *Config) ([]*stream.File, error) {
	opts := cfg.BuildOptions(t.workDir, t.abs(t.paths.OutputPath()))
	r, err := t.bundler.Bundle(ctx, opts)
	if err != nil {
		return nil, err
	}
	return []*stream.File{stream.NewStreamFile(t.paths.OutputName, r)}, nil
}

// RegisterWatchers re-runs the task when scripts or components under the
// source base change, ignoring the task's own output.
func (t *Task) RegisterWatchers(w host.WatchRegistrar) {
	base := t.paths.SrcBaseDir
	for _, ext := range []string{"js", "vue", "jsx"} {
		w.Watch(filepath.Join(base, "**", "*."+ext)).Ignore(t.paths.OutputPath())
	}
}

func (t *Task) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(t.workDir, p)
}

var _ host.Task = (*Task)(nil)
