package bundle

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/desertthunder/bundlex/internal/shared"
)

// Recognized configuration keys.
const (
	KeyInput       = "input"
	KeySourceMap   = "sourceMap"
	KeyFormat      = "format"
	KeyModuleName  = "moduleName"
	KeyExternal    = "external"
	KeyTarget      = "target"
	KeyPlatform    = "platform"
	KeyDefine      = "define"
	KeyBanner      = "banner"
	KeyFooter      = "footer"
	KeyTreeShaking = "treeShaking"
	KeyLoader      = "loader"
)

var formats = map[string]api.Format{
	"iife":     api.FormatIIFE,
	"cjs":      api.FormatCommonJS,
	"commonjs": api.FormatCommonJS,
	"es":       api.FormatESModule,
	"esm":      api.FormatESModule,
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

var platforms = map[string]api.Platform{
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

var loaders = map[string]api.Loader{
	"js":      api.LoaderJS,
	"jsx":     api.LoaderJSX,
	"ts":      api.LoaderTS,
	"tsx":     api.LoaderTSX,
	"json":    api.LoaderJSON,
	"text":    api.LoaderText,
	"base64":  api.LoaderBase64,
	"dataurl": api.LoaderDataURL,
	"file":    api.LoaderFile,
	"binary":  api.LoaderBinary,
	"css":     api.LoaderCSS,
	"copy":    api.LoaderCopy,
	"empty":   api.LoaderEmpty,
}

// Config is the typed form of a resolved configuration.
type Config struct {
	Input       []string
	SourceMap   bool
	Format      api.Format
	ModuleName  string
	External    []string
	Target      api.Target
	Platform    api.Platform
	Define      map[string]string
	Banner      string
	Footer      string
	TreeShaking api.TreeShaking
	Loader      map[string]api.Loader
	Plugins     []api.Plugin
}

// Decode converts a resolved configuration. Unknown keys are logged and
// ignored; values of the wrong type fail with [shared.ErrInvalidConfig].
func Decode(opts Options, logger *log.Logger) (*Config, error) {
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	cfg := &Config{}
	keys := slices.Sorted(maps.Keys(opts))
	for _, key := range keys {
		value := opts[key]
		var err error

		switch key {
		case PluginsKey:
			cfg.Plugins = pluginList(value)
		case KeyInput:
			cfg.Input, err = stringList(value)
		case KeySourceMap:
			cfg.SourceMap, err = sourceMapFlag(value)
		case KeyFormat:
			cfg.Format, err = lookup(formats, value)
		case KeyModuleName:
			cfg.ModuleName, err = str(value)
		case KeyExternal:
			cfg.External, err = stringList(value)
		case KeyTarget:
			cfg.Target, err = lookup(targets, value)
		case KeyPlatform:
			cfg.Platform, err = lookup(platforms, value)
		case KeyDefine:
			cfg.Define, err = defines(value)
		case KeyBanner:
			cfg.Banner, err = str(value)
		case KeyFooter:
			cfg.Footer, err = str(value)
		case KeyTreeShaking:
			cfg.TreeShaking, err = treeShaking(value)
		case KeyLoader:
			cfg.Loader, err = loaderMap(value)
		default:
			logger.Warn("ignoring unknown bundle option", "key", key)
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidConfig, key, err)
		}
	}

	if len(cfg.Input) == 0 {
		return nil, fmt.Errorf("%w: %s is required", shared.ErrInvalidConfig, KeyInput)
	}
	return cfg, nil
}

// BuildOptions converts the configuration into esbuild options. workDir must
// be absolute; outfile names the bundle esbuild produces in memory.
func (c *Config) BuildOptions(workDir, outfile string) api.BuildOptions {
	opts := api.BuildOptions{
		EntryPoints:   slices.Clone(c.Input),
		AbsWorkingDir: workDir,
		Outfile:       outfile,
		Bundle:        true,
		Write:         false,
		LogLevel:      api.LogLevelSilent,
		Format:        c.Format,
		Target:        c.Target,
		Platform:      c.Platform,
		External:      slices.Clone(c.External),
		Define:        maps.Clone(c.Define),
		TreeShaking:   c.TreeShaking,
		Loader:        maps.Clone(c.Loader),
		Plugins:       slices.Clone(c.Plugins),
		Sourcemap:     api.SourceMapNone,
	}

	if c.SourceMap {
		opts.Sourcemap = api.SourceMapInline
	}
	if c.Format == api.FormatIIFE {
		opts.GlobalName = c.ModuleName
	}
	if c.Banner != "" {
		opts.Banner = map[string]string{"js": c.Banner}
	}
	if c.Footer != "" {
		opts.Footer = map[string]string{"js": c.Footer}
	}
	return opts
}

func str(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	return s, nil
}

func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return slices.Clone(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, found %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected a string or list of strings, got %T", v)
}

// asMap accepts the table shapes produced by Go callers and by luaconf.
func asMap(v any) (map[string]any, error) {
	switch v := v.(type) {
	case map[string]any:
		return v, nil
	case Options:
		return v, nil
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a table, got %T", v)
	}
}

func sourceMapFlag(v any) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case string:
		if v == "inline" {
			return true, nil
		}
	}
	return false, fmt.Errorf(`expected a boolean or "inline", got %v`, v)
}

func lookup[T any](table map[string]T, v any) (T, error) {
	var zero T
	s, err := str(v)
	if err != nil {
		return zero, err
	}
	out, ok := table[strings.ToLower(s)]
	if !ok {
		return zero, fmt.Errorf("unsupported value %q (want one of %s)", s, strings.Join(slices.Sorted(maps.Keys(table)), ", "))
	}
	return out, nil
}

func defines(v any) (map[string]string, error) {
	m, err := asMap(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		switch val := val.(type) {
		case string:
			out[k] = val
		case bool, int, int64, float64:
			out[k] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("define %s: unsupported value %T", k, val)
		}
	}
	return out, nil
}

func treeShaking(v any) (api.TreeShaking, error) {
	b, ok := v.(bool)
	if !ok {
		return api.TreeShakingDefault, fmt.Errorf("expected a boolean, got %T", v)
	}
	if b {
		return api.TreeShakingTrue, nil
	}
	return api.TreeShakingFalse, nil
}

func loaderMap(v any) (map[string]api.Loader, error) {
	m, err := asMap(v)
	if err != nil {
		return nil, err
	}

	out := make(map[string]api.Loader, len(m))
	for _, ext := range slices.Sorted(maps.Keys(m)) {
		l, err := lookup(loaders, m[ext])
		if err != nil {
			return nil, fmt.Errorf("loader %s: %v", ext, err)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = l
	}
	return out, nil
}
