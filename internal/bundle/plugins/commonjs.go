package plugins

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"
)

var cjsMarkers = [][]byte{
	[]byte("require("),
	[]byte("module.exports"),
	[]byte("exports."),
}

// CommonJSOptions configures [CommonJS].
type CommonJSOptions struct {
	// Include lists globs, relative to the build's working directory, of files to inspect.
	// Empty means every script.
	Include []string
	// OnDetect is called with the path of every file detected as CommonJS.
	OnDetect func(path string)
}

// CommonJS loads CommonJS scripts matching Include through esbuild's
// require/module.exports interop so ES modules can import them.
func CommonJS(opts CommonJSOptions) api.Plugin {
	return api.Plugin{
		Name: CommonJSName,
		Setup: func(build api.PluginBuild) {
			base := workDir(build.InitialOptions)
			include := make([]string, len(opts.Include))
			for i, p := range opts.Include {
				include[i] = filepath.ToSlash(absolute(base, p))
			}

			build.OnLoad(api.OnLoadOptions{Filter: `\.c?js$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				if args.Namespace != "" && args.Namespace != "file" {
					return api.OnLoadResult{}, nil
				}
				if !included(include, args.Path) {
					return api.OnLoadResult{}, nil
				}

				src, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				if !IsCommonJS(src) {
					return api.OnLoadResult{}, nil
				}
				if opts.OnDetect != nil {
					opts.OnDetect(args.Path)
				}

				contents := string(src)
				return api.OnLoadResult{
					Contents:   &contents,
					ResolveDir: filepath.Dir(args.Path),
					Loader:     loaderFor(build.InitialOptions.Loader, args.Path),
				}, nil
			})
		},
	}
}

// loaderFor returns the loader the build configured for path's extension, JS when none is set.
func loaderFor(loaders map[string]api.Loader, path string) api.Loader {
	if l, ok := loaders[filepath.Ext(path)]; ok && l != api.LoaderNone {
		return l
	}
	return api.LoaderJS
}

// IsCommonJS reports whether src uses require or module.exports.
func IsCommonJS(src []byte) bool {
	for _, m := range cjsMarkers {
		if bytes.Contains(src, m) {
			return true
		}
	}
	return false
}

func included(globs []string, path string) bool {
	if len(globs) == 0 {
		return true
	}
	path = filepath.ToSlash(path)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

func workDir(o *api.BuildOptions) string {
	if o.AbsWorkingDir != "" {
		return o.AbsWorkingDir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func absolute(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
