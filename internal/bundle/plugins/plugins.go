// Package plugins provides the esbuild plugins every bundle task runs with.
//
// Plugins only fill in build options the caller left unset, so values from
// the project configuration or task options always win.
package plugins

import (
	"maps"
	"slices"

	"github.com/evanw/esbuild/pkg/api"
)

const (
	NodeResolveName = "node-resolve"
	CommonJSName    = "commonjs"
	ReplaceName     = "replace"
	DownlevelName   = "downlevel"
	MultiEntryName  = "multi-entry"
)

// ResolveOptions configures [NodeResolve].
type ResolveOptions struct {
	Browser bool // prefer the package.json "browser" field
}

// NodeResolve sets the package.json fields esbuild reads when resolving bare imports.
func NodeResolve(opts ResolveOptions) api.Plugin {
	fields := []string{"module", "main"}
	if opts.Browser {
		fields = []string{"browser", "module", "main"}
	}

	return api.Plugin{
		Name: NodeResolveName,
		Setup: func(build api.PluginBuild) {
			o := build.InitialOptions
			if len(o.MainFields) == 0 {
				o.MainFields = slices.Clone(fields)
			}
			if opts.Browser && o.Platform == api.PlatformDefault {
				o.Platform = api.PlatformBrowser
			}
		},
	}
}

// Replace substitutes each key with its value as a JavaScript expression.
// Keys already defined by the caller are left alone.
func Replace(values map[string]string) api.Plugin {
	values = maps.Clone(values)

	return api.Plugin{
		Name: ReplaceName,
		Setup: func(build api.PluginBuild) {
			o := build.InitialOptions
			if o.Define == nil {
				o.Define = make(map[string]string, len(values))
			}
			for k, v := range values {
				if _, ok := o.Define[k]; !ok {
					o.Define[k] = v
				}
			}
		},
	}
}

// DefaultTarget is the language level [Downlevel] lowers to when none is set.
const DefaultTarget = api.ES2015

// DownlevelOptions configures [Downlevel]. A zero Target means [DefaultTarget].
type DownlevelOptions struct {
	Target api.Target
}

// Downlevel lowers newer syntax to the target language level.
func Downlevel(opts DownlevelOptions) api.Plugin {
	target := opts.Target
	if target == api.DefaultTarget {
		target = DefaultTarget
	}

	return api.Plugin{
		Name: DownlevelName,
		Setup: func(build api.PluginBuild) {
			if build.InitialOptions.Target == api.DefaultTarget {
				build.InitialOptions.Target = target
			}
		},
	}
}

// Names returns the plugin names in order.
func Names(ps []api.Plugin) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}
