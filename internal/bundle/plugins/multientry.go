package plugins

import (
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"
)

const (
	MultiEntryNamespace = "multi-entry"
	// MultiEntryPath is the virtual entry point that replaces the real ones.
	MultiEntryPath = "bundlex:multi-entry"
)

// MultiEntryOptions configures [MultiEntry].
type MultiEntryOptions struct {
	// NoExports imports each entry for its side effects only.
	NoExports bool
}

// MultiEntry turns several entry points, or glob entry points, into one
// virtual entry that imports every matched file in order. A single plain
// entry is left alone.
func MultiEntry(opts MultiEntryOptions) api.Plugin {
	return api.Plugin{
		Name: MultiEntryName,
		Setup: func(build api.PluginBuild) {
			o := build.InitialOptions
			if !needsMultiEntry(o.EntryPoints) {
				return
			}

			base := workDir(o)
			files := ExpandEntries(base, o.EntryPoints)
			contents := entrySource(files, !opts.NoExports)
			o.EntryPoints = []string{MultiEntryPath}

			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(MultiEntryPath) + "$"},
				func(api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: MultiEntryPath, Namespace: MultiEntryNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: MultiEntryNamespace},
				func(api.OnLoadArgs) (api.OnLoadResult, error) {
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: base,
						Loader:     api.LoaderJS,
					}, nil
				})
		},
	}
}

// ExpandEntries resolves entries against base and expands globs. Matches
// keep the order of the entries that produced them, sorted within one glob
// and without duplicates. A pattern that matches nothing is kept as is so
// esbuild reports it.
func ExpandEntries(base string, entries []string) []string {
	var files []string
	for _, e := range entries {
		abs := absolute(base, e)
		if !hasMeta(e) {
			if !slices.Contains(files, abs) {
				files = append(files, abs)
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(abs, doublestar.WithFilesOnly())
		if err != nil || len(matches) == 0 {
			files = append(files, abs)
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			if !slices.Contains(files, m) {
				files = append(files, m)
			}
		}
	}
	return files
}

func entrySource(files []string, exports bool) string {
	var b strings.Builder
	for _, f := range files {
		spec := strconv.Quote(filepath.ToSlash(f))
		if exports {
			b.WriteString("export * from " + spec + ";\n")
		} else {
			b.WriteString("import " + spec + ";\n")
		}
	}
	return b.String()
}

func needsMultiEntry(entries []string) bool {
	if len(entries) > 1 {
		return true
	}
	return len(entries) == 1 && hasMeta(entries[0])
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
