// package minify compresses JavaScript build output with esbuild's transform API.
package minify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/sourcemap"
	"github.com/desertthunder/bundlex/internal/stream"
)

// StageName is the name the minify stage reports in a pipeline.
const StageName = "minify"

// Options selects which esbuild minifications run.
type Options struct {
	Whitespace  bool
	Identifiers bool
	Syntax      bool
	Target      api.Target // zero keeps esbuild's default (esnext)
}

// DefaultOptions enables every minification.
func DefaultOptions() Options {
	return Options{Whitespace: true, Identifiers: true, Syntax: true}
}

// MinifyError carries the esbuild diagnostics for a file that failed to minify.
type MinifyError struct {
	File     string
	Messages []api.Message
}

func (e *MinifyError) Error() string {
	formatted := api.FormatMessages(e.Messages, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	detail := strings.TrimSpace(strings.Join(formatted, "\n"))
	if detail == "" {
		return fmt.Sprintf("%v: %s", shared.ErrMinify, e.File)
	}
	return fmt.Sprintf("%v: %s\n%s", shared.ErrMinify, e.File, detail)
}

func (e *MinifyError) Unwrap() error {
	return shared.ErrMinify
}

// Code minifies code, chaining the returned map onto m when m carries mappings.
func Code(name string, code []byte, m *sourcemap.Map, opts Options) ([]byte, *sourcemap.Map, error) {
	input := string(code)
	if !m.Empty() {
		comment, err := m.InlineComment()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", shared.ErrSourceMap, err)
		}
		input = strings.TrimRight(input, "\n") + "\n" + comment + "\n"
	}

	result := api.Transform(input, api.TransformOptions{
		MinifyWhitespace:  opts.Whitespace,
		MinifyIdentifiers: opts.Identifiers,
		MinifySyntax:      opts.Syntax,
		Target:            opts.Target,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        name,
		Loader:            api.LoaderJS,
	})
	if len(result.Errors) > 0 {
		return nil, nil, &MinifyError{File: name, Messages: result.Errors}
	}

	if len(result.Map) == 0 {
		return result.Code, m, nil
	}
	out, err := sourcemap.Parse(result.Map)
	if err != nil {
		return nil, nil, err
	}
	out.File = filepath.Base(name)
	return result.Code, out, nil
}

// Stage minifies every JavaScript file in the pipeline. Other files pass through.
func Stage(opts Options) stream.Stage {
	return stream.EachFile(StageName, func(_ context.Context, f *stream.File) (*stream.File, error) {
		if !isScript(f.Path) {
			return f, nil
		}
		if f.IsStream() {
			return nil, fmt.Errorf("%w: %s", shared.ErrStreamFile, f.Path)
		}

		code, m, err := Code(f.Name(), f.Contents, f.SourceMap, opts)
		if err != nil {
			return nil, err
		}
		f.Contents = code
		f.SourceMap = m
		return f, nil
	})
}

func isScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}
