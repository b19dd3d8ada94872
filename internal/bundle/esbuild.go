package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/desertthunder/bundlex/internal/shared"
)

// Bundler runs a build and returns the bundled script.
type Bundler interface {
	Bundle(ctx context.Context, opts api.BuildOptions) (io.ReadCloser, error)
}

// BundleError carries the esbuild diagnostics of a failed build.
type BundleError struct {
	Messages []api.Message
	Reason   string // set when esbuild reported no messages
}

func (e *BundleError) Error() string {
	formatted := api.FormatMessages(e.Messages, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	detail := strings.TrimSpace(strings.Join(formatted, "\n"))
	if detail == "" {
		detail = e.Reason
	}
	if detail == "" {
		return shared.ErrBundle.Error()
	}
	return fmt.Sprintf("%v: %s", shared.ErrBundle, detail)
}

func (e *BundleError) Unwrap() error {
	return shared.ErrBundle
}

// ESBuild bundles with esbuild in memory.
type ESBuild struct {
	Logger *log.Logger // receives esbuild warnings
}

// Bundle builds opts with a cancellable esbuild context and returns the JavaScript output file.
func (b ESBuild) Bundle(ctx context.Context, opts api.BuildOptions) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.Write = false

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return nil, &BundleError{Messages: cerr.Errors}
	}
	defer bctx.Dispose()

	stop := context.AfterFunc(ctx, bctx.Cancel)
	defer stop()

	result := bctx.Rebuild()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.warn(result.Warnings)

	if len(result.Errors) > 0 {
		return nil, &BundleError{Messages: result.Errors}
	}

	for _, f := range result.OutputFiles {
		switch filepath.Ext(f.Path) {
		case ".js", ".mjs", ".cjs":
			return io.NopCloser(bytes.NewReader(f.Contents)), nil
		}
	}
	return nil, &BundleError{Reason: "esbuild produced no JavaScript output"}
}

func (b ESBuild) warn(msgs []api.Message) {
	if b.Logger == nil || len(msgs) == 0 {
		return
	}
	for _, m := range api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		b.Logger.Warn(strings.TrimSpace(m))
	}
}
