package stream

import (
	"context"
	"io"
	"path/filepath"

	"github.com/desertthunder/bundlex/internal/sourcemap"
)

// File is a single build artifact moving through a [Pipeline].
type File struct {
	Path      string         // path relative to Base, or absolute
	Base      string         // directory Path is resolved against
	Contents  []byte         // buffered contents, nil while streaming
	Reader    io.ReadCloser  // open stream, nil once buffered
	SourceMap *sourcemap.Map // map attached by InitSourceMaps
}

// NewFile returns a buffered file.
func NewFile(path string, contents []byte) *File {
	return &File{Path: path, Contents: contents}
}

// NewStreamFile returns a file backed by an open reader.
func NewStreamFile(path string, r io.ReadCloser) *File {
	return &File{Path: path, Reader: r}
}

// Name returns the last element of the file's path.
func (f *File) Name() string {
	return filepath.Base(f.Path)
}

// FullPath joins Base and Path unless Path is already absolute.
func (f *File) FullPath() string {
	if filepath.IsAbs(f.Path) || f.Base == "" {
		return f.Path
	}
	return filepath.Join(f.Base, f.Path)
}

// IsStream reports whether the file still holds an unread reader.
func (f *File) IsStream() bool {
	return f.Reader != nil
}

// Close releases the reader of a streaming file.
func (f *File) Close() error {
	if f.Reader == nil {
		return nil
	}
	err := f.Reader.Close()
	f.Reader = nil
	return err
}

// Source produces the files a pipeline starts from.
type Source func(ctx context.Context) ([]*File, error)

// Stage transforms the full set of files produced by the previous stage.
type Stage interface {
	Name() string
	Process(ctx context.Context, files []*File) ([]*File, error)
}

// ErrorHandler receives the first error raised by a pipeline.
type ErrorHandler func(err error)

type funcStage struct {
	name string
	fn   func(ctx context.Context, files []*File) ([]*File, error)
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Process(ctx context.Context, files []*File) ([]*File, error) {
	return s.fn(ctx, files)
}

// StageFunc adapts a function into a named [Stage].
func StageFunc(name string, fn func(ctx context.Context, files []*File) ([]*File, error)) Stage {
	return funcStage{name: name, fn: fn}
}

// EachFile builds a stage that applies fn to every file independently.
func EachFile(name string, fn func(ctx context.Context, f *File) (*File, error)) Stage {
	return StageFunc(name, func(ctx context.Context, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files))
		for _, f := range files {
			next, err := fn(ctx, f)
			if err != nil {
				return nil, err
			}
			if next != nil {
				out = append(out, next)
			}
		}
		return out, nil
	})
}

func closeAll(files []*File) {
	for _, f := range files {
		_ = f.Close()
	}
}
