package stream

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/sourcemap"
)

// Stage names used by the built-in stages.
const (
	StageNamed           = "named"
	StageBuffer          = "buffer"
	StageInitSourceMaps  = "init-sourcemaps"
	StageWriteSourceMaps = "write-sourcemaps"
	StageDest            = "dest"
)

// Named renames every file to name, keeping its directory.
func Named(name string) Stage {
	return EachFile(StageNamed, func(_ context.Context, f *File) (*File, error) {
		dir := filepath.Dir(f.Path)
		if f.Path == "" || dir == "." {
			f.Path = name
		} else {
			f.Path = filepath.Join(dir, name)
		}
		return f, nil
	})
}

// Buffer reads streaming files into memory.
func Buffer() Stage {
	return EachFile(StageBuffer, func(_ context.Context, f *File) (*File, error) {
		if !f.IsStream() {
			return f, nil
		}
		data, err := io.ReadAll(f.Reader)
		closeErr := f.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		f.Contents = data
		return f, nil
	})
}

// InitSourceMaps attaches the map referenced by each file's sourceMappingURL comment.
//
// Files without a map get an identity map so later stages always have one to
// chain onto.
func InitSourceMaps(opts sourcemap.LoadOptions) Stage {
	return EachFile(StageInitSourceMaps, func(_ context.Context, f *File) (*File, error) {
		if f.IsStream() {
			return nil, fmt.Errorf("%w: %s", shared.ErrStreamFile, f.Path)
		}

		code, m, err := sourcemap.Load(f.FullPath(), f.Contents, opts)
		if err != nil {
			return nil, err
		}
		if m == nil {
			m = sourcemap.Identity(f.Path, code)
		}
		f.Contents = code
		f.SourceMap = m
		return f, nil
	})
}

// WriteSourceMaps emits each attached map as a sibling <name>.map file and
// points the file at it. With enabled false the maps are dropped.
func WriteSourceMaps(enabled bool) Stage {
	return StageFunc(StageWriteSourceMaps, func(_ context.Context, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files)*2)
		for _, f := range files {
			if f.IsStream() {
				return nil, fmt.Errorf("%w: %s", shared.ErrStreamFile, f.Path)
			}

			m := f.SourceMap
			f.SourceMap = nil
			out = append(out, f)
			if !enabled || m == nil {
				continue
			}

			m.File = f.Name()
			data, err := m.Bytes()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", shared.ErrSourceMap, err)
			}

			f.Contents = append(f.Contents, []byte(sourcemap.Comment(f.Name()+".map")+"\n")...)
			out = append(out, &File{Path: f.Path + ".map", Base: f.Base, Contents: data})
		}
		return out, nil
	})
}

// Dest writes every file into dir and rebases it there.
func Dest(dir string) Stage {
	return EachFile(StageDest, func(_ context.Context, f *File) (*File, error) {
		rel := f.Path
		if filepath.IsAbs(rel) {
			rel = filepath.Base(rel)
		}
		target := filepath.Join(dir, rel)

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrWriteOutput, err)
		}

		if f.IsStream() {
			if err := writeStream(target, f); err != nil {
				return nil, err
			}
		} else if err := os.WriteFile(target, f.Contents, 0644); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrWriteOutput, err)
		}

		f.Base = dir
		f.Path = rel
		return f, nil
	})
}

func writeStream(target string, f *File) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrWriteOutput, err)
	}
	defer out.Close()
	defer f.Close()

	if _, err := io.Copy(out, f.Reader); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrWriteOutput, err)
	}
	return nil
}
