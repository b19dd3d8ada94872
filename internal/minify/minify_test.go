package minify

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/sourcemap"
	"github.com/desertthunder/bundlex/internal/stream"
)

const source = `function add(first, second) {
  return first + second;
}
console.log(add(1, 2));
`

func TestCode(t *testing.T) {
	t.Run("minifies", func(t *testing.T) {
		code, m, err := Code("app.js", []byte(source), nil, DefaultOptions())
		if err != nil {
			t.Fatalf("Code() error = %v", err)
		}
		if len(code) >= len(source) {
			t.Errorf("expected smaller output, got %d >= %d bytes", len(code), len(source))
		}
		if strings.Contains(string(code), "second") {
			t.Errorf("parameters should be renamed, got %q", code)
		}
		if m.Empty() {
			t.Error("expected a source map for the minified output")
		}
		if m.File != "app.js" {
			t.Errorf("map file = %q, want app.js", m.File)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		_, _, err := Code("broken.js", []byte("var = ;"), nil, DefaultOptions())
		if !errors.Is(err, shared.ErrMinify) {
			t.Fatalf("expected ErrMinify, got %v", err)
		}

		var me *MinifyError
		if !errors.As(err, &me) {
			t.Fatalf("expected *MinifyError, got %T", err)
		}
		if me.File != "broken.js" || len(me.Messages) == 0 {
			t.Errorf("MinifyError = %+v", me)
		}
		if !strings.Contains(me.Error(), "broken.js") {
			t.Errorf("Error() should name the file, got %q", me.Error())
		}
	})

	t.Run("whitespace only keeps names", func(t *testing.T) {
		code, _, err := Code("app.js", []byte(source), nil, Options{Whitespace: true})
		if err != nil {
			t.Fatalf("Code() error = %v", err)
		}
		if !strings.Contains(string(code), "second") {
			t.Errorf("identifiers should survive, got %q", code)
		}
	})
}

func TestStage(t *testing.T) {
	src := func(context.Context) ([]*stream.File, error) {
		return []*stream.File{
			stream.NewFile("app.js", []byte(source)),
			stream.NewFile("styles.css", []byte("body {  color: red; }")),
		}, nil
	}

	files, err := stream.From(src).
		Pipe(stream.InitSourceMaps(sourcemap.LoadOptions{})).
		Pipe(Stage(DefaultOptions())).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if string(files[0].Contents) == source {
		t.Error("app.js should be minified")
	}
	if string(files[1].Contents) != "body {  color: red; }" {
		t.Errorf("non-script files must pass through, got %q", files[1].Contents)
	}
}

func TestStageRejectsStreams(t *testing.T) {
	src := func(context.Context) ([]*stream.File, error) {
		return []*stream.File{stream.NewStreamFile("app.js", io.NopCloser(strings.NewReader("x")))}, nil
	}
	_, err := stream.From(src).Pipe(Stage(DefaultOptions())).Run(context.Background())
	if !errors.Is(err, shared.ErrStreamFile) {
		t.Errorf("expected ErrStreamFile, got %v", err)
	}
}
