package bundle

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/go-cmp/cmp"

	"github.com/desertthunder/bundlex/internal/shared"
)

func TestDecode(t *testing.T) {
	opts := Options{
		"input":       []any{"src/a.js", "src/b.js"},
		"sourceMap":   "inline",
		"format":      "esm",
		"moduleName":  "App",
		"external":    []any{"jquery"},
		"target":      "ES2017",
		"platform":    "node",
		"define":      map[string]any{"DEBUG": false, "VERSION": `"1.0"`},
		"banner":      "/* banner */",
		"footer":      "/* footer */",
		"treeShaking": true,
		"loader":      map[string]any{"svg": "text", ".png": "dataurl"},
	}

	got, err := Decode(opts, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := &Config{
		Input:       []string{"src/a.js", "src/b.js"},
		SourceMap:   true,
		Format:      api.FormatESModule,
		ModuleName:  "App",
		External:    []string{"jquery"},
		Target:      api.ES2017,
		Platform:    api.PlatformNode,
		Define:      map[string]string{"DEBUG": "false", "VERSION": `"1.0"`},
		Banner:      "/* banner */",
		Footer:      "/* footer */",
		TreeShaking: api.TreeShakingTrue,
		Loader:      map[string]api.Loader{".svg": api.LoaderText, ".png": api.LoaderDataURL},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing input", opts: Options{"format": "iife"}},
		{name: "unsupported format", opts: Options{"input": "a.js", "format": "umd"}},
		{name: "bad source map flag", opts: Options{"input": "a.js", "sourceMap": "yes"}},
		{name: "numeric input", opts: Options{"input": 3}},
		{name: "mixed input list", opts: Options{"input": []any{"a.js", 4}}},
		{name: "unknown target", opts: Options{"input": "a.js", "target": "es1"}},
		{name: "define is not a table", opts: Options{"input": "a.js", "define": "x"}},
		{name: "unknown loader", opts: Options{"input": "a.js", "loader": map[string]any{"svg": "wat"}}},
		{name: "tree shaking is not a bool", opts: Options{"input": "a.js", "treeShaking": "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.opts, nil); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("Decode() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDecodeUnknownKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := shared.NewLogger(&buf)

	cfg, err := Decode(Options{"input": "a.js", "entry": "b.js", "external": map[string]any{}}, logger)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(cfg.External) != 0 {
		t.Errorf("External = %v, want empty", cfg.External)
	}
	if !strings.Contains(buf.String(), "entry") {
		t.Errorf("expected a warning about entry, got %q", buf.String())
	}
}

func TestBuildOptions(t *testing.T) {
	t.Run("iife", func(t *testing.T) {
		cfg := &Config{Input: []string{"src/app.js"}, SourceMap: true, Format: api.FormatIIFE, ModuleName: "App", Banner: "/* hi */"}
		o := cfg.BuildOptions("/work", "/work/out/app.js")

		if !o.Bundle || o.Write {
			t.Errorf("Bundle = %v, Write = %v", o.Bundle, o.Write)
		}
		if o.GlobalName != "App" || o.Sourcemap != api.SourceMapInline {
			t.Errorf("GlobalName = %q, Sourcemap = %v", o.GlobalName, o.Sourcemap)
		}
		if diff := cmp.Diff(map[string]string{"js": "/* hi */"}, o.Banner); diff != "" {
			t.Errorf("Banner mismatch (-want +got):\n%s", diff)
		}
		if o.AbsWorkingDir != "/work" || o.Outfile != "/work/out/app.js" {
			t.Errorf("AbsWorkingDir = %q, Outfile = %q", o.AbsWorkingDir, o.Outfile)
		}
	})

	t.Run("esm has no global name", func(t *testing.T) {
		cfg := &Config{Input: []string{"src/app.js"}, Format: api.FormatESModule, ModuleName: "App"}
		o := cfg.BuildOptions("/work", "/work/out/app.js")

		if o.GlobalName != "" || o.Sourcemap != api.SourceMapNone || o.Footer != nil {
			t.Errorf("GlobalName = %q, Sourcemap = %v, Footer = %v", o.GlobalName, o.Sourcemap, o.Footer)
		}
	})
}
