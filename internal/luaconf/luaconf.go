// package luaconf evaluates a project's bundlex.config.lua in a sandboxed Lua state.
//
// The file is a Lua chunk that returns a table:
//
//	return {
//	  format = "cjs",
//	  moduleName = "App",
//	  external = { "jquery" },
//	}
//
// Only the base, table, string and math libraries are available. io, os,
// package and debug are never opened, and the loaders (dofile, loadfile, load,
// loadstring) are removed. print is redirected to the debug log.
package luaconf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/desertthunder/bundlex/internal/shared"
)

// FileName is the project configuration file looked up in the working directory.
const FileName = "bundlex.config.lua"

// DefaultTimeout bounds evaluation of a configuration chunk.
const DefaultTimeout = 5 * time.Second

type config struct {
	timeout time.Duration
	logger  *log.Logger
	globals map[string]any
}

// Option configures evaluation.
type Option func(*config)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger receives print output at debug level.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithGlobals exposes read-only values to the chunk as globals.
func WithGlobals(g map[string]any) Option {
	return func(c *config) { c.globals = g }
}

// Find returns the path of the configuration file in dir, if there is one.
func Find(dir string) (string, bool) {
	path := filepath.Join(dir, FileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Load reads and evaluates the configuration file at path.
func Load(path string, opts ...Option) (map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	return Eval(filepath.Base(path), string(src), opts...)
}

// Eval runs src and converts the table it returns.
func Eval(name, src string, opts ...Option) (map[string]any, error) {
	cfg := config{timeout: DefaultTimeout, logger: shared.DiscardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	L := newSandbox(cfg.logger)
	defer L.Close()

	for k, v := range cfg.globals {
		L.SetGlobal(k, toLua(L, v))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	L.SetContext(ctx)

	fn, err := L.Load(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidConfig, name, err)
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: evaluation exceeded %s", shared.ErrInvalidConfig, name, cfg.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidConfig, name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: %s must return a table, got %s", shared.ErrInvalidConfig, name, ret.Type())
	}

	v, err := fromTable(tbl, map[*lua.LTable]bool{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidConfig, name, err)
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must return a table with named keys", shared.ErrInvalidConfig, name)
	}
	return m, nil
}

func newSandbox(logger *log.Logger) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		logger.Debug(strings.Join(parts, "\t"), "source", FileName)
		return 0
	}))
	return L
}

func fromLua(v lua.LValue, visited map[*lua.LTable]bool) (any, error) {
	switch lv := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(lv), nil
	case lua.LString:
		return string(lv), nil
	case lua.LNumber:
		f := float64(lv)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f), nil
		}
		return f, nil
	case *lua.LTable:
		return fromTable(lv, visited)
	default:
		return nil, fmt.Errorf("unsupported value of type %s", v.Type())
	}
}

// fromTable returns a slice for sequences and a map otherwise. Empty tables become empty maps.
func fromTable(t *lua.LTable, visited map[*lua.LTable]bool) (any, error) {
	if visited[t] {
		return nil, errors.New("table contains a cycle")
	}
	visited[t] = true
	defer delete(visited, t)

	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			v, err := fromLua(t.RawGetInt(i), visited)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i-1] = v
		}
		return arr, nil
	}

	m := make(map[string]any, count)
	var firstErr error
	t.ForEach(func(k, v lua.LValue) {
		if firstErr != nil {
			return
		}

		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'f', -1, 64)
		default:
			firstErr = fmt.Errorf("unsupported key of type %s", k.Type())
			return
		}

		gv, err := fromLua(v, visited)
		if err != nil {
			firstErr = fmt.Errorf("%s: %w", key, err)
			return
		}
		m[key] = gv
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch gv := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(gv)
	case string:
		return lua.LString(gv)
	case int:
		return lua.LNumber(gv)
	case int64:
		return lua.LNumber(gv)
	case float64:
		return lua.LNumber(gv)
	case []string:
		t := L.NewTable()
		for _, s := range gv {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, item := range gv {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range gv {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(gv))
	}
}
