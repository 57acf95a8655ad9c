package script

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/grail/engine"
	"goa.design/grail/engine/inmem"
	"goa.design/grail/run"
	"goa.design/grail/schema"
	"goa.design/grail/tools"
)

// calcEngine registers a program matching the calcSource fixture: fetch the
// name, then repeat the result count times.
func calcEngine(t *testing.T) *inmem.Engine {
	t.Helper()
	eng := inmem.New()
	require.NoError(t, eng.Register("calc", func(ctx context.Context, env *inmem.Env) (any, error) {
		env.Print("fetching")
		v, err := env.CallExternal("fetch", []any{env.Input("name")}, nil)
		if err != nil {
			return nil, err
		}
		return strings.Repeat(v.(string), env.Input("count").(int)), nil
	}))
	return eng
}

func fetchRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Tool{
		Signature: tools.Signature{
			Name:   "fetch",
			Params: []tools.Param{{Name: "url", Type: schema.Str}},
			Return: schema.Str,
		},
		Fn: func(_ context.Context, args []any, _ map[string]any) (any, error) {
			return args[0].(string) + "!", nil
		},
	}))
	return reg
}

func TestRunEndToEnd(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	value, err := s.Run(context.Background(), RunOptions{
		Engine: calcEngine(t),
		Tools:  fetchRegistry(t),
		Inputs: map[string]any{"name": "hi", "count": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi!hi!", value)
}

func TestRunFillsInputDefaults(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	// count defaults to 3.
	value, err := s.Run(context.Background(), RunOptions{
		Engine: calcEngine(t),
		Tools:  fetchRegistry(t),
		Inputs: map[string]any{"name": "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a!a!a!", value)
}

func TestRunMissingRequiredInput(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), RunOptions{
		Engine: calcEngine(t),
		Tools:  fetchRegistry(t),
	})
	var ie *run.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "name", ie.Name)
	assert.Contains(t, ie.Msg, "missing required input (type: str)")
}

func TestRunMissingExternal(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), RunOptions{
		Engine: calcEngine(t),
		Inputs: map[string]any{"name": "a"},
	})
	var ee *run.ExternalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "fetch", ee.Function)
}

func TestRunRequiresEngine(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), RunOptions{})
	require.EqualError(t, err, "no engine configured")
}

func TestRunEvents(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	var types []string
	var printed string
	_, err = s.Run(context.Background(), RunOptions{
		Engine: calcEngine(t),
		Tools:  fetchRegistry(t),
		Inputs: map[string]any{"name": "a"},
		OnEvent: func(ev Event) {
			types = append(types, ev.Type)
			if ev.Type == "print" {
				printed = ev.Text
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"run_start", "print", "run_complete"}, types)
	assert.Equal(t, "fetching", printed)
}

func TestRunMapsErrorLines(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	eng := inmem.New()
	require.NoError(t, eng.Register("calc", func(context.Context, *inmem.Env) (any, error) {
		return nil, &engine.RuntimeError{Msg: "division by zero", Line: 11, Column: 5}
	}))

	var types []string
	_, err = s.Run(context.Background(), RunOptions{
		Engine: eng,
		Tools:  fetchRegistry(t),
		Inputs: map[string]any{"name": "a"},
		OnEvent: func(ev Event) { types = append(types, ev.Type) },
	})
	var ee *run.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 11, ee.Line)
	assert.Contains(t, ee.SourceContext, ">   11 | result")
	assert.Equal(t, []string{"run_start", "run_error"}, types)
}

func TestRunOutputValidation(t *testing.T) {
	s, err := New("calc", calcSource)
	require.NoError(t, err)

	out := schema.NewRecord("Out", "calc.Out", schema.Field{Name: "total", Type: schema.Int})
	_, err = s.Run(context.Background(), RunOptions{
		Engine: calcEngine(t),
		Tools:  fetchRegistry(t),
		Inputs: map[string]any{"name": "a"},
		Output: out,
	})
	var oe *run.OutputError
	require.ErrorAs(t, err, &oe)
}

func TestCheckWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	s, err := New("calc", calcSource, WithArtifactsDir(dir))
	require.NoError(t, err)

	cr := s.Check(context.Background(), nil, nil)
	require.True(t, cr.Valid)

	for _, name := range []string{"stubs.pyi", "monty_code.py", "check.json"} {
		data, err := os.ReadFile(filepath.Join(dir, "calc", name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}
	stubs, err := os.ReadFile(filepath.Join(dir, "calc", "stubs.pyi"))
	require.NoError(t, err)
	assert.Contains(t, string(stubs), "def fetch(url: str) -> str: ...")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calc.pym")
	require.NoError(t, os.WriteFile(path, []byte(calcSource), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "calc", s.Name)
	assert.Equal(t, path, s.Path)
	assert.Len(t, s.Externals(), 1)
	assert.Len(t, s.Inputs(), 2)
}
