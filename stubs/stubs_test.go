package stubs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/grail/schema"
	"goa.design/grail/tools"
)

func newGen() *Generator {
	return New(WithCache(NewCache()))
}

func intParam(name string) tools.Param {
	return tools.Param{Name: name, Type: schema.Int}
}

func TestGenerateBasic(t *testing.T) {
	in := schema.NewRecord("InModel", "testdata.InModel",
		schema.Field{Name: "count", Type: schema.Int},
		schema.Field{Name: "name", Type: schema.Str},
	)
	out := schema.NewRecord("OutModel", "testdata.OutModel",
		schema.Field{Name: "total", Type: schema.Int},
	)
	add := tools.Signature{
		Name:   "add",
		Params: []tools.Param{intParam("a"), intParam("b")},
		Return: schema.Int,
	}

	got := newGen().Generate(Request{Input: in, Output: out, Tools: []tools.Signature{add}})

	expected := strings.Join([]string{
		"from typing import TypedDict",
		"",
		"",
		"class InModel(TypedDict):",
		"    count: int",
		"    name: str",
		"",
		"class OutModel(TypedDict):",
		"    total: int",
		"",
		"def add(a: int, b: int) -> int: ...",
		"",
	}, "\n")
	assert.Equal(t, expected, got)
}

func TestGenerateInputOnly(t *testing.T) {
	in := schema.NewRecord("Input", "testdata.Input",
		schema.Field{Name: "value", Type: schema.Int},
	)

	got := newGen().Generate(Request{Input: in})

	expected := strings.Join([]string{
		"from typing import TypedDict",
		"",
		"",
		"class Input(TypedDict):",
		"    value: int",
		"",
	}, "\n")
	assert.Equal(t, expected, got)
	assert.True(t, strings.HasSuffix(got, "int\n"), "exactly one trailing newline")
}

func TestGenerateNestedNamedTypes(t *testing.T) {
	userID := &schema.NewType{Name: "UserId", Underlying: schema.Int}
	profile := schema.NewDataclass("Profile", "testdata.Profile",
		schema.Field{Name: "user_id", Type: userID},
		schema.Field{Name: "tags", Type: schema.Set(schema.Str)},
	)
	payload := schema.Dict(schema.Str, schema.List(schema.Tuple(userID, schema.Optional(schema.Str))))

	in := schema.NewRecord("InputModel", "testdata.InputModel",
		schema.Field{Name: "profile", Type: profile},
	)
	out := schema.NewRecord("OutputModel", "testdata.OutputModel",
		schema.Field{Name: "result", Type: schema.Optional(profile)},
	)
	normalize := tools.Signature{
		Name:   "normalize",
		Params: []tools.Param{{Name: "items", Type: schema.List(payload)}},
		Return: schema.Tuple(schema.Optional(profile), payload),
	}

	got := newGen().Generate(Request{Input: in, Output: out, Tools: []tools.Signature{normalize}})

	expected := strings.Join([]string{
		"from typing import TypedDict, NewType",
		"",
		"",
		`UserId = NewType("UserId", int)`,
		"",
		"class Profile:",
		"    user_id: UserId",
		"    tags: set[str]",
		"",
		"class InputModel(TypedDict):",
		"    profile: Profile",
		"",
		"class OutputModel(TypedDict):",
		"    result: Profile | None",
		"",
		"def normalize(items: list[dict[str, list[tuple[UserId, str | None]]]])" +
			" -> tuple[Profile | None, dict[str, list[tuple[UserId, str | None]]]]: ...",
		"",
	}, "\n")
	assert.Equal(t, expected, got)
}

func TestNewTypeDeclaredOnceReferencedEverywhere(t *testing.T) {
	token := &schema.NewType{Name: "Token", Underlying: schema.Str}
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "primary", Type: token},
		schema.Field{Name: "fallback", Type: token},
	)
	renew := tools.Signature{
		Name:   "renew",
		Params: []tools.Param{{Name: "old", Type: token}},
		Return: token,
	}

	got := newGen().Generate(Request{Input: in, Tools: []tools.Signature{renew}})

	assert.Equal(t, 1, strings.Count(got, `Token = NewType("Token", str)`))
	assert.Contains(t, got, "    primary: Token")
	assert.Contains(t, got, "    fallback: Token")
	assert.Contains(t, got, "def renew(old: Token) -> Token: ...")
}

func TestAuxiliaryDefinitionsNameSorted(t *testing.T) {
	// Discovery order is zulu, alpha, mango; emission must be name-sorted.
	zulu := &schema.Alias{Name: "Zulu", Value: schema.List(schema.Int)}
	alpha := &schema.NewType{Name: "Alpha", Underlying: schema.Str}
	mango := schema.NewDataclass("Mango", "testdata.Mango",
		schema.Field{Name: "ripe", Type: schema.Bool},
	)
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "z", Type: zulu},
		schema.Field{Name: "a", Type: alpha},
		schema.Field{Name: "m", Type: mango},
	)

	got := newGen().Generate(Request{Input: in})

	alphaAt := strings.Index(got, `Alpha = NewType("Alpha", str)`)
	mangoAt := strings.Index(got, "class Mango:")
	zuluAt := strings.Index(got, "Zulu = list[int]")
	require.True(t, alphaAt >= 0 && mangoAt >= 0 && zuluAt >= 0, "all definitions present:\n%s", got)
	assert.Less(t, alphaAt, mangoAt)
	assert.Less(t, mangoAt, zuluAt)
}

func TestAuxiliaryDependenciesEmittedFirst(t *testing.T) {
	// "Atlas" sorts before "Region" but references it; the dependency must
	// appear above the alias that uses it.
	region := schema.NewDataclass("Region", "testdata.Region",
		schema.Field{Name: "code", Type: schema.Str},
	)
	atlas := &schema.Alias{Name: "Atlas", Value: schema.List(region)}
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "atlas", Type: atlas},
	)

	got := newGen().Generate(Request{Input: in})

	regionAt := strings.Index(got, "class Region:")
	atlasAt := strings.Index(got, "Atlas = list[Region]")
	require.True(t, regionAt >= 0 && atlasAt >= 0, "definitions present:\n%s", got)
	assert.Less(t, regionAt, atlasAt)
}

func TestSelfReferentialRecordTerminates(t *testing.T) {
	node := schema.NewDataclass("Node", "testdata.Node")
	node.Fields = []schema.Field{
		{Name: "value", Type: schema.Int},
		{Name: "next", Type: schema.Optional(node)},
	}
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "head", Type: node},
	)

	got := newGen().Generate(Request{Input: in})

	assert.Equal(t, 1, strings.Count(got, "class Node:"))
	assert.Contains(t, got, "    next: Node | None")
}

func TestToolsSortedByName(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In", schema.Field{Name: "v", Type: schema.Int})
	sigs := []tools.Signature{
		{Name: "zeta", Return: schema.Int},
		{Name: "alpha", Return: schema.Int},
		{Name: "mid", Return: schema.Int},
	}

	got := newGen().Generate(Request{Input: in, Tools: sigs})

	assert.Less(t, strings.Index(got, "def alpha"), strings.Index(got, "def mid"))
	assert.Less(t, strings.Index(got, "def mid"), strings.Index(got, "def zeta"))
}

func TestFieldOrderPreserved(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "zebra", Type: schema.Int},
		schema.Field{Name: "apple", Type: schema.Str},
		schema.Field{Name: "mango", Type: schema.Bool},
	)

	got := newGen().Generate(Request{Input: in})

	assert.Contains(t, got, "class In(TypedDict):\n    zebra: int\n    apple: str\n    mango: bool")
}

func TestDynamicAnnotationForcesAnyImport(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In", schema.Field{Name: "v", Type: schema.Int})
	ingest := tools.Signature{
		Name:   "ingest",
		Params: []tools.Param{{Name: "blob", Type: schema.Dynamic}},
		Return: schema.None,
	}

	got := newGen().Generate(Request{Input: in, Tools: []tools.Signature{ingest}})

	assert.True(t, strings.HasPrefix(got, "from typing import Any, TypedDict\n"), got)
	assert.Contains(t, got, "def ingest(blob: Any) -> None: ...")
}

func TestUnannotatedParameterDegradesToAny(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In", schema.Field{Name: "v", Type: schema.Int})
	sig := tools.Signature{
		Name:   "mystery",
		Params: []tools.Param{{Name: "arg"}},
	}

	got := newGen().Generate(Request{Input: in, Tools: []tools.Signature{sig}})

	assert.True(t, strings.HasPrefix(got, "from typing import Any, TypedDict\n"), got)
	assert.Contains(t, got, "def mystery(arg: Any) -> Any: ...")
}

func TestCallableImportAndForms(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "transform", Type: schema.Callable([]schema.Annotation{schema.Int}, schema.Str)},
		schema.Field{Name: "thunk", Type: schema.CallableAny(schema.None)},
	)

	got := newGen().Generate(Request{Input: in})

	assert.True(t, strings.HasPrefix(got, "from typing import TypedDict, Callable\n"), got)
	assert.Contains(t, got, "    transform: Callable[[int], str]")
	assert.Contains(t, got, "    thunk: Callable[..., None]")
}

func TestMalformedCallableDegrades(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "f", Type: &schema.Generic{Origin: "Callable", Args: []schema.Annotation{schema.Int}}},
	)

	got := newGen().Generate(Request{Input: in})

	assert.True(t, strings.HasPrefix(got, "from typing import Any, TypedDict, Callable\n"), got)
	assert.Contains(t, got, "    f: Callable[..., Any]")
}

func TestCallableBareParameterSlotImportsAny(t *testing.T) {
	// Two args but the parameter slot is a plain annotation instead of a
	// parameter list, so the field degrades to Callable[..., Any] and the
	// header must carry the Any import.
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "f", Type: &schema.Generic{Origin: "Callable", Args: []schema.Annotation{schema.Int, schema.Str}}},
	)

	got := newGen().Generate(Request{Input: in})

	assert.True(t, strings.HasPrefix(got, "from typing import Any, TypedDict, Callable\n"), got)
	assert.Contains(t, got, "    f: Callable[..., Any]")
}

func TestVariadicParametersRenderBare(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In", schema.Field{Name: "v", Type: schema.Int})
	sig := tools.Signature{
		Name: "spread",
		Params: []tools.Param{
			intParam("first"),
			{Name: "rest", Type: schema.Int, Kind: tools.KindVarPositional},
			{Name: "extra", Type: schema.Str, Kind: tools.KindVarKeyword},
		},
		Return: schema.None,
	}

	got := newGen().Generate(Request{Input: in, Tools: []tools.Signature{sig}})

	assert.Contains(t, got, "def spread(first: int, *rest, **extra) -> None: ...")
}

func TestUnionCanonicalization(t *testing.T) {
	in1 := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "v", Type: schema.UnionOf(schema.Str, schema.Int)},
	)
	// Distinct fingerprint identity so the second request renders instead of
	// hitting the cache entry of the first.
	in2 := schema.NewRecord("In", "testdata.other.In",
		schema.Field{Name: "v", Type: schema.UnionOf(schema.Int, schema.Str)},
	)

	g := newGen()
	got1 := g.Generate(Request{Input: in1})
	got2 := g.Generate(Request{Input: in2})

	assert.Contains(t, got1, "    v: int | str")
	assert.Equal(t, got1, got2)
}

func TestOptionalRendersNoneLast(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "maybe", Type: schema.UnionOf(schema.None, schema.Int)},
		schema.Field{Name: "multi", Type: schema.UnionOf(schema.None, schema.Str, schema.Int)},
	)

	got := newGen().Generate(Request{Input: in})

	assert.Contains(t, got, "    maybe: int | None")
	assert.Contains(t, got, "    multi: int | str | None")
}

func TestEmptyRecordRendersPass(t *testing.T) {
	in := schema.NewRecord("Empty", "testdata.Empty")

	got := newGen().Generate(Request{Input: in})

	assert.Contains(t, got, "class Empty(TypedDict):\n    pass")
}

func TestWideningGenericsMarkDynamic(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "items", Type: &schema.Generic{Origin: "list"}},
		schema.Field{Name: "pairs", Type: &schema.Generic{Origin: "dict", Args: []schema.Annotation{schema.Str}}},
	)

	got := newGen().Generate(Request{Input: in})

	assert.True(t, strings.HasPrefix(got, "from typing import Any, TypedDict\n"), got)
	assert.Contains(t, got, "    items: list[Any]")
	assert.Contains(t, got, "    pairs: dict[str, Any]")
}

func TestDeterminismRepeatedCalls(t *testing.T) {
	in := schema.NewRecord("In", "testdata.In",
		schema.Field{Name: "data", Type: schema.Dict(schema.Str, schema.List(schema.Int))},
	)
	g := newGen()
	req := Request{Input: in}

	assert.Equal(t, g.Generate(req), g.Generate(req))
}
