package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSchemaShapes(t *testing.T) {
	r := NewRecord("Order", "shop.Order",
		Field{Name: "id", Type: Int},
		Field{Name: "tags", Type: List(Str)},
		Field{Name: "meta", Type: Dict(Str, Int)},
		Field{Name: "note", Type: Optional(Str)},
	)
	doc := r.JSONSchema()
	assert.Equal(t, "object", doc["type"])
	assert.ElementsMatch(t, []string{"id", "tags", "meta", "note"}, doc["required"])

	props := doc["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "integer"}, props["id"])
	assert.Equal(t, map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}, props["tags"])
	assert.Equal(t, map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": "integer"},
	}, props["meta"])
	assert.Equal(t, map[string]any{
		"anyOf": []any{map[string]any{"type": "string"}, map[string]any{"type": "null"}},
	}, props["note"])
}

func TestJSONSchemaDegradesUnknownShapes(t *testing.T) {
	r := NewRecord("T", "t.T",
		Field{Name: "cb", Type: CallableAny(Int)},
		Field{Name: "w", Type: &Opaque{Name: "Widget"}},
		Field{Name: "raw", Type: &Raw{Text: "Weird[int]"}},
		Field{Name: "dyn", Type: Dynamic},
	)
	props := r.JSONSchema()["properties"].(map[string]any)
	for _, name := range []string{"cb", "w", "raw", "dyn"} {
		assert.Equal(t, map[string]any{}, props[name], name)
	}
}

func TestValidateAcceptsMatchingValue(t *testing.T) {
	r := NewRecord("Point", "geo.Point",
		Field{Name: "x", Type: Float},
		Field{Name: "y", Type: Float},
	)
	require.NoError(t, r.Validate(map[string]any{"x": 1.5, "y": -2.0}))
}

func TestValidateRejectsMissingAndWrongTypes(t *testing.T) {
	r := NewRecord("Point", "geo.Point",
		Field{Name: "x", Type: Float},
		Field{Name: "y", Type: Float},
	)
	assert.Error(t, r.Validate(map[string]any{"x": 1.5}))
	assert.Error(t, r.Validate(map[string]any{"x": "nope", "y": 2.0}))
	assert.Error(t, r.Validate("not an object"))
}

func TestValidateNestedRecord(t *testing.T) {
	inner := NewDataclass("Addr", "shop.Addr", Field{Name: "city", Type: Str})
	r := NewRecord("Cust", "shop.Cust",
		Field{Name: "name", Type: Str},
		Field{Name: "addr", Type: inner},
	)
	require.NoError(t, r.Validate(map[string]any{
		"name": "ada",
		"addr": map[string]any{"city": "london"},
	}))
	assert.Error(t, r.Validate(map[string]any{
		"name": "ada",
		"addr": map[string]any{},
	}))
}

func TestJSONSchemaSelfReferentialRecordTerminates(t *testing.T) {
	node := NewDataclass("Node", "list.Node")
	node.Fields = []Field{
		{Name: "value", Type: Int},
		{Name: "next", Type: Optional(node)},
	}

	doc := node.JSONSchema()
	props := doc["properties"].(map[string]any)
	// The back-reference widens to the permissive schema instead of
	// expanding forever.
	assert.Equal(t, map[string]any{
		"anyOf": []any{map[string]any{}, map[string]any{"type": "null"}},
	}, props["next"])

	require.NoError(t, node.Validate(map[string]any{"value": 1.0, "next": nil}))
	require.NoError(t, node.Validate(map[string]any{
		"value": 1.0,
		"next":  map[string]any{"value": 2.0, "next": nil},
	}))
}

func TestJSONSchemaMutuallyRecursiveRecordsTerminate(t *testing.T) {
	author := NewRecord("Author", "blog.Author")
	post := NewRecord("Post", "blog.Post")
	author.Fields = []Field{{Name: "posts", Type: List(post)}}
	post.Fields = []Field{{Name: "author", Type: author}}

	doc := author.JSONSchema()
	props := doc["properties"].(map[string]any)
	posts := props["posts"].(map[string]any)
	postDoc := posts["items"].(map[string]any)
	postProps := postDoc["properties"].(map[string]any)
	assert.Equal(t, map[string]any{}, postProps["author"])
}
