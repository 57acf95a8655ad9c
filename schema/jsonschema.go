package schema

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiled caches the compiled validator per record. Records are typically
// package-level values shared across many requests, so compilation happens
// once per process for each record identity.
var compiled sync.Map // *Record -> *jsonschema.Schema

// JSONSchema returns the JSON Schema document describing values of the
// record: an object with one property per field, every field required.
// Unknown or non-serializable annotation shapes widen to the permissive
// schema, mirroring the stub generator's degrade-don't-fail policy, and so
// does a recursive reference back to a record already being described.
func (r *Record) JSONSchema() map[string]any {
	return r.jsonSchema(make(map[*Record]bool))
}

func (r *Record) jsonSchema(seen map[*Record]bool) map[string]any {
	seen[r] = true
	defer delete(seen, r)
	props := make(map[string]any, len(r.Fields))
	required := make([]any, 0, len(r.Fields))
	for _, f := range r.Fields {
		props[f.Name] = annotationSchema(f.Type, seen)
		required = append(required, f.Name)
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// Validate checks a decoded JSON value (typically map[string]any) against the
// record schema. The validator is compiled lazily and cached for the life of
// the process.
func (r *Record) Validate(value any) error {
	sch, err := r.compile()
	if err != nil {
		return err
	}
	if err := sch.Validate(value); err != nil {
		return fmt.Errorf("validate %s: %w", r.Name, err)
	}
	return nil
}

func (r *Record) compile() (*jsonschema.Schema, error) {
	if cached, ok := compiled.Load(r); ok {
		return cached.(*jsonschema.Schema), nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", r.JSONSchema()); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", r.Name, err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", r.Name, err)
	}
	compiled.Store(r, sch)
	return sch, nil
}

// annotationSchema maps an annotation to a JSON Schema fragment. Shapes with
// no natural JSON representation (callables, opaque classes, raw text) map to
// the permissive empty schema.
func annotationSchema(a Annotation, seen map[*Record]bool) map[string]any {
	switch t := a.(type) {
	case nil, dynamic, ellipsis:
		return map[string]any{}
	case noneType:
		return map[string]any{"type": "null"}
	case *Primitive:
		switch t.Name {
		case "int":
			return map[string]any{"type": "integer"}
		case "str", "bytes":
			return map[string]any{"type": "string"}
		case "bool":
			return map[string]any{"type": "boolean"}
		case "float":
			return map[string]any{"type": "number"}
		}
		return map[string]any{}
	case *NewType:
		return annotationSchema(t.Underlying, seen)
	case *Alias:
		return annotationSchema(t.Value, seen)
	case *Record:
		if seen[t] {
			return map[string]any{}
		}
		return t.jsonSchema(seen)
	case *Generic:
		switch t.Origin {
		case "list", "set", "frozenset":
			if len(t.Args) == 1 {
				return map[string]any{"type": "array", "items": annotationSchema(t.Args[0], seen)}
			}
			return map[string]any{"type": "array"}
		case "dict":
			if len(t.Args) == 2 {
				return map[string]any{
					"type":                 "object",
					"additionalProperties": annotationSchema(t.Args[1], seen),
				}
			}
			return map[string]any{"type": "object"}
		case "tuple":
			if len(t.Args) == 2 && t.Args[1] == Ellipsis {
				return map[string]any{"type": "array", "items": annotationSchema(t.Args[0], seen)}
			}
			return map[string]any{"type": "array"}
		}
		return map[string]any{}
	case *Union:
		variants := make([]any, 0, len(t.Members))
		for _, m := range t.Members {
			variants = append(variants, annotationSchema(m, seen))
		}
		return map[string]any{"anyOf": variants}
	default:
		return map[string]any{}
	}
}
