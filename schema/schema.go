// Package schema defines the semantic type-annotation algebra used to
// describe sandboxed program values: the shapes of schema records exchanged
// with the Monty engine, tool parameter and return types, and every composite
// type the stub generator can render.
//
// Annotations form a small closed sum type. Code that consumes annotations
// switches exhaustively over the variants instead of relying on reflection,
// so the set of supported shapes is explicit and the fallback behavior
// (degrade to Dynamic) is a deliberate branch rather than an accident.
package schema

type (
	// Annotation describes the shape of a value. It is a closed interface:
	// only the variants declared in this package implement it.
	Annotation interface {
		isAnnotation()
	}

	// Primitive is an opaque scalar type name (int, str, bool, ...) passed
	// through verbatim by renderers.
	Primitive struct {
		// Name is the scalar type name as it appears in rendered stubs.
		Name string
	}

	// NewType is a nominally distinct type wrapping exactly one underlying
	// annotation. Renderers declare it once and reference it by name.
	NewType struct {
		// Name is the declared new-type name.
		Name string
		// Underlying is the wrapped supertype.
		Underlying Annotation
	}

	// Alias is a name bound to a composite type expression. Structurally
	// identical to its value; renderers declare it once and reference it by
	// name.
	Alias struct {
		// Name is the alias name.
		Name string
		// Value is the aliased type expression.
		Value Annotation
	}

	// Field is one named, typed member of a Record. Field order is
	// semantically meaningful and preserved everywhere.
	Field struct {
		// Name is the field name.
		Name string
		// Type is the field annotation.
		Type Annotation
	}

	// RecordKind distinguishes schema-model records from fixed-field
	// dataclass-like records. The distinction only affects which discovery
	// registry a record lands in and the rendered block header.
	RecordKind int

	// Record is a named type whose value is a fixed, ordered set of named
	// fields. It covers both schema models (the request input/output types)
	// and dataclass-like records referenced from annotations.
	Record struct {
		// Name is the bare type name used in rendered stubs.
		Name string
		// Path is the stable qualified identity (module.Name) used by
		// fingerprints. Never derived from runtime addresses.
		Path string
		// Kind selects model or dataclass treatment.
		Kind RecordKind
		// Fields lists the members in declaration order.
		Fields []Field
	}

	// Generic is a parameterized container: list/set/frozenset, dict, tuple,
	// Callable, or any other origin subscripted with arguments.
	Generic struct {
		// Origin is the container name ("list", "dict", "tuple", "Callable",
		// or an arbitrary origin for the catch-all form).
		Origin string
		// Args holds the type arguments in order. Tuple variadic forms carry
		// the Ellipsis sentinel; Callable carries a Params node (or Ellipsis)
		// followed by the return annotation.
		Args []Annotation
	}

	// Params is the parameter-list argument of a Callable annotation.
	Params struct {
		// Items lists the parameter annotations in order.
		Items []Annotation
	}

	// Union is a set of alternative annotations. Member order is irrelevant;
	// renderers canonicalize by sorting rendered member text.
	Union struct {
		// Members holds the alternatives. Duplicates are tolerated and
		// collapse during rendering.
		Members []Annotation
	}

	// Opaque is a plain named class with no structure the generator
	// understands. Rendered as its bare name, never registered.
	Opaque struct {
		// Name is the bare class name.
		Name string
	}

	// Raw is the last-resort fallback: a pre-rendered textual annotation kept
	// verbatim (minus host-language module prefixes).
	Raw struct {
		// Text is the annotation text.
		Text string
	}

	noneType struct{}
	dynamic  struct{}
	ellipsis struct{}
)

const (
	// KindModel marks records that originate from a schema model.
	KindModel RecordKind = iota
	// KindDataclass marks fixed-field dataclass-like records.
	KindDataclass
)

// Singleton annotations.
var (
	// None is the absence-of-value type.
	None Annotation = noneType{}
	// Dynamic is the accept-anything wildcard. Its presence anywhere in a
	// request forces the rendered import list to include the dynamic type.
	Dynamic Annotation = dynamic{}
	// Ellipsis is the "..." sentinel used in variadic tuples and Callable
	// parameter positions. It is never a standalone value type.
	Ellipsis Annotation = ellipsis{}
)

// Common primitives.
var (
	Int   Annotation = &Primitive{Name: "int"}
	Str   Annotation = &Primitive{Name: "str"}
	Bool  Annotation = &Primitive{Name: "bool"}
	Float Annotation = &Primitive{Name: "float"}
	Bytes Annotation = &Primitive{Name: "bytes"}
)

func (*Primitive) isAnnotation() {}
func (*NewType) isAnnotation()   {}
func (*Alias) isAnnotation()     {}
func (*Record) isAnnotation()    {}
func (*Generic) isAnnotation()   {}
func (*Params) isAnnotation()    {}
func (*Union) isAnnotation()     {}
func (*Opaque) isAnnotation()    {}
func (*Raw) isAnnotation()       {}
func (noneType) isAnnotation()   {}
func (dynamic) isAnnotation()    {}
func (ellipsis) isAnnotation()   {}

// List returns a list[elem] annotation.
func List(elem Annotation) Annotation {
	return &Generic{Origin: "list", Args: []Annotation{elem}}
}

// Set returns a set[elem] annotation.
func Set(elem Annotation) Annotation {
	return &Generic{Origin: "set", Args: []Annotation{elem}}
}

// FrozenSet returns a frozenset[elem] annotation.
func FrozenSet(elem Annotation) Annotation {
	return &Generic{Origin: "frozenset", Args: []Annotation{elem}}
}

// Dict returns a dict[key, value] annotation.
func Dict(key, value Annotation) Annotation {
	return &Generic{Origin: "dict", Args: []Annotation{key, value}}
}

// Tuple returns a fixed-arity tuple[a, b, ...] annotation.
func Tuple(items ...Annotation) Annotation {
	return &Generic{Origin: "tuple", Args: items}
}

// TupleOf returns the homogeneous variadic tuple[elem, ...] annotation.
func TupleOf(elem Annotation) Annotation {
	return &Generic{Origin: "tuple", Args: []Annotation{elem, Ellipsis}}
}

// Callable returns a Callable[[params...], ret] annotation.
func Callable(params []Annotation, ret Annotation) Annotation {
	return &Generic{Origin: "Callable", Args: []Annotation{&Params{Items: params}, ret}}
}

// CallableAny returns the Callable[..., ret] annotation that accepts any
// parameter list.
func CallableAny(ret Annotation) Annotation {
	return &Generic{Origin: "Callable", Args: []Annotation{Ellipsis, ret}}
}

// UnionOf returns a union of the given members.
func UnionOf(members ...Annotation) Annotation {
	return &Union{Members: members}
}

// Optional returns the union of a with None.
func Optional(a Annotation) Annotation {
	return &Union{Members: []Annotation{a, None}}
}

// NewRecord builds a model record. The path should be a stable qualified
// identity such as "billing.Invoice"; when empty the bare name is used for
// fingerprinting.
func NewRecord(name, path string, fields ...Field) *Record {
	return &Record{Name: name, Path: path, Kind: KindModel, Fields: fields}
}

// NewDataclass builds a fixed-field dataclass-like record.
func NewDataclass(name, path string, fields ...Field) *Record {
	return &Record{Name: name, Path: path, Kind: KindDataclass, Fields: fields}
}
