// Package stubs derives minimal, canonical type-stub text from schema records
// and tool signatures. The output feeds the Monty type checker and doubles as
// a cache-invalidation artifact, so rendering is byte-for-byte deterministic:
// declarations are sorted, unions are canonicalized, and repeated requests
// with identical shapes are served from a fingerprint-keyed cache.
//
// Stub generation is total. Annotation shapes the resolver does not recognize
// degrade to the dynamic type rather than failing, because a generation error
// would otherwise break type checking for valid schemas.
package stubs

import (
	"sort"
	"strings"

	"goa.design/grail/schema"
	"goa.design/grail/tools"
)

type (
	// Request describes one stub-generation call: the input schema record,
	// an optional output schema record, and the callable tool signatures.
	Request struct {
		// Input is the input schema record. Required.
		Input *schema.Record
		// Output is the output schema record, or nil when the program result
		// is unconstrained.
		Output *schema.Record
		// Tools lists the tool signatures. Order is irrelevant to the output
		// (tools render sorted by name) but is preserved in the fingerprint.
		Tools []tools.Signature
	}

	// Generator renders stub text for requests, memoizing results in a
	// fingerprint-keyed cache. Generators are cheap; the cache is shared
	// process-wide unless overridden.
	Generator struct {
		cache *Cache
	}

	// Option configures a Generator.
	Option func(*Generator)
)

// WithCache directs the generator at a specific cache instance. Useful for
// bounding memory with NewBoundedCache or isolating tests.
func WithCache(c *Cache) Option {
	return func(g *Generator) { g.cache = c }
}

// New returns a generator backed by the shared process-wide cache.
func New(opts ...Option) *Generator {
	g := &Generator{cache: sharedCache}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the stub text for the request. Requests with equal
// fingerprints return byte-identical text without re-rendering.
func (g *Generator) Generate(req Request) string {
	return g.cache.getOrCompute(req.Fingerprint(), func() string {
		return render(req)
	})
}

// render produces the stub text from scratch. It is a pure function of the
// request: discovery state is created fresh and discarded.
func render(req Request) string {
	d := newDiscovery()

	// Seed registry discovery from the two primary schemas and every tool
	// annotation before rendering anything, so the import header and the
	// auxiliary section observe the complete request.
	collectRecordFields(d, req.Input)
	if req.Output != nil {
		collectRecordFields(d, req.Output)
	}
	for _, sig := range req.Tools {
		for _, p := range sig.Params {
			d.collect(p.Type)
		}
		d.collect(sig.Return)
	}

	imports := []string{"TypedDict"}
	if d.usesAny {
		imports = append([]string{"Any"}, imports...)
	}
	if d.usesCallable {
		imports = append(imports, "Callable")
	}
	if len(d.newTypes) > 0 {
		imports = append(imports, "NewType")
	}

	lines := []string{"from typing import " + strings.Join(imports, ", "), ""}

	skip := map[string]bool{req.Input.Name: true}
	if req.Output != nil {
		skip[req.Output.Name] = true
	}
	if blocks := renderAuxiliary(d, skip); len(blocks) > 0 {
		lines = append(lines, "", strings.Join(blocks, "\n\n"))
	}

	lines = append(lines, "", recordStub(d, req.Input))
	if req.Output != nil {
		lines = append(lines, "", recordStub(d, req.Output))
	}

	sorted := make([]tools.Signature, len(req.Tools))
	copy(sorted, req.Tools)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, sig := range sorted {
		lines = append(lines, "", toolStub(d, sig))
	}

	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}

func collectRecordFields(d *discovery, r *schema.Record) {
	for _, f := range r.Fields {
		d.collect(f.Type)
	}
}

// renderAuxiliary emits every discovered auxiliary definition exactly once,
// iterating the combined registries in name-sorted order. Emitting a name
// first emits its own unemitted dependencies, guarded by the emitted set so
// shared and self-referential types neither duplicate nor recurse forever.
// The two primary schema records are skipped; they render as primary blocks.
func renderAuxiliary(d *discovery, skip map[string]bool) []string {
	names := make([]string, 0, len(d.newTypes)+len(d.aliases)+len(d.records)+len(d.dataclasses))
	for name := range d.newTypes {
		names = append(names, name)
	}
	for name := range d.aliases {
		names = append(names, name)
	}
	for name := range d.records {
		names = append(names, name)
	}
	for name := range d.dataclasses {
		names = append(names, name)
	}
	sort.Strings(names)

	var blocks []string
	emitted := make(map[string]bool, len(names))
	var emit func(name string)
	emit = func(name string) {
		if emitted[name] || skip[name] {
			return
		}
		emitted[name] = true

		var body schema.Annotation
		switch {
		case d.newTypes[name] != nil:
			body = d.newTypes[name].Underlying
		case d.aliases[name] != nil:
			body = d.aliases[name].Value
		case d.records[name] != nil:
			body = auxRecordBody(d.records[name])
		case d.dataclasses[name] != nil:
			body = auxRecordBody(d.dataclasses[name])
		default:
			return
		}

		for _, dep := range depNames(body, nil, map[string]struct{}{name: {}}) {
			emit(dep)
		}

		var block string
		switch {
		case d.newTypes[name] != nil:
			nt := d.newTypes[name]
			d.collect(nt.Underlying)
			block = name + ` = NewType("` + name + `", ` + d.resolve(nt.Underlying) + `)`
		case d.aliases[name] != nil:
			d.collect(d.aliases[name].Value)
			block = name + " = " + d.resolve(d.aliases[name].Value)
		case d.records[name] != nil:
			block = recordStub(d, d.records[name])
		default:
			block = recordStub(d, d.dataclasses[name])
		}
		blocks = append(blocks, block)
	}
	for _, name := range names {
		emit(name)
	}
	return blocks
}

// auxRecordBody folds a record's field annotations into one synthetic tuple
// so depNames can walk them uniformly.
func auxRecordBody(r *schema.Record) schema.Annotation {
	items := make([]schema.Annotation, len(r.Fields))
	for i, f := range r.Fields {
		items[i] = f.Type
	}
	return &schema.Generic{Origin: "tuple", Args: items}
}

// recordStub renders a record block: schema models as TypedDict subclasses,
// dataclass records as plain classes. Field order is declaration order.
func recordStub(d *discovery, r *schema.Record) string {
	header := "class " + r.Name + "(TypedDict):"
	if r.Kind == schema.KindDataclass {
		header = "class " + r.Name + ":"
	}
	lines := []string{header}
	for _, f := range r.Fields {
		lines = append(lines, "    "+f.Name+": "+d.resolve(f.Type))
	}
	if len(lines) == 1 {
		lines = append(lines, "    pass")
	}
	return strings.Join(lines, "\n")
}

// toolStub renders a single function-signature declaration. Variadic
// parameters render as bare *name/**name; defaults are not rendered.
func toolStub(d *discovery, sig tools.Signature) string {
	params := make([]string, 0, len(sig.Params))
	for _, p := range sig.Params {
		switch p.Kind {
		case tools.KindVarPositional:
			params = append(params, "*"+p.Name)
		case tools.KindVarKeyword:
			params = append(params, "**"+p.Name)
		default:
			params = append(params, p.Name+": "+d.resolve(p.Type))
		}
	}
	return "def " + sig.Name + "(" + strings.Join(params, ", ") + ") -> " + d.resolve(sig.Return) + ": ..."
}
