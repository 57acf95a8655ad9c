package stubs

import (
	"sort"
	"strings"

	"goa.design/grail/schema"
)

// discovery is the per-request accumulator threaded through annotation
// resolution: the four auxiliary-definition registries plus the import flags.
// A fresh discovery is created for every render so reset semantics are a
// construction, not a mutation.
type discovery struct {
	usesAny      bool
	usesCallable bool

	newTypes    map[string]*schema.NewType
	aliases     map[string]*schema.Alias
	records     map[string]*schema.Record
	dataclasses map[string]*schema.Record
}

func newDiscovery() *discovery {
	return &discovery{
		newTypes:    make(map[string]*schema.NewType),
		aliases:     make(map[string]*schema.Alias),
		records:     make(map[string]*schema.Record),
		dataclasses: make(map[string]*schema.Record),
	}
}

// collect walks an annotation, registering every named auxiliary definition
// reachable from it and raising the import flags. Registration de-duplicates
// by name before recursing into a name's body, so self-referential and
// mutually recursive records terminate.
func (d *discovery) collect(a schema.Annotation) {
	switch t := a.(type) {
	case nil:
		d.usesAny = true
	case *schema.NewType:
		if _, ok := d.newTypes[t.Name]; ok {
			return
		}
		d.newTypes[t.Name] = t
		d.collect(t.Underlying)
	case *schema.Alias:
		if _, ok := d.aliases[t.Name]; ok {
			return
		}
		d.aliases[t.Name] = t
		d.collect(t.Value)
	case *schema.Record:
		reg := d.records
		if t.Kind == schema.KindDataclass {
			reg = d.dataclasses
		}
		if _, ok := reg[t.Name]; ok {
			return
		}
		reg[t.Name] = t
		for _, f := range t.Fields {
			d.collect(f.Type)
		}
	case *schema.Generic:
		if t.Origin == "Callable" {
			d.usesCallable = true
			switch {
			case len(t.Args) != 2:
				d.usesAny = true
			case t.Args[0] != schema.Ellipsis:
				// Mirror resolveCallable: a malformed parameter slot
				// renders as Callable[..., Any].
				if _, ok := t.Args[0].(*schema.Params); !ok {
					d.usesAny = true
				}
			}
		}
		if isElementOrigin(t.Origin) && len(t.Args) == 0 {
			d.usesAny = true
		}
		if t.Origin == "dict" && len(t.Args) < 2 {
			d.usesAny = true
		}
		if t.Origin == "tuple" && len(t.Args) == 0 {
			d.usesAny = true
		}
		for _, arg := range t.Args {
			if arg == schema.Ellipsis {
				continue
			}
			d.collect(arg)
		}
	case *schema.Params:
		for _, item := range t.Items {
			d.collect(item)
		}
	case *schema.Union:
		for _, m := range t.Members {
			d.collect(m)
		}
	case *schema.Raw:
		if strings.ReplaceAll(t.Text, "typing.", "") == "Any" {
			d.usesAny = true
		}
	default:
		if a == schema.Dynamic {
			d.usesAny = true
		}
	}
}

// resolve returns the canonical rendered text for an annotation, registering
// named definitions it references so the renderer can emit them later. The
// priority order of the branches follows the resolution rules: named types
// render as bare names without inlining their bodies; unrecognized shapes
// degrade to the dynamic type instead of failing.
func (d *discovery) resolve(a schema.Annotation) string {
	switch t := a.(type) {
	case nil:
		d.usesAny = true
		return "Any"
	case *schema.Primitive:
		return t.Name
	case *schema.NewType:
		if _, ok := d.newTypes[t.Name]; !ok {
			d.newTypes[t.Name] = t
		}
		return t.Name
	case *schema.Alias:
		if _, ok := d.aliases[t.Name]; !ok {
			d.aliases[t.Name] = t
		}
		return t.Name
	case *schema.Record:
		reg := d.records
		if t.Kind == schema.KindDataclass {
			reg = d.dataclasses
		}
		if _, ok := reg[t.Name]; !ok {
			reg[t.Name] = t
		}
		return t.Name
	case *schema.Generic:
		return d.resolveGeneric(t)
	case *schema.Params:
		// A bare parameter list only occurs inside Callable; resolving one
		// standalone falls back to its bracketed form.
		items := make([]string, len(t.Items))
		for i, item := range t.Items {
			items[i] = d.resolve(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case *schema.Union:
		return d.resolveUnion(t.Members)
	case *schema.Opaque:
		return t.Name
	case *schema.Raw:
		text := strings.ReplaceAll(t.Text, "typing.", "")
		if text == "Any" {
			d.usesAny = true
		}
		return text
	default:
		switch a {
		case schema.None:
			return "None"
		case schema.Ellipsis:
			return "..."
		default: // schema.Dynamic and anything unrecognized
			d.usesAny = true
			return "Any"
		}
	}
}

func (d *discovery) resolveGeneric(g *schema.Generic) string {
	args := make([]string, 0, len(g.Args))
	for _, arg := range g.Args {
		if arg == schema.Ellipsis {
			continue
		}
		args = append(args, d.resolve(arg))
	}

	switch g.Origin {
	case "union", "Union":
		return d.resolveUnion(g.Args)
	case "list", "set", "frozenset":
		inner := "Any"
		if len(args) > 0 {
			inner = args[0]
		} else {
			d.usesAny = true
		}
		return g.Origin + "[" + inner + "]"
	case "dict":
		left, right := "Any", "Any"
		if len(args) > 0 {
			left = args[0]
		}
		if len(args) > 1 {
			right = args[1]
		}
		if len(args) < 2 {
			d.usesAny = true
		}
		return "dict[" + left + ", " + right + "]"
	case "tuple":
		if len(g.Args) == 2 && g.Args[1] == schema.Ellipsis {
			return "tuple[" + d.resolve(g.Args[0]) + ", ...]"
		}
		if len(args) == 0 {
			d.usesAny = true
			return "tuple[Any, ...]"
		}
		return "tuple[" + strings.Join(args, ", ") + "]"
	case "Callable":
		return d.resolveCallable(g)
	}
	if len(args) == 0 {
		return g.Origin
	}
	return g.Origin + "[" + strings.Join(args, ", ") + "]"
}

func (d *discovery) resolveCallable(g *schema.Generic) string {
	d.usesCallable = true
	if len(g.Args) != 2 {
		d.usesAny = true
		return "Callable[..., Any]"
	}
	ret := d.resolve(g.Args[1])
	if g.Args[0] == schema.Ellipsis {
		return "Callable[..., " + ret + "]"
	}
	params, ok := g.Args[0].(*schema.Params)
	if !ok {
		d.usesAny = true
		return "Callable[..., Any]"
	}
	items := make([]string, len(params.Items))
	for i, item := range params.Items {
		items[i] = d.resolve(item)
	}
	return "Callable[[" + strings.Join(items, ", ") + "], " + ret + "]"
}

// resolveUnion renders a union with members sorted and de-duplicated by
// rendered text and None forced to the end, so output is identical no matter
// how a source type system ordered the members internally.
func (d *discovery) resolveUnion(members []schema.Annotation) string {
	rendered := make([]string, 0, len(members))
	hasNone := false
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		text := d.resolve(m)
		if text == "None" {
			hasNone = true
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		rendered = append(rendered, text)
	}
	sort.Strings(rendered)

	switch {
	case hasNone && len(rendered) == 1:
		return rendered[0] + " | None"
	case hasNone:
		return strings.Join(append(rendered, "None"), " | ")
	default:
		return strings.Join(rendered, " | ")
	}
}

// depNames returns the names of auxiliary definitions referenced by an
// annotation, in encounter order, without crossing named-type boundaries.
// It drives dependency-first emission of auxiliary blocks.
func depNames(a schema.Annotation, into []string, seen map[string]struct{}) []string {
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		into = append(into, name)
	}
	switch t := a.(type) {
	case *schema.NewType:
		add(t.Name)
	case *schema.Alias:
		add(t.Name)
	case *schema.Record:
		add(t.Name)
	case *schema.Generic:
		for _, arg := range t.Args {
			into = depNames(arg, into, seen)
		}
	case *schema.Params:
		for _, item := range t.Items {
			into = depNames(item, into, seen)
		}
	case *schema.Union:
		for _, m := range t.Members {
			into = depNames(m, into, seen)
		}
	}
	return into
}

func isElementOrigin(origin string) bool {
	return origin == "list" || origin == "set" || origin == "frozenset"
}
