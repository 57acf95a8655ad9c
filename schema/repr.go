package schema

import (
	"sort"
	"strings"
)

// Repr returns a canonical textual representation of an annotation suitable
// for fingerprinting. The representation is a pure function of the annotation
// structure and the stable identities carried by named types (Record.Path,
// NewType/Alias names); it never incorporates runtime addresses, so
// structurally identical annotations always produce identical text.
//
// Repr is distinct from the rendered stub text: it keeps qualified record
// identities and makes no attempt to be valid declaration syntax.
func Repr(a Annotation) string {
	switch t := a.(type) {
	case nil:
		return "Any"
	case noneType:
		return "None"
	case dynamic:
		return "Any"
	case ellipsis:
		return "..."
	case *Primitive:
		return t.Name
	case *NewType:
		return "NewType(" + t.Name + ", " + Repr(t.Underlying) + ")"
	case *Alias:
		return t.Name + "=" + Repr(t.Value)
	case *Record:
		if t.Path != "" {
			return t.Path
		}
		return t.Name
	case *Generic:
		if len(t.Args) == 0 {
			return t.Origin
		}
		parts := make([]string, len(t.Args))
		for i, arg := range t.Args {
			parts[i] = Repr(arg)
		}
		return t.Origin + "[" + strings.Join(parts, ", ") + "]"
	case *Params:
		parts := make([]string, len(t.Items))
		for i, item := range t.Items {
			parts[i] = Repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Union:
		// Sort and deduplicate so member ordering never leaks into the repr.
		seen := make(map[string]struct{}, len(t.Members))
		parts := make([]string, 0, len(t.Members))
		for _, m := range t.Members {
			r := Repr(m)
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			parts = append(parts, r)
		}
		sort.Strings(parts)
		return strings.Join(parts, " | ")
	case *Opaque:
		return t.Name
	case *Raw:
		return t.Text
	default:
		return "Any"
	}
}
