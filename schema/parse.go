package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// TypeEnv resolves bare names appearing in annotation expressions to named
// annotations (records, new-types, aliases). Names absent from the
// environment parse as Opaque references.
type TypeEnv map[string]Annotation

// ParseExpr parses the annotation-expression subset that appears in script
// declarations: bare names, subscripted containers, unions written with "|",
// Optional/Union spellings, Callable forms, the "..." sentinel and quoted
// forward references. Host-language module prefixes ("typing.") are stripped.
//
// The parser is strict about syntax (unbalanced brackets and stray tokens are
// errors) but lenient about vocabulary: any well-formed name it does not
// recognize parses as an Opaque reference, matching the stub generator's
// degrade-don't-fail policy.
func ParseExpr(src string, env TypeEnv) (Annotation, error) {
	p := &exprParser{src: src, env: env}
	a, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("parse annotation %q: unexpected %q at offset %d", src, p.src[p.pos:], p.pos)
	}
	return a, nil
}

type exprParser struct {
	src string
	env TypeEnv
	pos int
}

func (p *exprParser) parseUnion() (Annotation, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	members := []Annotation{first}
	for {
		p.skipSpace()
		if !p.consume('|') {
			break
		}
		next, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		members = append(members, next)
	}
	if len(members) == 1 {
		return members[0], nil
	}
	return &Union{Members: members}, nil
}

func (p *exprParser) parseTerm() (Annotation, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("parse annotation %q: unexpected end of input", p.src)
	}
	switch c := p.src[p.pos]; {
	case c == '(':
		p.pos++
		inner, err := p.parseUnion()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.consume(')') {
			return nil, fmt.Errorf("parse annotation %q: missing closing parenthesis", p.src)
		}
		return inner, nil
	case c == '"' || c == '\'':
		// Quoted forward reference: parse the quoted text as a name.
		quote := c
		end := strings.IndexByte(p.src[p.pos+1:], quote)
		if end < 0 {
			return nil, fmt.Errorf("parse annotation %q: unterminated string", p.src)
		}
		name := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return p.resolveName(name, nil)
	case c == '.':
		if strings.HasPrefix(p.src[p.pos:], "...") {
			p.pos += 3
			return Ellipsis, nil
		}
		return nil, fmt.Errorf("parse annotation %q: unexpected '.' at offset %d", p.src, p.pos)
	case isIdentStart(rune(c)):
		name := p.parseName()
		var args []Annotation
		p.skipSpace()
		if p.consume('[') {
			var err error
			args, err = p.parseArgs()
			if err != nil {
				return nil, err
			}
		}
		return p.resolveName(name, args)
	default:
		return nil, fmt.Errorf("parse annotation %q: unexpected %q at offset %d", p.src, c, p.pos)
	}
}

// parseArgs parses a bracketed argument list after the opening '[' has been
// consumed. A nested bare '[...]' argument (the Callable parameter position)
// parses as a Params node.
func (p *exprParser) parseArgs() ([]Annotation, error) {
	var args []Annotation
	for {
		p.skipSpace()
		if p.consume(']') {
			return args, nil
		}
		if p.consume('[') {
			items, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			args = append(args, &Params{Items: items})
		} else {
			arg, err := p.parseUnion()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(']') {
			return args, nil
		}
		return nil, fmt.Errorf("parse annotation %q: expected ',' or ']' at offset %d", p.src, p.pos)
	}
}

func (p *exprParser) parseName() string {
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if isIdentStart(r) || unicode.IsDigit(r) || r == '.' {
			p.pos++
			continue
		}
		break
	}
	name := p.src[start:p.pos]
	return strings.TrimPrefix(name, "typing.")
}

func (p *exprParser) resolveName(name string, args []Annotation) (Annotation, error) {
	switch name {
	case "None", "NoneType":
		return None, nil
	case "Any":
		return Dynamic, nil
	case "int", "str", "bool", "float", "bytes":
		if len(args) > 0 {
			return nil, fmt.Errorf("parse annotation %q: %s is not generic", p.src, name)
		}
		return &Primitive{Name: name}, nil
	case "Optional":
		if len(args) != 1 {
			return nil, fmt.Errorf("parse annotation %q: Optional takes exactly one argument", p.src)
		}
		return Optional(args[0]), nil
	case "Union":
		if len(args) == 0 {
			return nil, fmt.Errorf("parse annotation %q: Union requires arguments", p.src)
		}
		return &Union{Members: args}, nil
	case "list", "set", "frozenset", "dict", "tuple", "Callable":
		return &Generic{Origin: name, Args: args}, nil
	case "List", "Set", "FrozenSet", "Dict", "Tuple":
		// Legacy typing capitalized spellings normalize to builtin origins.
		return &Generic{Origin: strings.ToLower(name), Args: args}, nil
	}
	if named, ok := p.env[name]; ok {
		if len(args) > 0 {
			return &Generic{Origin: name, Args: args}, nil
		}
		return named, nil
	}
	if len(args) > 0 {
		return &Generic{Origin: name, Args: args}, nil
	}
	return &Opaque{Name: name}, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
