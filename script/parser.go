package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"goa.design/grail/schema"
	"goa.design/grail/tools"
)

var (
	annInputRe  = regexp.MustCompile(`^([A-Za-z_]\w*)\s*:\s*(.+?)\s*=\s*(?:grail\.)?Input\((.*)\)\s*$`)
	bareInputRe = regexp.MustCompile(`^([A-Za-z_]\w*)\s*=\s*(?:grail\.)?Input\((.*)\)\s*$`)
	defRe       = regexp.MustCompile(`^(async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
)

// Parse extracts external and input declarations from .pym source. The
// filename is used in error messages only.
func Parse(content, filename string) (*ParseResult, error) {
	lines := strings.Split(content, "\n")
	res := &ParseResult{
		Externals: make(map[string]*ExternalSpec),
		Inputs:    make(map[string]*InputSpec),
		Lines:     lines,
		stripped:  make(map[int]bool),
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !isTopLevel(line) {
			continue
		}
		trimmed := strings.TrimSpace(line)

		if isGrailImport(trimmed) {
			res.stripped[i+1] = true
			continue
		}

		if strings.HasPrefix(trimmed, "@") {
			next, err := res.parseDecorated(lines, i)
			if err != nil {
				return nil, err
			}
			i = next
			continue
		}

		if m := annInputRe.FindStringSubmatch(trimmed); m != nil {
			if err := res.addInput(m[1], m[2], m[3], i+1); err != nil {
				return nil, err
			}
			continue
		}
		if m := bareInputRe.FindStringSubmatch(trimmed); m != nil {
			if err := res.addInput(m[1], "<missing>", m[2], i+1); err != nil {
				return nil, err
			}
			continue
		}
	}
	_ = filename
	return res, nil
}

// isTopLevel reports whether the line starts a top-level statement.
func isTopLevel(line string) bool {
	return line != "" && line[0] != ' ' && line[0] != '\t'
}

func isGrailImport(trimmed string) bool {
	return strings.HasPrefix(trimmed, "from grail import") ||
		trimmed == "import grail" ||
		strings.HasPrefix(trimmed, "import grail ")
}

// parseDecorated handles a decorator block starting at 0-based line idx and
// returns the index of the last consumed line. Functions decorated with
// @external are recorded and their whole block marked for stripping; other
// decorated functions are left untouched.
func (r *ParseResult) parseDecorated(lines []string, idx int) (int, error) {
	start := idx
	external := false
	for idx < len(lines) {
		trimmed := strings.TrimSpace(lines[idx])
		if !strings.HasPrefix(trimmed, "@") {
			break
		}
		name := strings.TrimPrefix(trimmed, "@")
		if name == "external" || name == "grail.external" {
			external = true
		}
		idx++
	}
	if !external {
		return start, nil
	}
	if idx >= len(lines) || defRe.FindStringSubmatch(strings.TrimSpace(lines[idx])) == nil {
		return 0, &CheckError{Msg: "@external must decorate a function definition", Line: start + 1}
	}

	spec, sigEnd, err := parseSignature(lines, idx)
	if err != nil {
		return 0, err
	}

	// Body: indented or blank lines up to the next top-level statement.
	end := sigEnd
	for end+1 < len(lines) {
		next := lines[end+1]
		if isTopLevel(next) {
			break
		}
		end++
	}
	spec.EndLine = end + 1
	spec.Doc = extractDocstring(lines, sigEnd+1, end)
	for l := start + 1; l <= end+1; l++ {
		r.stripped[l] = true
	}

	r.externalOrder = append(r.externalOrder, spec)
	if _, dup := r.Externals[spec.Name]; !dup {
		r.Externals[spec.Name] = spec
	}
	return end, nil
}

// parseSignature reads a possibly multi-line def signature starting at
// 0-based line idx and returns the parsed external plus the 0-based line the
// signature ends on.
func parseSignature(lines []string, idx int) (*ExternalSpec, int, error) {
	m := defRe.FindStringSubmatch(strings.TrimSpace(lines[idx]))
	spec := &ExternalSpec{Name: m[2], Async: m[1] != "", Line: idx + 1}

	var sig strings.Builder
	end := idx
	for {
		sig.WriteString(strings.TrimSpace(lines[end]))
		text := sig.String()
		if bracketBalance(text) == 0 && strings.HasSuffix(text, ":") {
			break
		}
		end++
		if end >= len(lines) {
			return nil, 0, &ParseError{Msg: "unexpected end of file in function signature", Line: idx + 1}
		}
		sig.WriteString(" ")
	}

	text := sig.String()
	open := strings.Index(text, "(")
	closing := matchingParen(text, open)
	if closing < 0 {
		return nil, 0, &ParseError{Msg: "unbalanced parentheses in function signature", Line: idx + 1}
	}

	params, err := parseParams(text[open+1:closing], spec.Line)
	if err != nil {
		return nil, 0, err
	}
	spec.Params = params

	rest := strings.TrimSuffix(strings.TrimSpace(text[closing+1:]), ":")
	spec.ReturnText = "<missing>"
	if arrow := strings.Index(rest, "->"); arrow >= 0 {
		retText := strings.TrimSpace(rest[arrow+2:])
		ret, err := schema.ParseExpr(retText, nil)
		if err != nil {
			return nil, 0, &CheckError{Msg: fmt.Sprintf("invalid return annotation %q: %s", retText, err), Line: spec.Line}
		}
		spec.ReturnText = retText
		spec.Return = ret
	}
	return spec, end, nil
}

// parseParams parses the text between the signature parentheses.
func parseParams(text string, line int) ([]ParamSpec, error) {
	var params []ParamSpec
	for _, raw := range splitTopLevel(text, ',') {
		token := strings.TrimSpace(raw)
		if token == "" || token == "*" || token == "/" {
			continue
		}
		p := ParamSpec{Kind: tools.KindPositional}
		if strings.HasPrefix(token, "**") {
			p.Kind = tools.KindVarKeyword
			token = token[2:]
		} else if strings.HasPrefix(token, "*") {
			p.Kind = tools.KindVarPositional
			token = token[1:]
		}

		rest := token
		if eq := indexTopLevel(rest, '='); eq >= 0 {
			p.Default = strings.TrimSpace(rest[eq+1:])
			p.HasDefault = true
			rest = strings.TrimSpace(rest[:eq])
		}
		p.TypeText = "<missing>"
		if colon := indexTopLevel(rest, ':'); colon >= 0 {
			annText := strings.TrimSpace(rest[colon+1:])
			ann, err := schema.ParseExpr(annText, nil)
			if err != nil {
				return nil, &CheckError{Msg: fmt.Sprintf("invalid annotation %q: %s", annText, err), Line: line}
			}
			p.TypeText = annText
			p.Type = ann
			rest = strings.TrimSpace(rest[:colon])
		}
		if rest == "" || rest == "self" {
			if rest == "self" {
				continue
			}
			return nil, &CheckError{Msg: "malformed parameter list", Line: line}
		}
		p.Name = rest
		params = append(params, p)
	}
	return params, nil
}

// addInput records an Input() declaration found at the given 1-based line.
func (r *ParseResult) addInput(name, annText, argsText string, line int) error {
	args := splitTopLevel(argsText, ',')
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return &CheckError{Msg: fmt.Sprintf("Input() call for %q missing name argument", name), Line: line}
	}

	spec := &InputSpec{Name: name, TypeText: annText, Required: true, Line: line}
	if annText != "<missing>" {
		ann, err := schema.ParseExpr(annText, nil)
		if err != nil {
			return &CheckError{Msg: fmt.Sprintf("invalid annotation %q: %s", annText, err), Line: line}
		}
		spec.Type = ann
	}
	for _, arg := range args[1:] {
		arg = strings.TrimSpace(arg)
		if value, ok := strings.CutPrefix(arg, "default="); ok {
			spec.Default = parseLiteral(strings.TrimSpace(value))
			spec.Required = false
		}
	}

	r.stripped[line] = true
	r.inputOrder = append(r.inputOrder, spec)
	if _, dup := r.Inputs[name]; !dup {
		r.Inputs[name] = spec
	}
	return nil
}

// parseLiteral converts simple Python literal text into a Go value, falling
// back to the raw text.
func parseLiteral(text string) any {
	switch text {
	case "None":
		return nil
	case "True":
		return true
	case "False":
		return false
	}
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') {
		body := text[1 : len(text)-1]
		if text[0] == '\'' {
			return body
		}
		if unquoted, err := strconv.Unquote(text); err == nil {
			return unquoted
		}
		return body
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}

// extractDocstring returns the docstring opening the body between the given
// 0-based lines, empty when the body does not start with one.
func extractDocstring(lines []string, start, end int) string {
	idx := start
	for idx <= end && strings.TrimSpace(lines[idx]) == "" {
		idx++
	}
	if idx > end {
		return ""
	}
	trimmed := strings.TrimSpace(lines[idx])
	quote := ""
	switch {
	case strings.HasPrefix(trimmed, `"""`):
		quote = `"""`
	case strings.HasPrefix(trimmed, "'''"):
		quote = "'''"
	default:
		return ""
	}
	body := trimmed[len(quote):]
	if closing := strings.Index(body, quote); closing >= 0 {
		return strings.TrimSpace(body[:closing])
	}
	parts := []string{body}
	for idx++; idx <= end; idx++ {
		text := strings.TrimSpace(lines[idx])
		if closing := strings.Index(text, quote); closing >= 0 {
			parts = append(parts, text[:closing])
			break
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// bracketBalance counts unclosed brackets outside string literals.
func bracketBalance(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
	}
	return depth
}

// matchingParen returns the index of the parenthesis closing the one at
// open, -1 when unbalanced.
func matchingParen(s string, open int) int {
	if open < 0 {
		return -1
	}
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on sep occurrences outside brackets and strings.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if c == sep && depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	rest := s[last:]
	if strings.TrimSpace(rest) != "" || len(parts) > 0 {
		parts = append(parts, rest)
	}
	return parts
}

// indexTopLevel returns the index of the first sep outside brackets and
// strings, -1 when absent.
func indexTopLevel(s string, sep byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if c == sep && depth == 0 {
				return i
			}
		}
	}
	return -1
}
