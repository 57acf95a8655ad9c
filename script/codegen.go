package script

import "strings"

// Generate produces the sandbox-ready source from a parse result. Stripped
// declarations (grail imports, @external blocks, Input() assignments) are
// replaced with blank lines so every kept line sits at its original line
// number, which keeps the source map exact.
func Generate(res *ParseResult) (string, *SourceMap) {
	generated := make([]string, len(res.Lines))
	sm := NewSourceMap()
	for i, line := range res.Lines {
		if res.stripped[i+1] {
			generated[i] = ""
			continue
		}
		generated[i] = line
		if strings.TrimSpace(line) != "" {
			sm.Add(i+1, i+1)
		}
	}
	return strings.Join(generated, "\n"), sm
}
