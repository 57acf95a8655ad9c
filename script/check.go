package script

import (
	"fmt"
	"regexp"
	"strings"
)

// Check codes.
const (
	// CodeMissingAnnotation flags a declaration without a type annotation.
	CodeMissingAnnotation = "E001"
	// CodeDuplicateName flags two declarations sharing a name.
	CodeDuplicateName = "E002"
	// CodeInputShadowsExternal flags an input named after an external.
	CodeInputShadowsExternal = "E003"
	// CodeTypeError carries a sandbox type-checker failure.
	CodeTypeError = "E100"
	// CodeNoStatements flags a script with no executable code.
	CodeNoStatements = "W001"
	// CodeUnusedInput flags a declared input the code never reads.
	CodeUnusedInput = "W002"
)

// Check validates the declarations and structure of a parsed script.
func Check(res *ParseResult, file string) *CheckResult {
	cr := &CheckResult{File: file, Valid: true, Info: map[string]any{
		"externals": len(res.Externals),
		"inputs":    len(res.Inputs),
	}}

	checkAnnotations(res, cr)
	checkDuplicates(res, cr)
	checkShadowing(res, cr)
	checkStatements(res, cr)
	checkUnusedInputs(res, cr)

	cr.Valid = len(cr.Errors) == 0
	return cr
}

func (cr *CheckResult) addError(code string, line int, msg, suggestion string) {
	cr.Errors = append(cr.Errors, CheckMessage{
		Code: code, Line: line, Severity: "error", Message: msg, Suggestion: suggestion,
	})
}

func (cr *CheckResult) addWarning(code string, line int, msg, suggestion string) {
	cr.Warnings = append(cr.Warnings, CheckMessage{
		Code: code, Line: line, Severity: "warning", Message: msg, Suggestion: suggestion,
	})
}

func checkAnnotations(res *ParseResult, cr *CheckResult) {
	for _, ext := range res.externalOrder {
		for _, p := range ext.Params {
			if p.TypeText == "<missing>" {
				cr.addError(CodeMissingAnnotation, ext.Line,
					fmt.Sprintf("parameter %q of external %q has no type annotation", p.Name, ext.Name),
					fmt.Sprintf("annotate the parameter, e.g. %s: int", p.Name))
			}
		}
		if ext.ReturnText == "<missing>" {
			cr.addError(CodeMissingAnnotation, ext.Line,
				fmt.Sprintf("external %q has no return annotation", ext.Name),
				"add a return annotation, e.g. -> int")
		}
	}
	for _, in := range res.inputOrder {
		if in.TypeText == "<missing>" {
			cr.addError(CodeMissingAnnotation, in.Line,
				fmt.Sprintf("input %q has no type annotation", in.Name),
				fmt.Sprintf("declare it as %s: <type> = Input(...)", in.Name))
		}
	}
}

func checkDuplicates(res *ParseResult, cr *CheckResult) {
	seenExt := make(map[string]bool)
	for _, ext := range res.externalOrder {
		if seenExt[ext.Name] {
			cr.addError(CodeDuplicateName, ext.Line,
				fmt.Sprintf("duplicate external %q", ext.Name), "remove or rename one declaration")
		}
		seenExt[ext.Name] = true
	}
	seenIn := make(map[string]bool)
	for _, in := range res.inputOrder {
		if seenIn[in.Name] {
			cr.addError(CodeDuplicateName, in.Line,
				fmt.Sprintf("duplicate input %q", in.Name), "remove or rename one declaration")
		}
		seenIn[in.Name] = true
	}
}

func checkShadowing(res *ParseResult, cr *CheckResult) {
	for _, in := range res.inputOrder {
		if _, ok := res.Externals[in.Name]; ok {
			cr.addError(CodeInputShadowsExternal, in.Line,
				fmt.Sprintf("input %q shadows the external function of the same name", in.Name),
				"rename the input or the external")
		}
	}
}

func checkStatements(res *ParseResult, cr *CheckResult) {
	for i, line := range res.Lines {
		if res.stripped[i+1] {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			return
		}
	}
	cr.addWarning(CodeNoStatements, 0, "script has no executable statements", "")
}

func checkUnusedInputs(res *ParseResult, cr *CheckResult) {
	generated, _ := Generate(res)
	for _, in := range res.inputOrder {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(in.Name) + `\b`)
		if !re.MatchString(generated) {
			cr.addWarning(CodeUnusedInput, in.Line,
				fmt.Sprintf("input %q is declared but never used", in.Name), "")
		}
	}
}
