package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeArtifacts persists the script's generated outputs under
// <dir>/<name>/: the type stubs, the sandbox source, and the latest check
// result. The artifacts are a pure function of the script content, so
// re-checking an unchanged script rewrites identical files.
func (s *Script) writeArtifacts(cr *CheckResult) error {
	dir := filepath.Join(s.grailDir, s.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stubs.pyi"), []byte(s.Stubs), 0o644); err != nil {
		return fmt.Errorf("write stubs: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "monty_code.py"), []byte(s.Generated), 0o644); err != nil {
		return fmt.Errorf("write generated code: %w", err)
	}
	checkJSON, err := json.MarshalIndent(cr, "", "  ")
	if err != nil {
		return fmt.Errorf("encode check result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "check.json"), append(checkJSON, '\n'), 0o644); err != nil {
		return fmt.Errorf("write check result: %w", err)
	}
	return nil
}
