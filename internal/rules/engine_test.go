package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEngineLiteralAndRegexRules(t *testing.T) {
	t.Parallel()

	rulesPath := writeRules(t, `
rules:
  - say: full stop
    write: "."
  - pattern: '\s+([.,!?])'
    replace: '$1'
    global: true
  - say: tailwind
    write: Tailwind
`)

	engine, err := NewEngine(rulesPath, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.Len() != 3 {
		t.Fatalf("expected 3 rules, got %d", engine.Len())
	}

	output, err := engine.Apply("a bakery site using TAILWIND full stop")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "a bakery site using Tailwind." {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineIteratesUntilStable(t *testing.T) {
	t.Parallel()

	engine, err := Parse([]byte(`
rules:
  - say: a
    write: b
  - say: b
    write: c
`), 5)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	output, err := engine.Apply("a")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "c" {
		t.Fatalf("expected c, got %q", output)
	}
}

func TestEngineStopsAtIterationLimit(t *testing.T) {
	t.Parallel()

	engine, err := Parse([]byte(`
iteration_limit: 3
rules:
  - pattern: 'x'
    replace: 'xx'
    case_sensitive: true
`), 30)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	output, err := engine.Apply("x")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "xxxxxxxx" {
		t.Fatalf("expected three doublings, got %q", output)
	}
}

func TestRegexRuleWithoutGlobalReplacesFirstMatchOnly(t *testing.T) {
	t.Parallel()

	rule, err := compileRegex(RuleSpec{Pattern: `(fo+)`, Replace: `[$1]`})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	output, changed := rule.Apply("foo FOO")
	if !changed {
		t.Fatalf("expected changed=true")
	}
	if output != "[foo] FOO" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestCompileRejectsAmbiguousAndEmptyRules(t *testing.T) {
	t.Parallel()

	if _, err := compile(RuleSpec{Say: "x", Pattern: "y"}); err == nil {
		t.Fatalf("expected error for rule with both say and pattern")
	}
	if _, err := compile(RuleSpec{Write: "x"}); err == nil {
		t.Fatalf("expected error for empty rule")
	}
	if _, err := compile(RuleSpec{Pattern: "("}); err == nil {
		t.Fatalf("expected invalid regex error")
	}
}

func TestNewEngineMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(filepath.Join(t.TempDir(), "missing.yaml"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output, err := engine.Apply("unchanged")
	if err != nil || output != "unchanged" {
		t.Fatalf("expected passthrough, got %q err=%v", output, err)
	}
}

func TestNewEngineInvalidYAML(t *testing.T) {
	t.Parallel()

	rulesPath := writeRules(t, "rules: [this is: not: valid")
	if _, err := NewEngine(rulesPath, 30); err == nil {
		t.Fatalf("expected parse error")
	}
}

func writeRules(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dictation.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}
