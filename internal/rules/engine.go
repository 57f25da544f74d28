package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a dictation rules file.
//
//	iteration_limit: 30
//	rules:
//	  - say: new paragraph
//	    write: "\n\n"
//	  - pattern: '\s+([,.!?])'
//	    replace: '$1'
//	    global: true
type File struct {
	IterationLimit int        `yaml:"iteration_limit"`
	Rules          []RuleSpec `yaml:"rules"`
}

// RuleSpec is either a literal (say/write) or a regex (pattern/replace) rule.
type RuleSpec struct {
	Say           string `yaml:"say"`
	Write         string `yaml:"write"`
	Pattern       string `yaml:"pattern"`
	Replace       string `yaml:"replace"`
	Global        bool   `yaml:"global"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// Engine rewrites dictated text with substitutions until it stops changing.
type Engine struct {
	rules     []compiledRule
	loopLimit int
}

// NewEngine loads rules from a YAML file. A blank path or missing file yields
// an engine that returns text unchanged.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return newEngine(nil, loopLimit), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newEngine(nil, loopLimit), nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	engine, err := Parse(contents, loopLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return engine, nil
}

// Parse compiles a YAML rules document. A positive iteration_limit in the
// document overrides loopLimit.
func Parse(contents []byte, loopLimit int) (*Engine, error) {
	var file File
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, err
	}
	if file.IterationLimit > 0 {
		loopLimit = file.IterationLimit
	}

	compiled := make([]compiledRule, 0, len(file.Rules))
	for index, spec := range file.Rules {
		rule, err := compile(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", index+1, err)
		}
		compiled = append(compiled, rule)
	}
	return newEngine(compiled, loopLimit), nil
}

func newEngine(rules []compiledRule, loopLimit int) *Engine {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	return &Engine{rules: rules, loopLimit: loopLimit}
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply transforms text deterministically.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}

	return result, nil
}

func compile(spec RuleSpec) (compiledRule, error) {
	hasLiteral := strings.TrimSpace(spec.Say) != ""
	hasPattern := spec.Pattern != ""

	switch {
	case hasLiteral && hasPattern:
		return nil, errors.New("rule cannot set both say and pattern")
	case hasLiteral:
		return compileLiteral(spec)
	case hasPattern:
		return compileRegex(spec)
	default:
		return nil, errors.New("rule needs either say or pattern")
	}
}

type literalRule struct {
	replacement string
	re          *regexp.Regexp
}

func compileLiteral(spec RuleSpec) (compiledRule, error) {
	source := regexp.QuoteMeta(strings.TrimSpace(spec.Say))
	if !spec.CaseSensitive {
		source = "(?i)" + source
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{replacement: spec.Write, re: re}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func compileRegex(spec RuleSpec) (compiledRule, error) {
	pattern := spec.Pattern
	if !spec.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: spec.Replace, global: spec.Global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}

	replaced := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(replaced) + input[loc[1]:]
	return output, output != input
}
