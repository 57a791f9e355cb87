// Package validator gates task completion behind a registry of named rules.
//
// Rules are pure predicates over the produced artifact. A panicking predicate
// is recovered and downgraded to an ERROR finding rather than crashing the
// engine; warnings never block a result.
package validator

import (
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/calder/foreman/internal/models"
)

// Artifact is the produced output under validation: the executor's textual
// output plus the path it was asked to write.
type Artifact struct {
	Content string
	Path    string
}

// Predicate reports whether the artifact satisfies one rule.
type Predicate func(a *Artifact) bool

// Rule couples a predicate with its severity and failure message.
type Rule struct {
	Name     string
	Check    Predicate
	Severity models.Severity
	Message  string
}

// Validator runs every registered rule against an artifact. Rule iteration
// order is registration order, which keeps scores and findings deterministic
// for identical inputs.
type Validator struct {
	mu    sync.RWMutex
	rules []Rule
}

// New returns a Validator with the default structural rules registered.
func New() *Validator {
	v := &Validator{}
	for _, r := range defaultRules() {
		v.rules = append(v.rules, r)
	}
	return v
}

// NewEmpty returns a Validator with no rules; Validate on it passes with
// score 0.
func NewEmpty() *Validator {
	return &Validator{}
}

// Register adds a rule. Callers extend validation without modifying the
// core; a rule with a duplicate name replaces the original in place.
func (v *Validator) Register(rule Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Check == nil {
		return fmt.Errorf("rule %s: predicate is required", rule.Name)
	}
	switch rule.Severity {
	case models.SeverityError, models.SeverityWarning, models.SeverityInfo:
	default:
		return fmt.Errorf("rule %s: invalid severity %q", rule.Name, rule.Severity)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i, existing := range v.rules {
		if existing.Name == rule.Name {
			v.rules[i] = rule
			return nil
		}
	}
	v.rules = append(v.rules, rule)
	return nil
}

// Unregister removes a rule by name.
func (v *Validator) Unregister(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, r := range v.rules {
		if r.Name == name {
			v.rules = append(v.rules[:i], v.rules[i+1:]...)
			return
		}
	}
}

// Validate runs every rule and aggregates findings. Score is the uniform
// fraction of passed rules; Passed is true exactly when no ERROR-severity
// rule failed.
func (v *Validator) Validate(a *Artifact) *models.ValidationResult {
	v.mu.RLock()
	rules := make([]Rule, len(v.rules))
	copy(rules, v.rules)
	v.mu.RUnlock()

	result := &models.ValidationResult{
		Details: make(map[string]models.RuleOutcome, len(rules)),
	}

	passed := 0
	for _, rule := range rules {
		ok, panicMsg := runPredicate(rule.Check, a)

		outcome := models.RuleOutcome{Passed: ok, Severity: rule.Severity}
		if !ok {
			msg := rule.Message
			if panicMsg != "" {
				// A misbehaving predicate is a validation error, not a crash.
				msg = fmt.Sprintf("rule %s panicked: %s", rule.Name, panicMsg)
				outcome.Severity = models.SeverityError
			}
			outcome.Message = msg
			switch outcome.Severity {
			case models.SeverityError:
				result.Errors = append(result.Errors, msg)
			case models.SeverityWarning:
				result.Warnings = append(result.Warnings, msg)
			}
		} else {
			passed++
		}
		result.Details[rule.Name] = outcome
	}

	if len(rules) > 0 {
		result.Score = float64(passed) / float64(len(rules))
	}
	result.Passed = len(result.Errors) == 0
	return result
}

// runPredicate invokes a predicate, converting panics into failures.
func runPredicate(p Predicate, a *Artifact) (ok bool, panicMsg string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			panicMsg = fmt.Sprint(r)
		}
	}()
	return p(a), ""
}

// snakeCaseName matches the expected artifact naming convention:
// lowercase words joined by underscores, with an extension.
var snakeCaseName = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*\.[a-z0-9]+$`)

func defaultRules() []Rule {
	return []Rule{
		{
			Name:     "non_empty_content",
			Severity: models.SeverityError,
			Message:  "executor produced empty output",
			Check: func(a *Artifact) bool {
				return strings.TrimSpace(a.Content) != ""
			},
		},
		{
			Name:     "parseable_artifact",
			Severity: models.SeverityError,
			Message:  "artifact does not parse",
			Check:    checkParseable,
		},
		{
			Name:     "naming_convention",
			Severity: models.SeverityWarning,
			Message:  "artifact name is not snake_case",
			Check: func(a *Artifact) bool {
				if a.Path == "" {
					return true
				}
				return snakeCaseName.MatchString(filepath.Base(a.Path))
			},
		},
		{
			Name:     "output_path_exists",
			Severity: models.SeverityError,
			Message:  "artifact path does not exist",
			Check: func(a *Artifact) bool {
				if a.Path == "" {
					return true
				}
				_, err := os.Stat(a.Path)
				return err == nil
			},
		},
	}
}

// checkParseable verifies the artifact is syntactically valid for its kind:
// Go source parses, JSON unmarshals, everything else must be valid UTF-8.
func checkParseable(a *Artifact) bool {
	content := a.Content
	if a.Path != "" {
		if data, err := os.ReadFile(a.Path); err == nil {
			content = string(data)
		}
	}

	switch strings.ToLower(filepath.Ext(a.Path)) {
	case ".go":
		fset := token.NewFileSet()
		_, err := parser.ParseFile(fset, filepath.Base(a.Path), content, 0)
		return err == nil
	case ".json":
		var v interface{}
		return json.Unmarshal([]byte(content), &v) == nil
	default:
		return utf8.ValidString(content)
	}
}
