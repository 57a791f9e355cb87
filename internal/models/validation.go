package models

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// RuleOutcome records the result of a single validation rule.
type RuleOutcome struct {
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
}

// ValidationResult aggregates the outcome of running every registered rule
// against a produced artifact. Warnings never block: Passed is true exactly
// when no ERROR-severity rule failed.
type ValidationResult struct {
	Passed   bool                   `json:"passed"`
	Errors   []string               `json:"errors,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
	Details  map[string]RuleOutcome `json:"details,omitempty"`
	Score    float64                `json:"score"` // passed rules / total rules, 0.0-1.0
}
