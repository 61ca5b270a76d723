package monitor

import "maps"

// DefaultThresholdSeconds applies to operations missing from a Table.
const DefaultThresholdSeconds = 120

var referenceThresholds = map[string]float64{
	"ollama_query":   60,
	"model_download": 300,
	"test_execution": 30,
	"s3_upload":      60,
}

// Table maps operation names to their duration budget in seconds. A Table
// is immutable once built.
type Table struct {
	def float64
	ops map[string]float64
}

// Decision is the outcome of classifying one measured duration.
type Decision struct {
	WithinBudget bool    `json:"within_budget"`
	Threshold    float64 `json:"threshold"`
}

// NewTable copies operations into a new Table. A non-positive defaultSeconds
// falls back to DefaultThresholdSeconds.
func NewTable(defaultSeconds float64, operations map[string]float64) Table {
	if defaultSeconds <= 0 {
		defaultSeconds = DefaultThresholdSeconds
	}
	return Table{def: defaultSeconds, ops: maps.Clone(operations)}
}

// DefaultTable returns the reference policy.
func DefaultTable() Table {
	return NewTable(DefaultThresholdSeconds, referenceThresholds)
}

// Default returns the fallback budget.
func (t Table) Default() float64 {
	if t.def <= 0 {
		return DefaultThresholdSeconds
	}
	return t.def
}

// Operations returns a copy of the per-operation budgets.
func (t Table) Operations() map[string]float64 {
	return maps.Clone(t.ops)
}

// Threshold returns the budget for operation.
func (t Table) Threshold(operation string) float64 {
	if seconds, ok := t.ops[operation]; ok {
		return seconds
	}
	return t.Default()
}

// Classify compares seconds against the operation's budget. It has no side
// effects; reporting violations is the caller's step.
func (t Table) Classify(operation string, seconds float64) Decision {
	threshold := t.Threshold(operation)
	return Decision{WithinBudget: seconds <= threshold, Threshold: threshold}
}
