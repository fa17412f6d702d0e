// Package perception turns a user's request into something the rest of gridNERD can act on:
// a query category for prompt selection, and the AI planning service that answers the
// prompt built from it.
package perception

import (
	"strings"

	"gridnerd/internal/logging"
)

// Category selects the instruction block used to prompt the AI service.
type Category string

const (
	CategoryAutomation      Category = "automation"
	CategoryFormula         Category = "formula"
	CategoryAnalysis        Category = "analysis"
	CategoryTroubleshooting Category = "troubleshooting"
	CategoryGeneral         Category = "general"
)

// CategoryRule maps a category to the keywords that select it.
type CategoryRule struct {
	Category Category
	Keywords []string
}

// DefaultRules is the classification table. Order is priority: keyword sets overlap,
// so the first rule with a matching keyword wins.
var DefaultRules = []CategoryRule{
	{CategoryAutomation, []string{"automate", "automation", "macro", "automatically", "batch", "repeat"}},
	{CategoryFormula, []string{"formula", "function", "calculation", "compute", "='", "=", "calculate"}},
	{CategoryAnalysis, []string{"analyze", "analysis", "pattern", "trend", "insight", "dashboard", "chart", "graph"}},
	{CategoryTroubleshooting, []string{"error", "issue", "problem", "fix", "troubleshoot", "not working", "broken"}},
}

// Classifier assigns a category by case-insensitive substring match against ordered rules.
type Classifier struct {
	rules []CategoryRule
}

// NewClassifier returns a classifier over rules. Nil rules means DefaultRules.
func NewClassifier(rules []CategoryRule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the first category whose keywords appear in the query,
// or CategoryGeneral.
func (c *Classifier) Classify(query string) Category {
	q := strings.ToLower(query)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(q, kw) {
				logging.PerceptionDebug("classified as %s (keyword %q)", rule.Category, kw)
				return rule.Category
			}
		}
	}
	logging.PerceptionDebug("classified as %s (no keyword)", CategoryGeneral)
	return CategoryGeneral
}

var defaultClassifier = NewClassifier(nil)

// Classify classifies query with DefaultRules.
func Classify(query string) Category {
	return defaultClassifier.Classify(query)
}
