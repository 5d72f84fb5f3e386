package fault

import (
	"strings"
)

// Classification is the category/severity pair assigned to a capture,
// along with the pattern that produced it (nil when heuristics decided).
type Classification struct {
	Category Category
	Severity Severity
	Pattern  *Pattern
}

// Classifier assigns category and severity, consulting the pattern
// registry first and falling back to keyword heuristics.
type Classifier struct {
	registry *Registry

	// DualMatch reproduces a quirk of the original engine: severity is
	// resolved by a second, case-sensitive pattern pass over the raw
	// message (then stack), independent of the category pass. The two
	// passes can disagree, yielding a category/severity pair never
	// declared together on any single pattern. Off by default: severity
	// is taken from the same pattern that decided the category.
	DualMatch bool
}

// NewClassifier returns a classifier over the given registry.
func NewClassifier(registry *Registry) *Classifier {
	return &Classifier{registry: registry}
}

// Classify determines category and severity for an error. It always
// terminates with a value; unknown/medium is the universal floor.
func (c *Classifier) Classify(errorType, message, stack string) Classification {
	combined := strings.ToLower(message) + " " + strings.ToLower(stack)

	pattern := c.registry.Match(combined)

	category := CategoryUnknown
	if pattern != nil {
		category = pattern.Category
	} else {
		category = fallbackCategory(errorType, message)
	}

	var severity Severity
	switch {
	case c.DualMatch:
		severity = c.severityDualPass(message, stack, category)
	case pattern != nil:
		severity = pattern.Severity
	default:
		severity = severityForCategory(category)
	}

	return Classification{
		Category: category,
		Severity: severity,
		Pattern:  pattern,
	}
}

// severityDualPass re-runs the registry against the raw message, then the
// raw stack, and falls back to the category table when neither matches.
func (c *Classifier) severityDualPass(message, stack string, category Category) Severity {
	if message != "" {
		if p := c.registry.Match(message); p != nil {
			return p.Severity
		}
	}
	if stack != "" {
		if p := c.registry.Match(stack); p != nil {
			return p.Severity
		}
	}
	return severityForCategory(category)
}

// fallbackCategory applies the ordered keyword heuristics; first match
// wins. Runs only when no pattern matched.
func fallbackCategory(errorType, message string) Category {
	name := strings.ToLower(errorType)
	msg := strings.ToLower(message)

	contains := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(name, kw) || strings.Contains(msg, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("unauthorized", "auth"):
		return CategoryAuthentication
	case contains("permission", "forbidden"):
		return CategoryAuthorization
	case contains("validation", "invalid"):
		return CategoryValidation
	case contains("database", "sql"):
		return CategoryDatabase
	case contains("network", "timeout"):
		return CategoryNetwork
	case contains("performance", "slow"):
		return CategoryPerformance
	}
	return CategoryUnknown
}

// severityForCategory is the fixed category-to-severity table used when no
// pattern supplies a severity.
func severityForCategory(category Category) Severity {
	switch category {
	case CategorySecurity, CategorySystem:
		return SeverityCritical
	case CategoryDatabase, CategoryTrading, CategoryCompliance:
		return SeverityHigh
	case CategoryAuthentication, CategoryAuthorization, CategoryMarketData:
		return SeverityMedium
	case CategoryValidation, CategoryPerformance:
		return SeverityLow
	}
	return SeverityMedium
}
