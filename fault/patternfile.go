package fault

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/oxbowlabs/faultline/errors"
)

// PatternSpec is the on-disk form of a detection pattern. Operators extend
// the built-in set through a YAML patterns file; specs with an id matching
// an existing pattern override it in place.
type PatternSpec struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Regex         string   `yaml:"regex"`
	Category      string   `yaml:"category"`
	Severity      string   `yaml:"severity"`
	Tags          []string `yaml:"tags"`
	RecoveryHints []string `yaml:"recovery_hints"`
}

type patternFile struct {
	Patterns []PatternSpec `yaml:"patterns"`
}

// Compile validates a spec and turns it into a registerable pattern.
func (s PatternSpec) Compile() (*Pattern, error) {
	if s.ID == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "pattern spec missing id")
	}
	if s.Regex == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "pattern %s missing regex", s.ID)
	}

	re, err := regexp.Compile(s.Regex)
	if err != nil {
		return nil, errors.Wrapf(err, "pattern %s has invalid regex", s.ID)
	}

	severity := Severity(s.Severity)
	if severity == "" {
		severity = SeverityMedium
	} else if severity.Rank() < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "pattern %s has unknown severity %q", s.ID, s.Severity)
	}

	category := Category(s.Category)
	if category == "" {
		category = CategoryUnknown
	}

	return &Pattern{
		ID:            s.ID,
		Name:          s.Name,
		Description:   s.Description,
		Regex:         re,
		Category:      category,
		Severity:      severity,
		Tags:          s.Tags,
		RecoveryHints: s.RecoveryHints,
	}, nil
}

// LoadPatternFile reads a YAML patterns file and compiles its entries in
// declaration order.
func LoadPatternFile(path string) ([]*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read patterns file %s", path)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse patterns file %s", path)
	}

	patterns := make([]*Pattern, 0, len(file.Patterns))
	for _, spec := range file.Patterns {
		p, err := spec.Compile()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// SyncPatternFile loads a patterns file into the registry, upserting each
// entry. Returns how many patterns were applied.
func SyncPatternFile(registry *Registry, path string) (int, error) {
	patterns, err := LoadPatternFile(path)
	if err != nil {
		return 0, err
	}
	for _, p := range patterns {
		registry.Register(p)
	}
	return len(patterns), nil
}
