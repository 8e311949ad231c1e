package importer

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// KeywordRule maps a category to the name fragments that identify it
type KeywordRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// PrefixRule maps an item-code prefix to a category
type PrefixRule struct {
	Prefix   string `yaml:"prefix"`
	Category string `yaml:"category"`
}

// ParentGroup declares the leaf categories that belong under a parent
type ParentGroup struct {
	Parent   string   `yaml:"parent"`
	Children []string `yaml:"children"`
}

// Rules is the read-only configuration consumed by the Classifier.
// Slices are used so declaration order survives loading.
type Rules struct {
	DefaultCategory string        `yaml:"default_category"`
	KeywordRules    []KeywordRule `yaml:"keyword_rules"`
	PrefixRules     []PrefixRule  `yaml:"prefix_rules"`
	Hierarchy       []ParentGroup `yaml:"hierarchy"`
}

// DefaultRules returns the rule set shipped with the service
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRulesFile reads a rule set from disk
func LoadRulesFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule set
func ParseRules(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse classifier rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Validate checks the rule set for structural mistakes
func (r *Rules) Validate() error {
	var errs []error
	if strings.TrimSpace(r.DefaultCategory) == "" {
		errs = append(errs, errors.New("default_category is required"))
	}

	seen := make(map[string]bool)
	for i, rule := range r.KeywordRules {
		if strings.TrimSpace(rule.Category) == "" {
			errs = append(errs, fmt.Errorf("keyword_rules[%d]: category is required", i))
			continue
		}
		if seen[rule.Category] {
			errs = append(errs, fmt.Errorf("keyword_rules[%d]: category %q declared twice", i, rule.Category))
		}
		seen[rule.Category] = true
		if len(rule.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("keyword_rules[%d]: %q has no keywords", i, rule.Category))
		}
	}

	for i, rule := range r.PrefixRules {
		if strings.TrimSpace(rule.Prefix) == "" || strings.TrimSpace(rule.Category) == "" {
			errs = append(errs, fmt.Errorf("prefix_rules[%d]: prefix and category are required", i))
		}
	}

	parentOf := make(map[string]string)
	for i, group := range r.Hierarchy {
		if strings.TrimSpace(group.Parent) == "" {
			errs = append(errs, fmt.Errorf("hierarchy[%d]: parent is required", i))
			continue
		}
		for _, child := range group.Children {
			if other, ok := parentOf[child]; ok && other != group.Parent {
				errs = append(errs, fmt.Errorf("hierarchy[%d]: %q already belongs to %q", i, child, other))
			}
			parentOf[child] = group.Parent
		}
	}

	return errors.Join(errs...)
}

// LoadClassifier builds a Classifier from the rules file at path, or from the
// shipped rules when path is empty.
func LoadClassifier(path string) (*Classifier, error) {
	var rules *Rules
	var err error
	if path == "" {
		rules, err = DefaultRules()
	} else {
		rules, err = LoadRulesFile(path)
	}
	if err != nil {
		return nil, err
	}
	return NewClassifier(rules), nil
}
