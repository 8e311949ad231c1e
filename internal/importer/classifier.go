package importer

import "strings"

type keywordGroup struct {
	category string
	keywords []string
}

// Classifier assigns a leaf category and optional parent to a product.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	groups          []keywordGroup
	prefixes        []PrefixRule
	parents         map[string]string
	defaultCategory string
}

func NewClassifier(rules *Rules) *Classifier {
	c := &Classifier{
		parents:         make(map[string]string),
		defaultCategory: rules.DefaultCategory,
	}

	for _, rule := range rules.KeywordRules {
		group := keywordGroup{category: rule.Category}
		for _, kw := range rule.Keywords {
			if key := MatchKey(kw); key != "" {
				group.keywords = append(group.keywords, key)
			}
		}
		c.groups = append(c.groups, group)
	}

	for _, rule := range rules.PrefixRules {
		c.prefixes = append(c.prefixes, PrefixRule{
			Prefix:   strings.TrimSpace(CleanText(rule.Prefix)),
			Category: rule.Category,
		})
	}

	for _, group := range rules.Hierarchy {
		for _, child := range group.Children {
			if _, ok := c.parents[child]; !ok {
				c.parents[child] = group.Parent
			}
		}
	}

	return c
}

// Classify returns the category for a product name and item code. parent is empty
// when the category has no declared parent.
func (c *Classifier) Classify(name, code string) (category, parent string) {
	category = c.byKeywords(MatchKey(name))
	if category == "" {
		category = c.byPrefix(strings.TrimSpace(CleanText(code)))
	}
	if category == "" {
		return c.defaultCategory, ""
	}
	return category, c.Parent(category)
}

// Parent returns the declared parent of category, or ""
func (c *Classifier) Parent(category string) string {
	return c.parents[category]
}

func (c *Classifier) byKeywords(name string) string {
	if name == "" {
		return ""
	}

	best, bestScore := "", 0
	for _, group := range c.groups {
		score := 0
		for _, kw := range group.keywords {
			if strings.Contains(name, kw) {
				score++
			}
		}
		// strict comparison keeps the first-declared group on ties
		if score > bestScore {
			best, bestScore = group.category, score
		}
	}
	return best
}

func (c *Classifier) byPrefix(code string) string {
	if code == "" {
		return ""
	}
	for _, rule := range c.prefixes {
		if strings.HasPrefix(code, rule.Prefix) {
			return rule.Category
		}
	}
	return ""
}
