package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	rules, err := DefaultRules()
	require.NoError(t, err)
	return NewClassifier(rules)
}

func TestClassifier_Classify(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		name       string
		product    string
		code       string
		wantCat    string
		wantParent string
	}{
		{"keyword match", "لیوان کاغذی", "999001", "ظروف یکبار مصرف", "محصولات خانگی"},
		{"arabic spelling", "ليوان كاغذي", "", "ظروف یکبار مصرف", "محصولات خانگی"},
		{"hygiene keyword", "شامپو", "", "محصولات بهداشتی", "محصولات بهداشتی و نظافتی"},
		{"higher score wins", "فویل و سلفون لیوان", "", "فویل و سلفون", "محصولات خانگی"},
		{"tie keeps first declared group", "لیوان فویل", "", "ظروف یکبار مصرف", "محصولات خانگی"},
		{"keyword beats prefix", "لیوان", "104001", "ظروف یکبار مصرف", "محصولات خانگی"},
		{"prefix fallback without parent", "Widget", "104555", "ابزار و تجهیزات", ""},
		{"prefix fallback with parent", "Widget", "101020", "محصولات بهداشتی", "محصولات بهداشتی و نظافتی"},
		{"persian digit code", "Widget", "۱۰۳۰۰۱", "شوینده ها و پاک کننده ها", "محصولات بهداشتی و نظافتی"},
		{"blank name uses prefix", "", "102001", "ظروف یکبار مصرف", "محصولات خانگی"},
		{"default", "Widget", "555", "سایر محصولات", ""},
		{"default without code", "Widget", "", "سایر محصولات", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, parent := c.Classify(tt.product, tt.code)
			assert.Equal(t, tt.wantCat, cat)
			assert.Equal(t, tt.wantParent, parent)
		})
	}
}

func TestClassifier_CustomRules(t *testing.T) {
	rules, err := ParseRules([]byte(`
default_category: Other
keyword_rules:
  - category: Cups
    keywords: [cup, mug]
  - category: Plates
    keywords: [plate, dish]
prefix_rules:
  - prefix: "12"
    category: Twelve
  - prefix: "1"
    category: One
hierarchy:
  - parent: Kitchen
    children: [Cups, Plates]
`))
	require.NoError(t, err)
	c := NewClassifier(rules)

	t.Run("case insensitive keywords", func(t *testing.T) {
		cat, parent := c.Classify("Big MUG", "")
		assert.Equal(t, "Cups", cat)
		assert.Equal(t, "Kitchen", parent)
	})

	t.Run("first prefix in declaration order wins", func(t *testing.T) {
		cat, _ := c.Classify("thing", "123")
		assert.Equal(t, "Twelve", cat)

		cat, _ = c.Classify("thing", "13")
		assert.Equal(t, "One", cat)
	})

	t.Run("parent lookup", func(t *testing.T) {
		assert.Equal(t, "Kitchen", c.Parent("Plates"))
		assert.Equal(t, "", c.Parent("Twelve"))
	})

	t.Run("deterministic", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			cat, _ := c.Classify("cup plate", "")
			assert.Equal(t, "Cups", cat)
		}
	})
}
