// Package sanitize strips disallowed markup from free text before it is stored.
package sanitize

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func htmlPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("b", "i", "em", "strong", "p", "br", "a", "ul", "ol", "li", "h1", "h2", "h3")
		p.AllowAttrs("href", "target").OnElements("a")
		p.AllowStandardURLs()
		policy = p
	})
	return policy
}

// HTML keeps a small set of formatting tags and drops everything else,
// including scripts, event handlers and data attributes. Safe for concurrent use.
func HTML(s string) string {
	if s == "" {
		return ""
	}
	return htmlPolicy().Sanitize(s)
}

// Ptr sanitizes the pointed-to string, preserving nil.
func Ptr(s *string) *string {
	if s == nil {
		return nil
	}
	out := HTML(*s)
	return &out
}
