package core

import (
	"regexp"
)

// Matcher routes free-form text (a chat message, a pasted URL) to a
// processor by regular expression, preparing the query from the first
// pattern that matches. Bots build a list of matchers and submit via the
// matched processor.
type Matcher[Q, R any] struct {
	patterns  []*regexp.Regexp
	prepare   func(match []string) Q
	processor *Processor[Q, R]
}

// NewMatcher pairs one or more patterns with a query-prepare function
// and the processor that handles the prepared query
func NewMatcher[Q, R any](
	patterns []*regexp.Regexp,
	prepare func(match []string) Q,
	processor *Processor[Q, R],
) *Matcher[Q, R] {
	return &Matcher[Q, R]{
		patterns:  patterns,
		prepare:   prepare,
		processor: processor,
	}
}

// Processor returns the matcher's target processor
func (m *Matcher[Q, R]) Processor() *Processor[Q, R] {
	return m.processor
}

// Match tries each pattern against text in order, returning the prepared
// query for the first submatch
func (m *Matcher[Q, R]) Match(text string) (Q, bool) {
	for _, pattern := range m.patterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return m.prepare(match), true
		}
	}

	var zero Q
	return zero, false
}
