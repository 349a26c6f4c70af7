package bus

import "regexp"

// SubjectFilter matches event subjects against one NATS-style pattern
// (`*` one token, `>` one or more trailing tokens). The pattern is compiled
// once; a filter is safe for concurrent use.
type SubjectFilter struct {
	pattern string
	regex   *regexp.Regexp
}

// NewSubjectFilter compiles a pattern into a filter.
func NewSubjectFilter(pattern string) SubjectFilter {
	return SubjectFilter{pattern: pattern, regex: compilePattern(pattern)}
}

// Matches reports whether the subject falls under the filter's pattern.
func (f SubjectFilter) Matches(subject string) bool {
	return matches(subject, f.pattern, f.regex)
}

// Pattern returns the pattern the filter was built from.
func (f SubjectFilter) Pattern() string {
	return f.pattern
}
