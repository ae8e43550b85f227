package topic

import (
	"fmt"
	"regexp"
	"strings"
)

var topicFilterRegex = regexp.MustCompile(`^(([^+#]*|\+)(/([^+#]*|\+))*(/#)?|#)$`)

// TopicFilter selects topic names using "+" (one level) and "#" (this level
// and everything below) wildcards.
type TopicFilter struct {
	Value string `json:"value"`
}

func NewFilter(value string) (*TopicFilter, error) {
	if value == "" {
		return nil, fmt.Errorf("topic filter: %q cannot be empty", value)
	}

	if len(value) > maxLength {
		return nil, fmt.Errorf("topic filter: cannot have more than %d bytes", maxLength)
	}

	if !topicFilterRegex.MatchString(value) {
		return nil, fmt.Errorf("topic filter: %q format is invalid", value)
	}

	return &TopicFilter{value}, nil
}

func MustFilter(value string) *TopicFilter {
	filter, err := NewFilter(value)
	if err != nil {
		panic(err)
	}

	return filter
}

func (t *TopicFilter) Match(name *TopicName) bool {
	levels := strings.Split(name.Value, "/")
	patterns := strings.Split(t.Value, "/")

	if name.IsServerSpecific() && patterns[0] != levels[0] {
		return false
	}

	for i, pattern := range patterns {
		switch pattern {
		case "#":
			return true
		case "+":
			if i >= len(levels) {
				return false
			}
		default:
			if i >= len(levels) || levels[i] != pattern {
				return false
			}
		}
	}

	return len(levels) == len(patterns)
}

func (t *TopicFilter) String() string {
	return t.Value
}
