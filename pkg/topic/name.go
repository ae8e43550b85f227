package topic

import (
	"fmt"
	"regexp"
	"strings"
)

const maxLength = 65535

var topicNameRegex = regexp.MustCompile("^[^#+]+$")

// TopicName is a concrete event address such as "todos/42" or "$SYS/session".
type TopicName struct {
	Value string `json:"value"`
}

func NewName(value string) (*TopicName, error) {
	if value == "" {
		return nil, fmt.Errorf("topic name: %q cannot be empty", value)
	}

	if len(value) > maxLength {
		return nil, fmt.Errorf("topic name: cannot have more than %d bytes", maxLength)
	}

	if !topicNameRegex.MatchString(value) {
		return nil, fmt.Errorf("topic name: %q format is invalid", value)
	}

	return &TopicName{value}, nil
}

// MustName is NewName for compile time constants.
func MustName(value string) *TopicName {
	name, err := NewName(value)
	if err != nil {
		panic(err)
	}

	return name
}

// IsServerSpecific reports whether the name lives in the "$" namespace, which
// wildcards at the first level never match.
func (t *TopicName) IsServerSpecific() bool {
	return strings.HasPrefix(t.Value, "$")
}

func (t *TopicName) String() string {
	return t.Value
}
