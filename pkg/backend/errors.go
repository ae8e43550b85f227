package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
	err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

// Message returns the text the backend gave for err, or err's own text when
// the failure never reached the backend.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	return err.Error()
}

var statusPattern = regexp.MustCompile(`status code (\d{3})`)

// Wrap turns an error from the client libraries into an APIError when its
// text carries a backend answer. The libraries flatten answers into strings
// such as `response status code 400: {"error_description":"..."}`.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	text := err.Error()
	apiErr = &APIError{err: err}

	if match := statusPattern.FindStringSubmatch(text); match != nil {
		apiErr.Status, _ = strconv.Atoi(match[1])
	}

	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var fields map[string]any
		if json.Unmarshal([]byte(text[start:end+1]), &fields) == nil {
			for _, key := range []string{"msg", "message", "error_description", "error"} {
				if value, ok := fields[key].(string); ok && value != "" {
					apiErr.Message = value
					break
				}
			}

			for _, key := range []string{"error_code", "code", "statusCode"} {
				if value, ok := fields[key]; ok && value != nil {
					apiErr.Code = fmt.Sprint(value)
					break
				}
			}
		}
	}

	if apiErr.Message == "" {
		if apiErr.Status == 0 {
			return err
		}
		apiErr.Message = strings.TrimSpace(text)
	}

	return apiErr
}
