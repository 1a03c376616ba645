package fingerprint

import "fmt"

// maxExcerpt bounds the raw tool output quoted in a ParseError.
const maxExcerpt = 200

// ParseError is returned when the fingerprint tool prints something that is not JSON.
type ParseError struct {
	Excerpt string
	Err     error
}

func newParseError(stdout string, err error) *ParseError {
	excerpt := stdout
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt] + "..."
	}
	return &ParseError{Excerpt: excerpt, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fingerprint tool returned invalid JSON: %v (output: %q)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FieldError is returned when the tool output is JSON but a required field is missing or mistyped.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("fingerprint tool output is missing string field %q", e.Field)
}
