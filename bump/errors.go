package bump

import "fmt"

// InvalidValueError is returned when an existing build number in the app config is not numeric.
type InvalidValueError struct {
	Field string
	Raw   string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s is not a whole number", e.Field, e.Raw)
}

// ToolOutputError is returned when an external tool prints output that cannot be interpreted.
type ToolOutputError struct {
	Command string
	Output  string
}

func (e *ToolOutputError) Error() string {
	return fmt.Sprintf("unexpected output from %s: %q", e.Command, e.Output)
}

// RangeError is returned when a version cannot be packed into a build number.
type RangeError struct {
	Version string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("version %s cannot be encoded as a build number: minor and patch must be at most 99", e.Version)
}
