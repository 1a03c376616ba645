package buildconfig

import (
	"fmt"
	"strings"
)

// ConfigSyntaxError is returned when the config file is not valid JSON.
type ConfigSyntaxError struct {
	Path string
	Err  error
}

func (e *ConfigSyntaxError) Error() string {
	return fmt.Sprintf("invalid JSON in %s: %v", e.Path, e.Err)
}

func (e *ConfigSyntaxError) Unwrap() error {
	return e.Err
}

// Violation is a single schema constraint failure.
type Violation struct {
	Field   string // Dotted path, e.g. build.production.ios.buildConfiguration.
	Message string
}

// ConfigValidationError lists every schema violation found in the config file.
type ConfigValidationError struct {
	Path       string
	Violations []Violation
}

func (e *ConfigValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid build config %s (%d problem(s)):", e.Path, len(e.Violations))
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n  - %s: %s", v.Field, v.Message)
	}
	return b.String()
}

// ProfileNotFoundError is returned when the requested build profile does not exist.
type ProfileNotFoundError struct {
	Profile   string
	Available []string
}

func (e *ProfileNotFoundError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("build profile %q not found; available profiles: %s", e.Profile, available)
}

// PlatformNotConfiguredError is returned when a profile lacks settings for the requested platform.
type PlatformNotConfiguredError struct {
	Profile    string
	Platform   string
	Configured []string
}

func (e *PlatformNotConfiguredError) Error() string {
	configured := "none"
	if len(e.Configured) > 0 {
		configured = strings.Join(e.Configured, ", ")
	}
	return fmt.Sprintf("platform %q is not configured in build profile %q; configured platforms: %s",
		e.Platform, e.Profile, configured)
}
