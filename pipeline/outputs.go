package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Output names surfaced to the CI environment.
const (
	OutputBuildNumber     = "build-number"
	OutputFingerprintHash = "fingerprint-hash"
	OutputBuildMode       = "build-mode"
)

// Output is a single name=value CI output.
type Output struct {
	Name  string
	Value string
}

// WriteOutputs appends outputs as name=value lines to path and logs them.
// An empty path only logs.
func WriteOutputs(path string, outputs []Output, logger *slog.Logger) error {
	var b strings.Builder
	for _, o := range outputs {
		if strings.ContainsAny(o.Value, "\r\n") {
			return fmt.Errorf("output %s contains a newline", o.Name)
		}
		fmt.Fprintf(&b, "%s=%s\n", o.Name, o.Value)
		logger.Info("output", "name", o.Name, "value", o.Value)
	}
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open outputs file: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write outputs: %w", err)
	}
	return f.Close()
}
