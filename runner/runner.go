// Package runner executes external commands with explicit per-invocation environments.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// maxStderrInError bounds how much captured stderr is embedded in an ExitError message.
const maxStderrInError = 4096

// redacted replaces sensitive values in logged and reported command lines.
const redacted = "***"

// Options configures a single command invocation.
type Options struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env holds variables layered over the process environment for this invocation only.
	Env map[string]string
	// Sensitive lists secret values that must not appear in logs or error messages.
	Sensitive []string
}

// Result is the captured outcome of a command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, name string, args []string, opts Options) (*Result, error)
}

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if len(stderr) > maxStderrInError {
		stderr = stderr[len(stderr)-maxStderrInError:]
	}
	cmd := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	if stderr == "" {
		return fmt.Sprintf("command %q exited with code %d", cmd, e.ExitCode)
	}
	return fmt.Sprintf("command %q exited with code %d: %s", cmd, e.ExitCode, stderr)
}

// Exec runs commands as local subprocesses.
type Exec struct {
	logger *slog.Logger
}

// New creates a subprocess runner.
func New(logger *slog.Logger) *Exec {
	return &Exec{logger: logger}
}

// Run executes name with args and captures its output.
// A non-zero exit returns both the Result and an *ExitError.
func (r *Exec) Run(ctx context.Context, name string, args []string, opts Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = MergeEnv(os.Environ(), opts.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command", "command", name, "args", RedactArgs(args, opts.Sensitive), "dir", opts.Dir, "env_keys", envKeys(opts.Env))

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, newExitError(name, args, res, opts.Sensitive)
		}
		return res, fmt.Errorf("failed to start %s: %w", name, err)
	}

	return res, nil
}

func newExitError(name string, args []string, res *Result, sensitive []string) *ExitError {
	return &ExitError{
		Command:  name,
		Args:     RedactArgs(args, sensitive),
		ExitCode: res.ExitCode,
		Stderr:   Redact(res.Stderr, sensitive),
	}
}

// Redact masks every occurrence of the non-empty sensitive values in s.
func Redact(s string, sensitive []string) string {
	for _, secret := range sensitive {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

// RedactArgs returns a copy of args with sensitive values masked. args is not modified.
func RedactArgs(args []string, sensitive []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = Redact(arg, sensitive)
	}
	return out
}

// MergeEnv layers overrides on top of base, replacing existing keys.
// The result is deterministic: base order is kept and new keys are appended sorted.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			merged = append(merged, key+"="+v)
			seen[key] = true
			continue
		}
		merged = append(merged, kv)
	}
	for _, key := range envKeys(overrides) {
		if !seen[key] {
			merged = append(merged, key+"="+overrides[key])
		}
	}
	return merged
}

// envKeys returns the sorted keys of env. Values are never logged.
func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
