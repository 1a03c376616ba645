package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root"}
	merged := MergeEnv(base, map[string]string{"HOME": "/tmp/h", "B": "2", "A": "1"})
	assert.Equal(t, []string{"PATH=/usr/bin", "HOME=/tmp/h", "A=1", "B=2"}, merged)
	assert.Equal(t, []string{"PATH=/usr/bin", "HOME=/root"}, base, "base must not be mutated")
}

func TestMergeEnv_NoOverrides(t *testing.T) {
	base := []string{"A=1"}
	assert.Equal(t, base, MergeEnv(base, nil))
}

func TestExitError_Message(t *testing.T) {
	err := &ExitError{Command: "git", Args: []string{"describe", "--tags"}, ExitCode: 128, Stderr: "fatal: No names found\n"}
	assert.Equal(t, `command "git describe --tags" exited with code 128: fatal: No names found`, err.Error())

	bare := &ExitError{Command: "false", ExitCode: 1}
	assert.Equal(t, `command "false" exited with code 1`, bare.Error())
}

func TestRedactArgs(t *testing.T) {
	args := []string{"-p", "hunter2", "--token=hunter2x", "plain"}
	got := RedactArgs(args, []string{"", "hunter2"})
	assert.Equal(t, []string{"-p", "***", "--token=***x", "plain"}, got)
	assert.Equal(t, "hunter2", args[1], "args must not be mutated")
	assert.Equal(t, "nothing to hide", Redact("nothing to hide", nil))
}

func TestExec_ExitErrorRedactsSensitive(t *testing.T) {
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := r.Run(context.Background(), "sh", []string{"-c", "echo rejected $0 >&2; exit 1", "hunter2"}, Options{Sensitive: []string{"hunter2"}})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "rejected ***")
	assert.Equal(t, "***", exitErr.Args[2])
}

func TestFake_ExitErrorRedactsSensitive(t *testing.T) {
	f := (&Fake{}).On("security import", Result{ExitCode: 1})

	_, err := f.Run(context.Background(), "security", []string{"import", "cert.p12", "-P", "hunter2"}, Options{Sensitive: []string{"hunter2"}})
	require.Error(t, err)
	assert.Equal(t, `command "security import cert.p12 -P ***" exited with code 1`, err.Error())
}

func TestExec_CapturesOutputAndExitCode(t *testing.T) {
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	res, err := r.Run(ctx, "sh", []string{"-c", "echo out; echo $FOO >&2"}, Options{Env: map[string]string{"FOO": "bar"}})
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "bar\n", res.Stderr)

	res, err = r.Run(ctx, "sh", []string{"-c", "echo boom >&2; exit 3"}, Options{})
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "sh", exitErr.Command)
}

func TestExec_MissingBinary(t *testing.T) {
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, Options{})
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestFake_MatchesLatestPrefix(t *testing.T) {
	f := &Fake{}
	f.On("git rev-list", Result{Stdout: "1\n"})
	f.On("git rev-list --count", Result{Stdout: "42\n"})
	f.On("git describe", Result{ExitCode: 128, Stderr: "no tags"})

	res, err := f.Run(context.Background(), "git", []string{"rev-list", "--count", "HEAD"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "42\n", res.Stdout)

	_, err = f.Run(context.Background(), "git", []string{"describe", "--tags"}, Options{})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 128, exitErr.ExitCode)

	assert.True(t, f.Ran("git describe"))
	assert.False(t, f.Ran("fastlane"))
}
