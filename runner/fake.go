package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one invocation seen by a Fake.
type Call struct {
	Name string
	Args []string
	Opts Options
}

// Line returns the command line of the call.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is a scripted Runner for tests. Responses are matched by command-line prefix.
type Fake struct {
	mu        sync.Mutex
	responses []fakeResponse
	Calls     []Call
}

type fakeResponse struct {
	prefix string
	result Result
	err    error
}

// On registers a result for any command line starting with prefix.
// A non-zero exit code produces an *ExitError, like Exec.
func (f *Fake) On(prefix string, res Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, result: res})
	return f
}

// OnError registers an error for any command line starting with prefix.
func (f *Fake) OnError(prefix string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, err: err})
	return f
}

// Run implements Runner. Unmatched commands succeed with empty output.
func (f *Fake) Run(_ context.Context, name string, args []string, opts Options) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Name: name, Args: append([]string(nil), args...), Opts: opts}
	f.Calls = append(f.Calls, call)

	line := call.Line()
	for i := len(f.responses) - 1; i >= 0; i-- {
		r := f.responses[i]
		if !strings.HasPrefix(line, r.prefix) {
			continue
		}
		if r.err != nil {
			return &Result{}, r.err
		}
		res := r.result
		if res.ExitCode != 0 {
			return &res, newExitError(name, args, &res, opts.Sensitive)
		}
		return &res, nil
	}
	return &Result{}, nil
}

// Ran reports whether any recorded call starts with prefix.
func (f *Fake) Ran(prefix string) bool {
	return f.Find(prefix) != nil
}

// Find returns the first recorded call starting with prefix, or nil.
func (f *Fake) Find(prefix string) *Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Calls {
		if strings.HasPrefix(f.Calls[i].Line(), prefix) {
			c := f.Calls[i]
			return &c
		}
	}
	return nil
}

// String lists recorded command lines, for test failure messages.
func (f *Fake) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, c.Line())
	}
	return fmt.Sprintf("%q", lines)
}
