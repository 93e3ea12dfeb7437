package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes a process invocation with an optional working
// directory and extra environment.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current process environment.
	Env []string
}

// String renders the command line for logs. Env is never included
// because it carries DNS provider credentials.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// CommandExecutor is an interface for executing system commands
type CommandExecutor interface {
	// Execute runs a command with the given name and arguments
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)

	// Run executes a fully described command and returns combined output
	Run(ctx context.Context, cmd Command) ([]byte, error)

	// LookPath searches for an executable in the directories named by the PATH
	LookPath(file string) (string, error)
}

// SystemExecutor implements CommandExecutor using os/exec
type SystemExecutor struct{}

// NewSystemExecutor creates a new SystemExecutor
func NewSystemExecutor() *SystemExecutor {
	return &SystemExecutor{}
}

// Execute runs a command and returns combined output
func (e *SystemExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	return e.Run(ctx, Command{Name: name, Args: args})
}

// Run runs cmd and returns combined output
func (e *SystemExecutor) Run(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	return c.CombinedOutput()
}

// LookPath searches for an executable
func (e *SystemExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// ExitError is a non-zero exit status that test doubles can return in
// place of *exec.ExitError.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode extracts the process exit status from err.
// It returns 0 for a nil error and -1 when err carries no exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return -1
}

// MockExecutor is a mock implementation for testing
type MockExecutor struct {
	RunFunc      func(cmd Command) ([]byte, error)
	LookPathFunc func(file string) (string, error)
	Calls        []Command
}

// Execute records the call and invokes RunFunc if set
func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	return m.Run(ctx, Command{Name: name, Args: args})
}

// Run records the call and invokes RunFunc if set
func (m *MockExecutor) Run(_ context.Context, cmd Command) ([]byte, error) {
	m.Calls = append(m.Calls, cmd)
	if m.RunFunc != nil {
		return m.RunFunc(cmd)
	}
	return []byte(""), nil
}

// LookPath calls the mock function
func (m *MockExecutor) LookPath(file string) (string, error) {
	if m.LookPathFunc != nil {
		return m.LookPathFunc(file)
	}
	return "/usr/bin/" + file, nil
}

// CommandLines returns the recorded calls rendered with Command.String.
func (m *MockExecutor) CommandLines() []string {
	lines := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		lines = append(lines, c.String())
	}
	return lines
}
