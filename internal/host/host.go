package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/kriansa/zosmod/internal/config"
)

// Result is the outcome of a command that ran to completion
type Result struct {
	// Cmd is the command line as it would be typed in a shell
	Cmd    string
	RC     int
	Stdout string
	Stderr string
}

// CommandError is returned when a command exits with a non-zero status
type CommandError struct {
	Result *Result
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	return fmt.Sprintf("%s: rc=%d: %s", e.Result.Cmd, e.Result.RC, msg)
}

// Host is the z/OS system commands run on and files live on
type Host interface {
	// Run executes a command. A non-zero exit status is reported in the
	// Result, not as an error; errors mean the command could not be run.
	Run(ctx context.Context, name string, args ...string) (*Result, error)

	// ReadFile returns the content of a USS file
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or truncates a USS file with data
	WriteFile(ctx context.Context, path string, data []byte) error

	// Remove deletes a USS file; a missing file is not an error
	Remove(ctx context.Context, path string) error

	// Exists reports whether a USS path exists
	Exists(ctx context.Context, path string) (bool, error)

	// MkdirAll creates a directory and any missing parents
	MkdirAll(ctx context.Context, path string) error

	// TempPath returns a fresh, unused path in the temp directory
	TempPath() string

	// Close releases the connection to the host
	Close() error
}

// Check turns a non-zero exit status into a *CommandError.
func Check(res *Result, err error) (*Result, error) {
	if err != nil {
		return res, err
	}
	if res.RC != 0 {
		return res, &CommandError{Result: res}
	}
	return res, nil
}

// CommandLine renders name and args as a shell command line
func CommandLine(name string, args ...string) string {
	return shellquote.Join(append([]string{name}, args...)...)
}

// New creates a Host for the configured backend
func New(ctx context.Context, cfg *config.Config) (Host, error) {
	switch cfg.Backend {
	case "local":
		return NewLocal(cfg.TempDir), nil
	case "ssh":
		return DialSSH(ctx, cfg.SSH, cfg.TempDir)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'local' or 'ssh')", cfg.Backend)
	}
}
