package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kriansa/zosmod/internal/log"
)

// Local runs commands on the machine zosmod itself runs on
type Local struct {
	tempDir string
}

// NewLocal creates a Local host using tempDir for transient files
func NewLocal(tempDir string) *Local {
	return &Local{tempDir: tempDir}
}

// Run executes a command
func (h *Local) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	res := &Result{Cmd: CommandLine(name, args...)}
	log.Debug("running command", "cmd", res.Cmd)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.RC = exitErr.ExitCode()
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", res.Cmd, ctx.Err())
		}
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", res.Cmd, err)
	}

	return res, nil
}

// ReadFile returns the content of a file
func (h *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile creates or truncates a file with data
func (h *Local) WriteFile(_ context.Context, path string, data []byte) error {
	return os.WriteFile(path, data, 0600)
}

// Remove deletes a file
func (h *Local) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether path exists
func (h *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// MkdirAll creates a directory and any missing parents
func (h *Local) MkdirAll(_ context.Context, path string) error {
	return os.MkdirAll(path, 0755)
}

// TempPath returns a fresh path in the temp directory
func (h *Local) TempPath() string {
	return filepath.Join(h.tempDir, "zosmod-"+uuid.NewString())
}

// Close is a no-op for local hosts
func (h *Local) Close() error {
	return nil
}
