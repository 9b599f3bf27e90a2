// Package hosttest provides a scripted in-memory host.Host for tests.
package hosttest

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/kriansa/zosmod/internal/host"
)

// Handler produces the result of a command. Returning nil yields rc=0 with
// empty output.
type Handler func(args []string) *host.Result

// Fake is a host.Host that answers commands from registered handlers and
// keeps files in memory.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler
	files    map[string][]byte
	dirs     map[string]bool
	calls    []string
	argv     [][]string
	tempSeq  int
}

// NewFake creates an empty fake host
func NewFake() *Fake {
	return &Fake{
		handlers: make(map[string]Handler),
		files:    make(map[string][]byte),
		dirs:     make(map[string]bool),
	}
}

// Handle registers the handler for a command name. The name is matched
// against the base name of the executed command.
func (f *Fake) Handle(name string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
}

// Respond registers a handler that always returns the given output and rc.
func (f *Fake) Respond(name string, rc int, stdout, stderr string) {
	f.Handle(name, func([]string) *host.Result {
		return &host.Result{RC: rc, Stdout: stdout, Stderr: stderr}
	})
}

// Calls returns the command lines executed so far
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Commands returns the argv of every command executed so far
func (f *Fake) Commands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.argv...)
}

// CommandsTo returns the argv of the executed commands whose command is name
func (f *Fake) CommandsTo(name string) [][]string {
	var out [][]string
	for _, argv := range f.Commands() {
		if path.Base(argv[0]) == name {
			out = append(out, argv)
		}
	}
	return out
}

// CallsTo returns the executed command lines whose command is name
func (f *Fake) CallsTo(name string) []string {
	var out []string
	for _, c := range f.Calls() {
		cmd, _, _ := strings.Cut(c, " ")
		if path.Base(cmd) == name {
			out = append(out, c)
		}
	}
	return out
}

// SetFile stores a file
func (f *Fake) SetFile(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = data
}

// File returns a stored file
func (f *Fake) File(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return data, ok
}

// AddDir marks a directory as existing
func (f *Fake) AddDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[p] = true
}

// Run dispatches to the handler registered for the command
func (f *Fake) Run(ctx context.Context, name string, args ...string) (*host.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmdline := host.CommandLine(name, args...)

	f.mu.Lock()
	f.calls = append(f.calls, cmdline)
	f.argv = append(f.argv, append([]string{name}, args...))
	h, ok := f.handlers[path.Base(name)]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("run %s: %w", cmdline, os.ErrNotExist)
	}

	res := h(args)
	if res == nil {
		res = &host.Result{}
	}
	res.Cmd = cmdline
	return res, nil
}

// ReadFile returns a stored file
func (f *Fake) ReadFile(_ context.Context, p string) ([]byte, error) {
	data, ok := f.File(p)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// WriteFile stores a file
func (f *Fake) WriteFile(_ context.Context, p string, data []byte) error {
	f.SetFile(p, append([]byte(nil), data...))
	return nil
}

// Remove deletes a stored file
func (f *Fake) Remove(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, p)
	return nil
}

// Exists reports whether a file or directory is stored
func (f *Fake) Exists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, isFile := f.files[p]
	return isFile || f.dirs[p], nil
}

// MkdirAll marks a directory as existing
func (f *Fake) MkdirAll(_ context.Context, p string) error {
	f.AddDir(p)
	return nil
}

// TempPath returns a predictable temp path
func (f *Fake) TempPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tempSeq++
	return fmt.Sprintf("/tmp/zosmod-test-%d", f.tempSeq)
}

// Close is a no-op
func (f *Fake) Close() error {
	return nil
}
