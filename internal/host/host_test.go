package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kriansa/zosmod/internal/config"
	"github.com/kriansa/zosmod/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup(false)
	os.Exit(m.Run())
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"tsocmd", []string{"MOUNT FILESYSTEM('A.B') MOUNTPOINT('/a')"}},
		{"dls", []string{"-l", "USER.*"}},
		{"cp", []string{"//'SYS1.PARMLIB(BPXPRMAA)'", "/tmp/x"}},
		{"df", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := shellquote.Split(CommandLine(tt.name, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, append([]string{tt.name}, tt.args...), words)
		})
	}
	assert.Equal(t, "df", CommandLine("df"))
}

func TestCheck(t *testing.T) {
	_, err := Check(&Result{Cmd: "dls X", RC: 0}, nil)
	assert.NoError(t, err)

	res, err := Check(&Result{Cmd: "dls X", RC: 8, Stderr: "BGYSC1001E not found\n"}, nil)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 8, res.RC)
	assert.Equal(t, "dls X: rc=8: BGYSC1001E not found", err.Error())

	boom := errors.New("boom")
	_, err = Check(nil, boom)
	assert.ErrorIs(t, err, boom)
}

func TestLocal_Run(t *testing.T) {
	h := NewLocal(t.TempDir())
	ctx := context.Background()

	res, err := h.Run(ctx, "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.RC)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)

	_, err = h.Run(ctx, "definitely-not-a-command-zosmod")
	assert.Error(t, err)
}

func TestLocal_Files(t *testing.T) {
	dir := t.TempDir()
	h := NewLocal(dir)
	ctx := context.Background()

	p := h.TempPath()
	assert.True(t, strings.HasPrefix(p, filepath.Join(dir, "zosmod-")))
	assert.NotEqual(t, p, h.TempPath())

	exists, err := h.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, h.WriteFile(ctx, p, []byte("hello")))
	data, err := h.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, h.Remove(ctx, p))
	require.NoError(t, h.Remove(ctx, p))

	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, h.MkdirAll(ctx, nested))
	exists, err = h.Exists(ctx, nested)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), &config.Config{Backend: "telnet"})
	assert.Error(t, err)
}
