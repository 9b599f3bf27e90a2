package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/kriansa/zosmod/internal/config"
	"github.com/kriansa/zosmod/internal/log"
)

// connectRetryDelay is the pause between failed dial attempts
const connectRetryDelay = 2 * time.Second

// SSH runs commands on a remote z/OS host over SSH and moves files with SFTP
type SSH struct {
	client  *ssh.Client
	tempDir string

	mu   sync.Mutex
	sftp *sftp.Client
}

// DialSSH connects to the host described by cfg, retrying failed dials
func DialSSH(ctx context.Context, cfg config.SSHConfig, tempDir string) (*SSH, error) {
	clientConfig, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		log.Debug("dialing ssh", "address", cfg.Address, "user", cfg.User, "attempt", attempt)
		client, err := dial(ctx, cfg.Address, clientConfig)
		if err == nil {
			return &SSH{client: client, tempDir: tempDir}, nil
		}
		lastErr = err

		if attempt < cfg.ConnectAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(connectRetryDelay):
			}
		}
	}

	return nil, fmt.Errorf("ssh %s: %w", cfg.Address, lastErr)
}

func clientConfig(cfg config.SSHConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !cfg.Insecure {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

func dial(ctx context.Context, address string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, address, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Run executes a command through the remote login shell
func (h *SSH) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	res := &Result{Cmd: CommandLine(name, args...)}
	log.Debug("running remote command", "cmd", res.Cmd)

	session, err := h.client.NewSession()
	if err != nil {
		return res, fmt.Errorf("new session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(res.Cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return res, fmt.Errorf("%s: %w", res.Cmd, ctx.Err())
	case err = <-done:
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.RC = exitErr.ExitStatus()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", res.Cmd, err)
	}

	return res, nil
}

// sftpClient returns the shared SFTP client, opening it on first use
func (h *SSH) sftpClient() (*sftp.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sftp != nil {
		return h.sftp, nil
	}

	c, err := sftp.NewClient(h.client)
	if err != nil {
		return nil, fmt.Errorf("create sftp client: %w", err)
	}
	h.sftp = c
	return c, nil
}

// ReadFile returns the content of a remote file
func (h *SSH) ReadFile(_ context.Context, p string) ([]byte, error) {
	c, err := h.sftpClient()
	if err != nil {
		return nil, err
	}

	f, err := c.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// WriteFile creates or truncates a remote file with data
func (h *SSH) WriteFile(_ context.Context, p string, data []byte) error {
	c, err := h.sftpClient()
	if err != nil {
		return err
	}

	f, err := c.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}

	if err := c.Chmod(p, 0600); err != nil {
		return fmt.Errorf("chmod %s: %w", p, err)
	}
	return nil
}

// Remove deletes a remote file
func (h *SSH) Remove(_ context.Context, p string) error {
	c, err := h.sftpClient()
	if err != nil {
		return err
	}

	if err := c.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// Exists reports whether a remote path exists
func (h *SSH) Exists(_ context.Context, p string) (bool, error) {
	c, err := h.sftpClient()
	if err != nil {
		return false, err
	}

	if _, err := c.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return true, nil
}

// MkdirAll creates a remote directory and any missing parents
func (h *SSH) MkdirAll(_ context.Context, p string) error {
	c, err := h.sftpClient()
	if err != nil {
		return err
	}

	if err := c.MkdirAll(p); err != nil {
		return fmt.Errorf("create directory %s: %w", p, err)
	}
	return nil
}

// TempPath returns a fresh path in the remote temp directory
func (h *SSH) TempPath() string {
	return path.Join(h.tempDir, "zosmod-"+uuid.NewString())
}

// Close closes the SFTP and SSH connections
func (h *SSH) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sftp != nil {
		_ = h.sftp.Close()
		h.sftp = nil
	}
	return h.client.Close()
}
