package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/zosmod/zosmod.toml"
	// DefaultBackend runs commands on the machine zosmod itself runs on
	DefaultBackend = "local"
	// DefaultTempDir holds the transient copies of members being edited
	DefaultTempDir = "/tmp"
	// DefaultTSOCmd is the TSO command bridge used for MOUNT and UNMOUNT
	DefaultTSOCmd = "tsocmd"
	// DefaultSSHTimeout is the SSH dial timeout in seconds
	DefaultSSHTimeout = 10
	// DefaultSSHAttempts is the number of SSH dial attempts
	DefaultSSHAttempts = 3
)

// Config holds the zosmod configuration
type Config struct {
	// Backend selects where commands run: "local" or "ssh"
	Backend string `toml:"backend"`
	// TempDir is a USS directory for transient files
	TempDir string `toml:"temp_dir"`
	// ZOAUBin is the directory holding the ZOAU tools; empty means use PATH
	ZOAUBin string `toml:"zoau_bin"`
	// TSOCmd is the command used to issue TSO commands
	TSOCmd string `toml:"tsocmd"`
	// SSH configures the ssh backend
	SSH SSHConfig `toml:"ssh"`
}

// SSHConfig holds connection settings for the ssh backend
type SSHConfig struct {
	Address         string `toml:"address"`
	User            string `toml:"user"`
	KeyFile         string `toml:"key_file"`
	Password        string `toml:"password"`
	KnownHosts      string `toml:"known_hosts"`
	Insecure        bool   `toml:"insecure"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	ConnectAttempts int    `toml:"connect_attempts"`
}

// Load loads configuration from a TOML file
// Returns an empty config if the file doesn't exist
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge merges CLI flags into the config, with CLI flags taking precedence
// over config file values. Empty CLI values are ignored.
func (c *Config) Merge(backend, zoauBin, tempDir string) {
	if backend != "" {
		c.Backend = backend
	}
	if zoauBin != "" {
		c.ZOAUBin = zoauBin
	}
	if tempDir != "" {
		c.TempDir = tempDir
	}
}

// ApplyDefaults applies default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.TempDir == "" {
		c.TempDir = DefaultTempDir
	}
	if c.TSOCmd == "" {
		c.TSOCmd = DefaultTSOCmd
	}
	if c.SSH.TimeoutSeconds <= 0 {
		c.SSH.TimeoutSeconds = DefaultSSHTimeout
	}
	if c.SSH.ConnectAttempts <= 0 {
		c.SSH.ConnectAttempts = DefaultSSHAttempts
	}
	c.SSH.KeyFile = expandHome(c.SSH.KeyFile)
	c.SSH.KnownHosts = expandHome(c.SSH.KnownHosts)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Backend {
	case "local":
	case "ssh":
		if c.SSH.Address == "" {
			return fmt.Errorf("ssh backend requires 'address' in the [ssh] section")
		}
		if c.SSH.User == "" {
			return fmt.Errorf("ssh backend requires 'user' in the [ssh] section")
		}
		if c.SSH.KeyFile == "" && c.SSH.Password == "" {
			return fmt.Errorf("ssh backend requires 'key_file' or 'password'")
		}
		if c.SSH.KnownHosts == "" && !c.SSH.Insecure {
			return fmt.Errorf("ssh backend requires 'known_hosts' unless 'insecure' is set")
		}
	default:
		return fmt.Errorf("backend must be 'local' or 'ssh', got %q", c.Backend)
	}

	if !filepath.IsAbs(c.TempDir) {
		return fmt.Errorf("temp_dir must be an absolute path, got %q", c.TempDir)
	}

	return nil
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
