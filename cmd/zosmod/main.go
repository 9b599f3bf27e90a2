package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kriansa/zosmod/internal/ansible"
	"github.com/kriansa/zosmod/internal/config"
	"github.com/kriansa/zosmod/internal/host"
	"github.com/kriansa/zosmod/internal/log"
	"github.com/kriansa/zosmod/internal/modules"
	"github.com/kriansa/zosmod/internal/mount"
	"github.com/kriansa/zosmod/internal/version"
	"github.com/kriansa/zosmod/internal/zoau"
)

// errModuleFailed is returned once a failed result has been written
var errModuleFailed = errors.New("module failed")

// moduleCommands maps the executable names Ansible installs the binary under
// to their subcommand
var moduleCommands = map[string]string{
	"zos_mount":        "mount",
	"zos_find":         "find",
	"zos_gather_facts": "facts",
}

func main() {
	cmd := &cli.Command{
		Name:  "zosmod",
		Usage: "Ansible modules for z/OS: mount, find and gather_facts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
				Value:   config.DefaultConfigPath,
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Where commands run: local or ssh",
			},
			&cli.StringFlag{
				Name:  "zoau-bin",
				Usage: "Directory holding the ZOAU tools",
			},
			&cli.StringFlag{
				Name:  "temp-dir",
				Usage: "Directory for temporary files on the target",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"V"},
				Usage:   "Print version information",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.String())
				return nil
			}
			return fmt.Errorf("a module subcommand is required, see --help")
		},
		Commands: []*cli.Command{
			{
				Name:      "mount",
				Usage:     "Mount, unmount and persist z/OS UNIX file systems (zos_mount)",
				ArgsUsage: "<args-file>",
				Action:    runMount,
			},
			{
				Name:      "find",
				Usage:     "Find data sets and PDS members (zos_find)",
				ArgsUsage: "<args-file>",
				Action:    runFind,
			},
			{
				Name:      "facts",
				Usage:     "Gather z/OS facts (zos_gather_facts)",
				ArgsUsage: "<args-file>",
				Action:    runFacts,
			},
		},
	}

	if err := cmd.Run(context.Background(), moduleArgs(os.Args)); err != nil {
		if !errors.Is(err, errModuleFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// moduleArgs inserts the subcommand when the binary runs under a module
// name, as Ansible does with "zos_mount <args-file>"
func moduleArgs(args []string) []string {
	name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	sub, ok := moduleCommands[name]
	if !ok {
		return args
	}
	return append([]string{args[0], sub}, args[1:]...)
}

func runMount(ctx context.Context, cmd *cli.Command) error {
	return runModule(ctx, cmd, os.Stdout,
		func(ctx context.Context, h host.Host, cfg *config.Config, common *ansible.Common, p *modules.MountParams) (*modules.MountResult, error) {
			m := modules.NewMountModule(h, zoau.NewClient(h, cfg.ZOAUBin), mount.NewTSOMounter(h, cfg.TSOCmd))
			return m.Run(ctx, common, p)
		})
}

func runFind(ctx context.Context, cmd *cli.Command) error {
	return runModule(ctx, cmd, os.Stdout,
		func(ctx context.Context, h host.Host, cfg *config.Config, common *ansible.Common, p *modules.FindParams) (*modules.FindResult, error) {
			return modules.NewFindModule(zoau.NewClient(h, cfg.ZOAUBin)).Run(ctx, common, p)
		})
}

func runFacts(ctx context.Context, cmd *cli.Command) error {
	return runModule(ctx, cmd, os.Stdout,
		func(ctx context.Context, h host.Host, cfg *config.Config, common *ansible.Common, p *modules.FactsParams) (*modules.FactsResult, error) {
			return modules.NewFactsModule(h, cfg.ZOAUBin).Run(ctx, common, p)
		})
}

// moduleFunc runs one module against a connected host
type moduleFunc[P, R any] func(ctx context.Context, h host.Host, cfg *config.Config, common *ansible.Common, params *P) (*R, error)

// runModule loads the configuration and the module arguments, connects to
// the host and writes the module result to w. Every failure after the
// arguments file is known is reported as a failed result.
func runModule[P, R any](ctx context.Context, cmd *cli.Command, w io.Writer, run moduleFunc[P, R]) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("%s expects exactly one argument: the module arguments file", cmd.Name)
	}

	log.Setup(cmd.Bool("verbose"))

	fail := func(err error, result any) error {
		log.Error("module failed", "module", cmd.Name, "error", err)
		if werr := ansible.Fail(w, err.Error(), result); werr != nil {
			return fmt.Errorf("write result: %w", werr)
		}
		return errModuleFailed
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fail(err, nil)
	}

	var params P
	common, err := ansible.LoadArgs(cmd.Args().First(), &params)
	if err != nil {
		return fail(err, nil)
	}
	if common.Verbosity >= 3 {
		log.Setup(true)
	}

	h, err := host.New(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("connect to host: %w", err), nil)
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Warn("failed to close host connection", "error", err)
		}
	}()

	result, err := run(ctx, h, cfg, common, &params)
	if err != nil {
		if result == nil {
			return fail(err, nil)
		}
		return fail(err, result)
	}

	if err := ansible.Exit(w, result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// loadConfig reads the config file and applies the command line overrides
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI takes precedence
	cfg.Merge(
		cmd.String("backend"),
		cmd.String("zoau-bin"),
		cmd.String("temp-dir"),
	)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.Debug("configuration loaded", "backend", cfg.Backend, "zoau_bin", cfg.ZOAUBin, "temp_dir", cfg.TempDir)
	return cfg, nil
}
