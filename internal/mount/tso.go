package mount

import (
	"context"
	"fmt"

	"github.com/kriansa/zosmod/internal/bpxprm"
	"github.com/kriansa/zosmod/internal/host"
	"github.com/kriansa/zosmod/internal/log"
	"github.com/kriansa/zosmod/internal/mounttable"
)

// TSOMounter implements Mounter by issuing TSO MOUNT and UNMOUNT commands
// and reading the mount table from df
type TSOMounter struct {
	host   host.Host
	tsocmd string
}

// NewTSOMounter creates a mounter that runs TSO commands through tsocmd
func NewTSOMounter(h host.Host, tsocmd string) *TSOMounter {
	return &TSOMounter{
		host:   h,
		tsocmd: tsocmd,
	}
}

// Mount issues the MOUNT command for stmt
func (m *TSOMounter) Mount(ctx context.Context, stmt bpxprm.MountStatement) (*host.Result, error) {
	log.Debug("mounting filesystem", "source", stmt.Source, "target", stmt.MountPoint, "type", stmt.FSType)

	res, err := host.Check(m.host.Run(ctx, m.tsocmd, stmt.Command()))
	if err != nil {
		return res, fmt.Errorf("mount %s to %s: %w", stmt.Source, stmt.MountPoint, err)
	}

	log.Debug("mounted successfully", "source", stmt.Source, "target", stmt.MountPoint)
	return res, nil
}

// UnmountCommand returns the TSO UNMOUNT command for source
func UnmountCommand(source, option string) string {
	if option == "" {
		option = UnmountNormal
	}
	return fmt.Sprintf("UNMOUNT FILESYSTEM('%s') %s", source, option)
}

// Unmount unmounts the file system backed by source
func (m *TSOMounter) Unmount(ctx context.Context, source, option string) (*host.Result, error) {
	log.Debug("unmounting", "source", source, "option", option)

	res, err := host.Check(m.host.Run(ctx, m.tsocmd, UnmountCommand(source, option)))
	if err != nil {
		return res, fmt.Errorf("unmount %s: %w", source, err)
	}

	log.Debug("unmounted successfully", "source", source)
	return res, nil
}

// mounts reads the current mount table
func (m *TSOMounter) mounts(ctx context.Context) ([]mounttable.Entry, error) {
	res, err := host.Check(m.host.Run(ctx, "df"))
	if err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	return mounttable.Parse(res.Stdout), nil
}

// IsMounted checks if something is mounted on mountPoint
func (m *TSOMounter) IsMounted(ctx context.Context, mountPoint string) (bool, error) {
	entries, err := m.mounts(ctx)
	if err != nil {
		return false, err
	}
	_, ok := mounttable.FindByMountPoint(entries, mountPoint)
	return ok, nil
}

// GetMountPoint returns the mount point for a source data set
// Returns empty string if not mounted
func (m *TSOMounter) GetMountPoint(ctx context.Context, source string) (string, error) {
	entries, err := m.mounts(ctx)
	if err != nil {
		return "", err
	}
	if e, ok := mounttable.FindBySource(entries, source); ok {
		return e.MountPoint, nil
	}
	return "", nil
}
