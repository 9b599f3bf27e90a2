package mount

import (
	"context"
	"fmt"

	"github.com/kriansa/zosmod/internal/bpxprm"
	"github.com/kriansa/zosmod/internal/host"
)

// ErrMountedElsewhere is returned when a file system is mounted on a path
// other than the requested one
var ErrMountedElsewhere = fmt.Errorf("file system is mounted on another path")

// Unmount options accepted by the UNMOUNT command
const (
	UnmountDrain     = "DRAIN"
	UnmountForce     = "FORCE"
	UnmountImmediate = "IMMEDIATE"
	UnmountNormal    = "NORMAL"
	UnmountRemount   = "REMOUNT"
	UnmountReset     = "RESET"
)

// UnmountOptions lists every valid unmount option
var UnmountOptions = []string{
	UnmountDrain, UnmountForce, UnmountImmediate,
	UnmountNormal, UnmountRemount, UnmountReset,
}

// Mounter defines the interface for mount/unmount operations
type Mounter interface {
	// Mount issues the MOUNT command for stmt
	Mount(ctx context.Context, stmt bpxprm.MountStatement) (*host.Result, error)
	// Unmount unmounts the file system backed by source
	Unmount(ctx context.Context, source, option string) (*host.Result, error)
	// IsMounted checks if something is mounted on mountPoint
	IsMounted(ctx context.Context, mountPoint string) (bool, error)
	// GetMountPoint returns the mount point for a source data set
	// Returns empty string if not mounted
	GetMountPoint(ctx context.Context, source string) (string, error)
}

// MountedAt reports whether source is mounted on mountPoint. It fails with
// ErrMountedElsewhere when source is mounted somewhere else.
func MountedAt(ctx context.Context, m Mounter, source, mountPoint string) (bool, error) {
	current, err := m.GetMountPoint(ctx, source)
	if err != nil {
		return false, err
	}
	if current == "" {
		return false, nil
	}
	if mountPoint != "" && current != mountPoint {
		return false, fmt.Errorf("%s on %s: %w", source, current, ErrMountedElsewhere)
	}
	return true, nil
}
