// Package version reports the zosmod build. Release builds stamp the values
// with -ldflags "-X github.com/kriansa/zosmod/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the version line printed by --version. Commit and build
// time are left out of development builds.
func String() string {
	if Commit == "unknown" && BuildTime == "unknown" {
		return fmt.Sprintf("zosmod %s (%s %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("zosmod %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
