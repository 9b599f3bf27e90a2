// Package zoau wraps the Z Open Automation Utilities command line tools
// used to inspect, search and copy data sets.
package zoau

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/kriansa/zosmod/internal/host"
	"github.com/kriansa/zosmod/internal/log"
)

// ErrNotFound is returned when a data set or member does not exist
var ErrNotFound = fmt.Errorf("data set not found")

// DataSet is one entry of a dls listing
type DataSet struct {
	Name    string
	DSOrg   string
	RecFM   string
	LRECL   int
	BlkSize int
	Volume  string
	// Size is in bytes; only set when listed with sizes
	Size uint64
	// Created and Referenced are only set when listed with dates
	Created    time.Time
	Referenced time.Time
}

// IsVSAM reports whether the data set is a VSAM cluster or component
func (d DataSet) IsVSAM() bool {
	return d.DSOrg == "VSAM" || d.DSOrg == "VS"
}

// IsPartitioned reports whether the data set is a PDS or PDSE
func (d DataSet) IsPartitioned() bool {
	return d.DSOrg == "PO" || d.DSOrg == "PO-E"
}

// ListOptions selects the columns dls reports
type ListOptions struct {
	// Details adds organization, record format and volume (-l)
	Details bool
	// Sizes adds the allocated size (-s)
	Sizes bool
	// Dates adds creation and last referenced dates (-u)
	Dates bool
}

// Client runs ZOAU tools on a host
type Client struct {
	host   host.Host
	binDir string
}

// NewClient creates a ZOAU client. binDir is the directory holding the
// tools; when empty they are looked up in PATH.
func NewClient(h host.Host, binDir string) *Client {
	return &Client{
		host:   h,
		binDir: binDir,
	}
}

// tool returns the command path for a ZOAU tool
func (c *Client) tool(name string) string {
	if c.binDir == "" {
		return name
	}
	return path.Join(c.binDir, name)
}

// run runs a ZOAU tool and fails on a non-zero exit status
func (c *Client) run(ctx context.Context, name string, args ...string) (*host.Result, error) {
	return host.Check(c.host.Run(ctx, c.tool(name), args...))
}

// query runs a ZOAU tool that exits with rc=1 and no output when nothing
// matches. That case yields an empty result instead of an error.
func (c *Client) query(ctx context.Context, name string, args ...string) (*host.Result, bool, error) {
	res, err := c.host.Run(ctx, c.tool(name), args...)
	if err != nil {
		return res, false, err
	}
	if res.RC == 1 && res.Stdout == "" {
		log.Debug("no matches", "cmd", res.Cmd, "stderr", res.Stderr)
		return res, false, nil
	}
	if res.RC != 0 {
		return res, false, &host.CommandError{Result: res}
	}
	return res, true, nil
}
