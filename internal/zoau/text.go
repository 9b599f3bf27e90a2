package zoau

import (
	"context"
	"fmt"
	"strings"

	"github.com/kriansa/zosmod/internal/host"
	"github.com/kriansa/zosmod/internal/log"
)

// Describe returns the details of a single data set
func (c *Client) Describe(ctx context.Context, name string) (*DataSet, error) {
	sets, err := c.List(ctx, []string{name}, ListOptions{Details: true})
	if err != nil {
		return nil, err
	}
	for _, ds := range sets {
		if strings.EqualFold(ds.Name, name) {
			return &ds, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// mvsPath returns the USS notation for a data set or member
func mvsPath(name string) string {
	return fmt.Sprintf("//'%s'", name)
}

// ReadText returns the records of a sequential data set or member as lines
func (c *Client) ReadText(ctx context.Context, name string) ([]string, error) {
	log.Debug("reading data set", "name", name)

	tmp := c.host.TempPath()
	defer func() {
		if err := c.host.Remove(ctx, tmp); err != nil {
			log.Warn("failed to remove temp file", "path", tmp, "error", err)
		}
	}()

	if _, err := host.Check(c.host.Run(ctx, "cp", mvsPath(name), tmp)); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	data, err := c.host.ReadFile(ctx, tmp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return SplitLines(string(data)), nil
}

// WriteText replaces the content of a sequential data set or member with lines
func (c *Client) WriteText(ctx context.Context, name string, lines []string) error {
	log.Debug("writing data set", "name", name, "lines", len(lines))

	tmp := c.host.TempPath()
	defer func() {
		if err := c.host.Remove(ctx, tmp); err != nil {
			log.Warn("failed to remove temp file", "path", tmp, "error", err)
		}
	}()

	if err := c.host.WriteFile(ctx, tmp, []byte(JoinLines(lines))); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	if _, err := host.Check(c.host.Run(ctx, "cp", tmp, mvsPath(name))); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// SplitLines splits text into lines, dropping the final line terminator.
// Empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// JoinLines joins lines with a terminator after each one. A line may itself
// hold several lines.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
