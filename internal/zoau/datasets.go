package zoau

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kriansa/zosmod/internal/log"
	"github.com/kriansa/zosmod/internal/validation"
)

// dateLayout is the date format dls -u reports
const dateLayout = "2006/01/02"

// Exists reports whether a data set, or a member when name is DSN(MEMBER),
// exists
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	log.Debug("checking data set exists", "name", name)

	if dsn, member, ok := validation.SplitMember(name); ok {
		members, err := c.Members(ctx, dsn, member)
		if err != nil {
			return false, err
		}
		for _, m := range members {
			if strings.EqualFold(m, member) {
				return true, nil
			}
		}
		return false, nil
	}

	res, found, err := c.query(ctx, "dls", name)
	if err != nil {
		return false, fmt.Errorf("check data set: %w", err)
	}
	if !found {
		return false, nil
	}

	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.EqualFold(strings.TrimSpace(line), name) {
			return true, nil
		}
	}
	return false, nil
}

// List returns the data sets matching any of patterns
func (c *Client) List(ctx context.Context, patterns []string, opts ListOptions) ([]DataSet, error) {
	log.Debug("listing data sets", "patterns", patterns, "details", opts.Details)

	var args []string
	if opts.Details {
		args = append(args, "-l")
	}
	if opts.Sizes {
		args = append(args, "-s")
	}
	if opts.Dates {
		args = append(args, "-u")
	}
	args = append(args, patterns...)

	res, found, err := c.query(ctx, "dls", args...)
	if err != nil {
		return nil, fmt.Errorf("list data sets: %w", err)
	}
	if !found {
		return nil, nil
	}

	return parseListing(res.Stdout, opts), nil
}

// parseListing parses dls output. With details each line is
//
//	USER.DATA.SET  PS  FB  80  27920  VOL001  [size]  [created referenced]
//
// where the size column follows -s and the two dates follow -u.
func parseListing(output string, opts ListOptions) []DataSet {
	var sets []DataSet

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		ds := DataSet{Name: fields[0]}
		rest := fields[1:]

		if opts.Details {
			if len(rest) < 5 {
				log.Debug("failed to parse dls line", "line", scanner.Text())
				continue
			}
			ds.DSOrg = rest[0]
			ds.RecFM = rest[1]
			ds.LRECL, _ = strconv.Atoi(rest[2])
			ds.BlkSize, _ = strconv.Atoi(rest[3])
			ds.Volume = rest[4]
			rest = rest[5:]
		}

		var dates []time.Time
		for _, f := range rest {
			if t, err := time.Parse(dateLayout, f); err == nil {
				dates = append(dates, t)
				continue
			}
			if n, err := strconv.ParseUint(f, 10, 64); err == nil {
				ds.Size = n
			}
		}
		if len(dates) > 0 {
			ds.Created = dates[0]
			ds.Referenced = dates[0]
		}
		if len(dates) > 1 {
			ds.Referenced = dates[1]
		}

		sets = append(sets, ds)
	}

	return sets
}

// Members returns the member names of a PDS or PDSE matching pattern.
// An empty pattern lists every member.
func (c *Client) Members(ctx context.Context, dsn, pattern string) ([]string, error) {
	log.Debug("listing members", "dsn", dsn, "pattern", pattern)

	if pattern == "" {
		pattern = "*"
	}

	res, found, err := c.query(ctx, "mls", fmt.Sprintf("%s(%s)", dsn, pattern))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if !found {
		return nil, nil
	}

	var members []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		// mls prints either the bare member name or DSN(MEMBER)
		name := fields[0]
		if _, m, ok := validation.SplitMember(name); ok {
			name = m
		}
		members = append(members, name)
	}
	return members, nil
}

// Grep returns the distinct data sets and members, as DSN or DSN(MEMBER),
// whose content contains text
func (c *Client) Grep(ctx context.Context, patterns []string, text string, ignoreCase bool) ([]string, error) {
	log.Debug("searching data set content", "patterns", patterns, "text", text)

	var args []string
	if ignoreCase {
		args = append(args, "-i")
	}
	args = append(args, text)
	args = append(args, patterns...)

	res, found, err := c.query(ctx, "dgrep", args...)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	if !found {
		return nil, nil
	}

	seen := make(map[string]bool)
	for _, line := range strings.Split(res.Stdout, "\n") {
		name, _, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			continue
		}
		seen[strings.TrimSpace(name)] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Copy copies a data set or member to another one
func (c *Client) Copy(ctx context.Context, src, dst string) error {
	log.Debug("copying data set", "src", src, "dst", dst)

	if _, err := c.run(ctx, "dcp", src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}
