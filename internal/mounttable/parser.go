package mounttable

import (
	"bufio"
	"strconv"
	"strings"
)

// Parse parses the output of df on z/OS UNIX. Example:
//
//	Mounted on     Filesystem                Avail/Total    Files      Status
//	/u/omvsadm     (OMVSADM.ZFS)             1234/14400     4294967289 Available
//	/              (OMVS.ROOT.ZFS)           5620/2880000   4294966798 Available
//
// Lines that do not look like a mount entry are skipped.
func Parse(output string) []Entry {
	var entries []Entry

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		fs, ok := unwrapDataSet(fields[1])
		if !ok {
			continue
		}

		entry := Entry{
			MountPoint: fields[0],
			Filesystem: fs,
		}
		if len(fields) > 2 {
			entry.Avail, entry.Total = parseSpace(fields[2])
		}
		if len(fields) > 4 {
			entry.Status = fields[4]
		}

		entries = append(entries, entry)
	}

	return entries
}

// FindBySource returns the entry whose file system is dsn, compared
// case-insensitively, or false when it is not mounted.
func FindBySource(entries []Entry, dsn string) (Entry, bool) {
	for _, e := range entries {
		if strings.EqualFold(e.Filesystem, dsn) {
			return e, true
		}
	}
	return Entry{}, false
}

// FindByMountPoint returns the entry mounted at mountPoint.
func FindByMountPoint(entries []Entry, mountPoint string) (Entry, bool) {
	for _, e := range entries {
		if e.MountPoint == mountPoint {
			return e, true
		}
	}
	return Entry{}, false
}

// unwrapDataSet strips the parentheses df puts around the data set name
func unwrapDataSet(s string) (string, bool) {
	if len(s) < 3 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	return s[1 : len(s)-1], true
}

// parseSpace parses an "avail/total" pair; malformed values yield zeros
func parseSpace(s string) (avail, total uint64) {
	a, t, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0
	}
	avail, _ = strconv.ParseUint(a, 10, 64)
	total, _ = strconv.ParseUint(t, 10, 64)
	return avail, total
}
