package bpxprm

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BeginMarker opens a managed block. It is followed by a timestamp.
	BeginMarker = "/* BEGIN ANSIBLE MANAGED BLOCK"
	// EndMarker closes a managed block. It carries the same timestamp.
	EndMarker = "/* END ANSIBLE MANAGED BLOCK"
	// TimestampLayout is the YYYYMMDD-HHMMSS stamp written into both markers
	TimestampLayout = "20060102-150405"

	// commentWidth is the widest comment text written on a C<n> line
	commentWidth = 60
	// commentWrapFloor is the lowest index searched for a space to wrap on
	commentWrapFloor = 48

	continuationIndent = "      "
)

// MountStatement describes one MOUNT command as written to a BPXPRMxx member
// and issued through TSO.
type MountStatement struct {
	Source     string
	MountPoint string
	FSType     string
	ReadOnly   bool
	// Parm is passed to the physical file system; ignored unless longer than one character
	Parm string
	// Tag is TEXT or NOTEXT; empty disables the TAG clause
	Tag      string
	TagCCSID int
	SetUID   bool
	NoWait   bool
	// NoSecurity disables security checks for the file system
	NoSecurity bool
	// SysName is the system to mount on; only used when 1 to 8 characters long
	SysName      string
	Automove     string
	AutomoveList string
}

// Clauses returns the MOUNT command split into its keyword clauses, in the
// order they are written to the member.
func (s MountStatement) Clauses() []string {
	clauses := []string{
		fmt.Sprintf("MOUNT FILESYSTEM('%s')", s.Source),
		fmt.Sprintf("MOUNTPOINT('%s')", s.MountPoint),
		fmt.Sprintf("TYPE('%s')", s.FSType),
	}

	if s.ReadOnly {
		clauses = append(clauses, "MODE(READ)")
	} else {
		clauses = append(clauses, "MODE(RDWR)")
	}

	if len(s.Parm) > 1 {
		clauses = append(clauses, fmt.Sprintf("PARM('%s')", s.Parm))
	}

	if s.Tag != "" {
		clauses = append(clauses, fmt.Sprintf("TAG(%s,%d)", s.Tag, s.TagCCSID))
	}

	clauses = append(clauses, pick(s.SetUID, "SETUID", "NOSETUID"))
	clauses = append(clauses, pick(s.NoWait, "NOWAIT", "WAIT"))
	clauses = append(clauses, pick(s.NoSecurity, "NOSECURITY", "SECURITY"))

	if len(s.SysName) > 0 && len(s.SysName) < 9 {
		clauses = append(clauses, fmt.Sprintf("SYSNAME(%s)", s.SysName))
	}

	if len(s.Automove) > 1 {
		automove := s.Automove
		if len(s.AutomoveList) > 1 {
			automove += "(" + s.AutomoveList + ")"
		}
		clauses = append(clauses, automove)
	}

	return clauses
}

// Command returns the statement as a single-line TSO command.
func (s MountStatement) Command() string {
	return strings.Join(s.Clauses(), " ")
}

// BuildBlock renders the managed block for stmt. Comments are wrapped into
// C<n> lines between the BEGIN marker and the MOUNT statement. The returned
// text has no trailing newline.
func BuildBlock(stmt MountStatement, comments []string, now time.Time) string {
	stamp := now.Format(TimestampLayout)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s */\n", BeginMarker, stamp)
	for _, line := range WrapComments(comments) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	for i, clause := range stmt.Clauses() {
		if i > 0 {
			b.WriteString(continuationIndent)
		}
		b.WriteString(clause)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%s %s */", EndMarker, stamp)
	return b.String()
}

// WrapComments joins the comment entries with single spaces and lays them
// out as numbered /* C<n>:text */ lines of at most 60 characters of text.
// Each entry starts a new line unless text carried over from the previous
// entry is still pending, in which case the two are joined.
func WrapComments(comments []string) []string {
	var lines []string
	pending := ""
	emit := func(text string) {
		lines = append(lines, fmt.Sprintf("/* C%d:%s */", len(lines)+1, text))
	}

	for _, comment := range comments {
		if pending != "" {
			pending += " "
		}
		pending += strings.TrimSpace(comment)

		var head string
		head, pending = cutComment(pending)
		emit(head)
	}

	for pending != "" {
		var head string
		head, pending = cutComment(pending)
		emit(head)
	}

	return lines
}

// cutComment splits s so that head fits the comment width. It prefers the
// last space between columns 49 and 60 and falls back to a hard cut at 60.
func cutComment(s string) (head, rest string) {
	if len(s) <= commentWidth {
		return s, ""
	}

	stop := commentWidth
	for i := commentWidth - 1; i > commentWrapFloor; i-- {
		if s[i] == ' ' {
			stop = i
			break
		}
	}

	return s[:stop], strings.TrimSpace(s[stop:])
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
