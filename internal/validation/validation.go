package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	// MaxDataSetNameLength is the maximum length of a data set name
	MaxDataSetNameLength = 44
	// MaxQualifierLength is the maximum length of one qualifier or member name
	MaxQualifierLength = 8
	// MaxSysNameLength is the maximum length of a system name
	MaxSysNameLength = 8
)

// qualifierPattern matches one data set name qualifier or member name:
// a letter or national character (@ # $) followed by letters, digits,
// national characters or hyphens
var qualifierPattern = regexp.MustCompile(`^[A-Z@#$][A-Z0-9@#$-]*$`)

// memberRefPattern splits DSN(MEMBER)
var memberRefPattern = regexp.MustCompile(`^([^()]+)\(([^()]+)\)$`)

// ValidateDataSetName validates a fully qualified data set name:
// - At most 44 characters
// - Qualifiers separated by dots, each 1 to 8 characters
// - Each qualifier starts with a letter or national character
func ValidateDataSetName(name string) error {
	if name == "" {
		return fmt.Errorf("data set name must not be empty")
	}

	if len(name) > MaxDataSetNameLength {
		return fmt.Errorf("data set name %q must be at most %d characters", name, MaxDataSetNameLength)
	}

	for _, q := range strings.Split(strings.ToUpper(name), ".") {
		if err := validateQualifier(q); err != nil {
			return fmt.Errorf("data set name %q: %w", name, err)
		}
	}

	return nil
}

// ValidateMemberName validates a PDS member name
func ValidateMemberName(name string) error {
	if err := validateQualifier(strings.ToUpper(name)); err != nil {
		return fmt.Errorf("member name %q: %w", name, err)
	}
	return nil
}

// SplitMember splits "DSN(MEMBER)" into its data set and member names.
// ok is false when ref has no member part.
func SplitMember(ref string) (dsn, member string, ok bool) {
	m := memberRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return ref, "", false
	}
	return m[1], m[2], true
}

// ValidateMemberRef validates a "DSN(MEMBER)" reference
func ValidateMemberRef(ref string) error {
	dsn, member, ok := SplitMember(ref)
	if !ok {
		return fmt.Errorf("%q must name a member as DSN(MEMBER)", ref)
	}
	if err := ValidateDataSetName(dsn); err != nil {
		return err
	}
	return ValidateMemberName(member)
}

// ValidateSysName validates a system name as used by SYSNAME(...)
func ValidateSysName(name string) error {
	if len(name) > MaxSysNameLength {
		return fmt.Errorf("system name %q must be at most %d characters", name, MaxSysNameLength)
	}
	if name != "" && !qualifierPattern.MatchString(strings.ToUpper(name)) {
		return fmt.Errorf("system name %q contains invalid characters", name)
	}
	return nil
}

// ValidateMountPoint validates a z/OS UNIX mount point path
func ValidateMountPoint(p string) error {
	if !path.IsAbs(p) {
		return fmt.Errorf("mount point %q must be an absolute path", p)
	}
	if strings.ContainsAny(p, "'\n") {
		return fmt.Errorf("mount point %q must not contain quotes or newlines", p)
	}
	return nil
}

func validateQualifier(q string) error {
	if len(q) < 1 || len(q) > MaxQualifierLength {
		return fmt.Errorf("qualifier %q must be 1 to %d characters", q, MaxQualifierLength)
	}
	if !qualifierPattern.MatchString(q) {
		return fmt.Errorf("qualifier %q must start with a letter or @#$ and contain only letters, digits, @#$ or hyphens", q)
	}
	return nil
}
