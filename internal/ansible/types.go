package ansible

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bool decodes the boolean spellings Ansible accepts: JSON booleans, 1/0 and
// the strings yes/no, y/n, true/false, on/off, 1/0.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "on", "1":
		*b = true
	case "false", "no", "n", "off", "0", "":
		*b = false
	default:
		return fmt.Errorf("%s is not a valid boolean", data)
	}
	return nil
}

// Ptr returns a pointer to the bool value
func (b Bool) Ptr() *bool {
	v := bool(b)
	return &v
}

// StringList decodes either a JSON array or a comma separated string
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	var list []any
	if err := json.Unmarshal(data, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			out = append(out, scalarString(v))
		}
		*l = out
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%s is not a list", data)
	}
	if s == "" {
		*l = nil
		return nil
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	*l = out
	return nil
}

// Int decodes a JSON number or a numeric string
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}

	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%s is not a valid integer", data)
	}
	*i = Int(n)
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
