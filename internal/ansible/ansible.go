// Package ansible implements the binary module protocol: arguments are read
// from a JSON file and the result is written to stdout as one JSON object.
package ansible

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// CheckModeMessage is reported as stdout when check mode skips a command
const CheckModeMessage = "ANSIBLE CHECK MODE"

// Common holds the internal arguments Ansible passes to every module
type Common struct {
	CheckMode  bool   `json:"_ansible_check_mode"`
	Diff       bool   `json:"_ansible_diff"`
	Verbosity  int    `json:"_ansible_verbosity"`
	ModuleName string `json:"_ansible_module_name"`
}

// ParamError reports arguments that fail validation
type ParamError struct {
	Msg string
}

func (e *ParamError) Error() string {
	return "Parameter verification failed: " + e.Msg
}

// ParamErrorf creates a ParamError
func ParamErrorf(format string, args ...any) error {
	return &ParamError{Msg: fmt.Sprintf(format, args...)}
}

// LoadArgs reads the arguments file at path into params and returns the
// internal arguments. Both the flat layout and one wrapped in
// ANSIBLE_MODULE_ARGS are accepted.
func LoadArgs(path string, params any) (*Common, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arguments: %w", err)
	}
	return ParseArgs(data, params)
}

// ParseArgs decodes module arguments into params
func ParseArgs(data []byte, params any) (*Common, error) {
	var wrapped struct {
		Args json.RawMessage `json:"ANSIBLE_MODULE_ARGS"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if len(wrapped.Args) > 0 {
		data = wrapped.Args
	}

	common := &Common{}
	if err := json.Unmarshal(data, common); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if err := json.Unmarshal(data, params); err != nil {
		return nil, &ParamError{Msg: err.Error()}
	}
	return common, nil
}

// Exit writes a successful result
func Exit(w io.Writer, result any) error {
	return json.NewEncoder(w).Encode(result)
}

// Fail writes a failed result. The fields of result, if any, are kept and
// failed and msg are added.
func Fail(w io.Writer, msg string, result any) error {
	out := map[string]any{}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	if out == nil {
		out = map[string]any{}
	}
	out["failed"] = true
	out["msg"] = msg
	return json.NewEncoder(w).Encode(out)
}
