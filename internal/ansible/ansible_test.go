package ansible

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testParams struct {
	Src      string     `json:"src"`
	Backup   *Bool      `json:"backup"`
	Force    Bool       `json:"force"`
	Comments StringList `json:"comment"`
	CCSID    *Int       `json:"tag_ccsid"`
}

func TestLoadArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "args")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"src": "IMSTESTU.ZFS",
		"backup": "yes",
		"comment": ["one", "two"],
		"tag_ccsid": "819",
		"_ansible_check_mode": true,
		"_ansible_verbosity": 2
	}`), 0o600))

	var p testParams
	common, err := LoadArgs(path, &p)
	require.NoError(t, err)

	assert.True(t, common.CheckMode)
	assert.Equal(t, 2, common.Verbosity)
	assert.Equal(t, "IMSTESTU.ZFS", p.Src)
	require.NotNil(t, p.Backup)
	assert.True(t, bool(*p.Backup))
	assert.False(t, bool(p.Force))
	assert.Equal(t, StringList{"one", "two"}, p.Comments)
	require.NotNil(t, p.CCSID)
	assert.Equal(t, Int(819), *p.CCSID)
}

func TestLoadArgs_Missing(t *testing.T) {
	_, err := LoadArgs(filepath.Join(t.TempDir(), "nope"), &testParams{})
	assert.ErrorContains(t, err, "read arguments")
}

func TestParseArgs_Wrapped(t *testing.T) {
	var p testParams
	common, err := ParseArgs([]byte(`{"ANSIBLE_MODULE_ARGS": {"src": "A.B", "_ansible_diff": true}}`), &p)
	require.NoError(t, err)
	assert.Equal(t, "A.B", p.Src)
	assert.True(t, common.Diff)
}

func TestParseArgs_BadParam(t *testing.T) {
	_, err := ParseArgs([]byte(`{"backup": "maybe"}`), &testParams{})

	var perr *ParamError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, err.Error(), "Parameter verification failed")
}

func TestParseArgs_NotJSON(t *testing.T) {
	_, err := ParseArgs([]byte(`src=A.B`), &testParams{})
	assert.ErrorContains(t, err, "decode arguments")
}

func TestBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{`true`, true, false},
		{`false`, false, false},
		{`"yes"`, true, false},
		{`"No"`, false, false},
		{`"on"`, true, false},
		{`"off"`, false, false},
		{`1`, true, false},
		{`0`, false, false},
		{`"1"`, true, false},
		{`"sometimes"`, false, true},
		{`2`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b Bool
			err := json.Unmarshal([]byte(tt.in), &b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, bool(b))
		})
	}
}

func TestStringList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want StringList
	}{
		{"array", `["a", "b"]`, StringList{"a", "b"}},
		{"comma string", `"a, b,c"`, StringList{"a", "b", "c"}},
		{"single string", `"a"`, StringList{"a"}},
		{"empty string", `""`, nil},
		{"numbers", `[1, 2]`, StringList{"1", "2"}},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l StringList
			require.NoError(t, json.Unmarshal([]byte(tt.in), &l))
			assert.Equal(t, tt.want, l)
		})
	}

	var l StringList
	assert.Error(t, json.Unmarshal([]byte(`{"a": 1}`), &l))
}

func TestInt(t *testing.T) {
	var i Int
	require.NoError(t, json.Unmarshal([]byte(`"1047"`), &i))
	assert.Equal(t, Int(1047), i)

	require.NoError(t, json.Unmarshal([]byte(`37`), &i))
	assert.Equal(t, Int(37), i)

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &i))
}

func TestExit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Exit(&buf, map[string]any{"changed": true}))
	assert.JSONEq(t, `{"changed": true}`, buf.String())
}

func TestFail(t *testing.T) {
	type result struct {
		Changed bool `json:"changed"`
		RC      int  `json:"rc"`
	}

	var buf bytes.Buffer
	require.NoError(t, Fail(&buf, "boom", result{RC: 8}))
	assert.JSONEq(t, `{"changed": false, "rc": 8, "failed": true, "msg": "boom"}`, buf.String())

	buf.Reset()
	require.NoError(t, Fail(&buf, "boom", nil))
	assert.JSONEq(t, `{"failed": true, "msg": "boom"}`, buf.String())
}
