package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"  yaml  ", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintJSON(&buf, map[string]any{"bucket": "datasets", "workers": 8})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"bucket": "datasets"`)
	assert.Contains(t, buf.String(), `"workers": 8`)
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := PrintYAML(&buf, map[string]string{"mountpoint": "/mnt/datasets"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "mountpoint: /mnt/datasets")
}

type testTable struct{}

func (testTable) Headers() []string { return []string{"Setting", "Value"} }
func (testTable) Rows() [][]string {
	return [][]string{
		{"bucket", "datasets"},
		{"chunk size", "8MiB"},
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	err := PrintTable(&buf, testTable{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SETTING")
	assert.Contains(t, out, "bucket")
	assert.Contains(t, out, "8MiB")
}
