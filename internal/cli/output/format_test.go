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
		{input: "table", want: FormatTable},
		{input: "", want: FormatTable},
		{input: "JSON", want: FormatJSON},
		{input: "yml", want: FormatYAML},
		{input: "  yaml ", want: FormatYAML},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type lockRow struct {
	Key   string `json:"key" yaml:"key"`
	State string `json:"state" yaml:"state"`
}

func (r lockRow) Headers() []string { return []string{"Key", "State"} }
func (r lockRow) Rows() [][]string  { return [][]string{{r.Key, r.State}} }

func TestPrinterPrint(t *testing.T) {
	row := lockRow{Key: "alpha:notes", State: "read-locked"}

	t.Run("Table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(row))
		assert.Contains(t, buf.String(), "KEY")
		assert.Contains(t, buf.String(), "alpha:notes")
		assert.Contains(t, buf.String(), "read-locked")
	})

	t.Run("TableFallsBackToJSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"sessions": 2}))
		assert.JSONEq(t, `{"sessions": 2}`, buf.String())
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatJSON, false)
		require.NoError(t, p.Print(row))
		assert.True(t, p.Structured())
		assert.JSONEq(t, `{"key": "alpha:notes", "state": "read-locked"}`, buf.String())
	})

	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(row))
		assert.Equal(t, "key: alpha:notes\nstate: read-locked\n", buf.String())
	})
}

func TestPrinterMessages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)

	p.Success("ok")
	p.Warning("careful")
	p.Error("failed")
	p.Printf("%d left\n", 3)

	assert.Equal(t, "ok\ncareful\nfailed\n3 left\n", buf.String())
}

func TestPrinterNoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	NewPrinter(&buf, FormatTable, true).Success("plain")
	assert.Equal(t, "plain\n", buf.String())
}
