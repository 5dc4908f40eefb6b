package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskRow struct {
	ID      string        `json:"id" yaml:"id"`
	Title   string        `json:"title" yaml:"title"`
	Next    []string      `json:"next" yaml:"next"`
	Timeout time.Duration `json:"-" yaml:"timeout,omitempty"`
}

func format(t *testing.T, kind string, compact bool, data any) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	f, err := NewFormatter(kind, &FormatterOptions{Writer: &buf, Compact: compact})
	require.NoError(t, err)
	err = f.Format(data)
	return buf.String(), err
}

func TestNewFormatterRejectsUnknownFormats(t *testing.T) {
	for _, kind := range append([]string{""}, Formats...) {
		_, err := NewFormatter(kind, nil)
		assert.NoError(t, err, kind)
	}

	_, err := NewFormatter("xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text, json, yaml")
}

func TestJSONFormatter(t *testing.T) {
	row := taskRow{ID: "plan", Title: "Plan", Next: []string{"build"}}

	out, err := format(t, "json", false, row)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Plan"`)
	assert.Contains(t, out, `"next": [`)

	out, err = format(t, "json", true, row)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"plan","title":"Plan","next":["build"]}`+"\n", out)
}

func TestYAMLFormatter(t *testing.T) {
	out, err := format(t, "yaml", false, taskRow{ID: "plan", Title: "Plan", Next: []string{"build"}, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Contains(t, out, "title: Plan")
	assert.Contains(t, out, "next:\n  - build")
	assert.Contains(t, out, "timeout: 50ms")
}

func TestTextFormatter(t *testing.T) {
	tasks := &Table{Headers: []string{"TASK", "TITLE", "NEXT"}}
	tasks.AddRow("plan", "Plan", "Build")
	tasks.AddRow("build", "Build the thing", "-")

	tests := []struct {
		name    string
		data    any
		want    string
		wantErr bool
	}{
		{name: "message", data: "✓ Saved", want: "✓ Saved"},
		{name: "aligned table", data: tasks, want: "TASK   TITLE            NEXT\nplan   Plan             Build\nbuild  Build the thing  -"},
		{name: "empty table", data: &Table{Headers: []string{"ID"}, Empty: "No projects yet."}, want: "No projects yet."},
		{name: "header only", data: &Table{Headers: []string{"ID", "TITLE"}}, want: "ID  TITLE"},
		{name: "count", data: 3, want: "3"},
		{name: "record", data: taskRow{ID: "plan"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := format(t, "text", false, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "--output json")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimRight(out, "\n"))
		})
	}
}
