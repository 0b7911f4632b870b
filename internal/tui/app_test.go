package tui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klubi/rstore/pkg/client"
)

func TestTableColumns(t *testing.T) {
	assert.Equal(t, []string{"uuid"}, tableColumns(nil))

	cols := tableColumns([]client.Resource{
		{"uuid": "1", "name": "a"},
		{"uuid": "2", "email": "x@y", "z": 1, "y": 2, "x": 3, "w": 4},
	})
	assert.Equal(t, []string{"uuid", "email", "name", "w", "x", "y"}, cols)
}

func TestMatchesFilter(t *testing.T) {
	assert.True(t, matchesFilter("", "anything"))
	assert.True(t, matchesFilter("red", "Blue", "dark-red"))
	assert.False(t, matchesFilter("green", "Blue", "dark-red"))
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "-", cellText(nil))
	assert.Equal(t, "3", cellText(float64(3)))
	assert.Equal(t, `{"a":1}`, cellText(map[string]any{"a": 1}))
	assert.Equal(t, `["x","y"]`, cellText([]any{"x", "y"}))
}

func TestDescribeResource(t *testing.T) {
	out := describeResource(client.Resource{"uuid": "abc", "name": "[bold]"})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "name")
	assert.Contains(t, lines[1], "abc")
	// Field values are escaped so tview does not read them as style tags.
	assert.Contains(t, lines[0], "[bold[]")
}
