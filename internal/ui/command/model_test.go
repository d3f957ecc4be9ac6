package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cmd, err := Parse("refresh")
	require.NoError(t, err)
	assert.Equal(t, CommandMsg{Name: Refresh}, cmd)

	cmd, err = Parse("  Search  quarterly report ")
	require.NoError(t, err)
	assert.Equal(t, CommandMsg{Name: Search, Arg: "quarterly report"}, cmd)

	cmd, err = Parse("o 42")
	require.NoError(t, err)
	assert.Equal(t, CommandMsg{Name: Open, Arg: "42"}, cmd)

	cmd, err = Parse("new")
	require.NoError(t, err)
	assert.Equal(t, NewTask, cmd.Name)
}

func TestPaletteStartsEmpty(t *testing.T) {
	m := New(80, 24)
	assert.Empty(t, m.input.Value())
	assert.NotEmpty(t, m.View())
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse("frobnicate")
	assert.ErrorContains(t, err, "unknown command")
}

func TestParseExactNameWins(t *testing.T) {
	cmd, err := Parse("ALL")
	require.NoError(t, err)
	assert.Equal(t, All, cmd.Name)

	cmd, err = Parse("l")
	require.NoError(t, err)
	assert.Equal(t, Logout, cmd.Name)
}
