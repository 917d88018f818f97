package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tgmonitor dev\n", out.String())
}

func TestKeywordsCommand_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.json")
	t.Setenv("TGMON_KEYWORDS_FILE", path)

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keywords"})

	require.NoError(t, cmd.Execute())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[0], path)
	assert.Equal(t, "важливо", lines[1])
}

func TestRootCommand_RejectsMissingToken(t *testing.T) {
	t.Setenv("TGMON_BOT_TOKEN", "")
	t.Setenv("TGMON_TARGET_USER_ID", "42")

	cmd := newRootCommand()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "bot token is required")
}
