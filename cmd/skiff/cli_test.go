package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRootCmd(t *testing.T) {
	root := SetupRootCmd()

	for _, name := range []string{"agent", "ask", "embed", "heartbeat", "teammate", "team", "session", "providers", "mcp"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	for _, flag := range []string{"config", "session", "provider", "model", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
	assert.Equal(t, "s", root.PersistentFlags().Lookup("session").Shorthand)
	assert.Equal(t, "m", root.PersistentFlags().Lookup("model").Shorthand)

	cmd, _, err := root.Find([]string{"session", "reset"})
	require.NoError(t, err)
	assert.Equal(t, "reset", cmd.Name())
}

func TestResolveSessionKey(t *testing.T) {
	defer func(old string) { sessionKey = old }(sessionKey)

	sessionKey = "project-x"
	assert.Equal(t, "project-x", resolveSessionKey())

	sessionKey = ""
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, resolveSessionKey())
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "Run a command", firstLine("Run a command\nwith details"))
	assert.Equal(t, "single", firstLine("single"))
}
