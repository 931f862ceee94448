package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRootCmd(t *testing.T) {
	cmd := GetRootCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "hivemind", cmd.Use)
	assert.Equal(t, version, cmd.Version)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", GetVersion())
}

func TestRegisteredCommands(t *testing.T) {
	cmd := GetRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"run", "research", "configure", "roles"} {
		assert.True(t, names[want], "command %q should be registered", want)
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := GetRootCmd()

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestRunCommandFlags(t *testing.T) {
	for _, name := range []string{"tier", "model", "context", "synthesis"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
	assert.Error(t, runCmd.Args(runCmd, nil), "run should require a task argument")
}

func TestResearchCommandFlags(t *testing.T) {
	for _, name := range []string{"rounds", "output", "schedule"} {
		assert.NotNil(t, researchCmd.Flags().Lookup(name), "research should have --%s", name)
	}
	assert.Error(t, researchCmd.Args(researchCmd, nil), "research should require a topic argument")
}
