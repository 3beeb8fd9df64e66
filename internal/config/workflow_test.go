package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkflowChain_MissingFileUsesDefault(t *testing.T) {
	chain, err := LoadWorkflowChain(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultChain(), chain)
	assert.Len(t, chain.Steps, 4)
	assert.Equal(t, "nra", chain.Steps[0].Username)
}

func TestLoadWorkflowChain_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	content := `form: customer-rejection
steps:
  - sequence: 1
    username: alice
    role: reviewer
  - sequence: 2
    username: bob
    role: finance
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	chain, err := LoadWorkflowChain(path)
	require.NoError(t, err)
	assert.Equal(t, "customer-rejection", chain.Form)
	assert.Equal(t, []ChainStep{
		{Sequence: 1, Username: "alice", Role: "reviewer"},
		{Sequence: 2, Username: "bob", Role: "finance"},
	}, chain.Steps)
}

func TestLoadWorkflowChain_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [1, 2"), 0o600))
	_, err := LoadWorkflowChain(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("steps: []\n"), 0o600))
	_, err = LoadWorkflowChain(path)
	assert.EqualError(t, err, "workflow file: form is required")
}
