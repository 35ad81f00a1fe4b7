package cmd

import (
	"testing"

	clitest "github.com/NK-639/ALHS-Backend/cmd/alhs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionCommand(t *testing.T) {
	t.Run("generates bash completion", func(t *testing.T) {
		rootCmd := NewRootCmd()
		output, err := clitest.ExecuteCommand(rootCmd, "completion", "bash")

		require.NoError(t, err)
		assert.Contains(t, output, "bash completion")
	})

	t.Run("generates zsh completion", func(t *testing.T) {
		rootCmd := NewRootCmd()
		output, err := clitest.ExecuteCommand(rootCmd, "completion", "zsh")

		require.NoError(t, err)
		assert.Contains(t, output, "#compdef")
	})

	t.Run("generates fish completion", func(t *testing.T) {
		rootCmd := NewRootCmd()
		output, err := clitest.ExecuteCommand(rootCmd, "completion", "fish")

		require.NoError(t, err)
		assert.NotEmpty(t, output)
	})

	t.Run("rejects unknown shell", func(t *testing.T) {
		rootCmd := NewRootCmd()
		_, err := clitest.ExecuteCommand(rootCmd, "completion", "tcsh")

		assert.Error(t, err)
	})

	t.Run("requires shell argument", func(t *testing.T) {
		rootCmd := NewRootCmd()
		_, err := clitest.ExecuteCommand(rootCmd, "completion")

		assert.Error(t, err)
	})
}
