package process_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stevekinney/silvan-sub003/pkg/adapters/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCommands(t *testing.T) {
	dir := t.TempDir()

	t.Run("YAML Keeps Order", func(t *testing.T) {
		path := filepath.Join(dir, "verify.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`commands:
  - name: test
    command: go
    args: [test, ./...]
  - command: golangci-lint
    env:
      GOFLAGS: -mod=mod
`), 0o644))

		cmds, err := process.LoadCommands(path)
		require.NoError(t, err)
		require.Len(t, cmds, 2)
		assert.Equal(t, "test", cmds[0].Name)
		assert.Equal(t, []string{"test", "./..."}, cmds[0].Args)
		assert.Equal(t, "golangci-lint", cmds[1].Name, "name defaults to the command")
		assert.Equal(t, "-mod=mod", cmds[1].Environment["GOFLAGS"])
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "verify.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"commands":[{"name":"vet","command":"go","args":["vet"]}]}`), 0o644))
		cmds, err := process.LoadCommands(path)
		require.NoError(t, err)
		require.Len(t, cmds, 1)
		assert.Equal(t, "vet", cmds[0].Name)
	})

	t.Run("Missing File", func(t *testing.T) {
		cmds, err := process.LoadCommands(filepath.Join(dir, "nope.yaml"))
		require.NoError(t, err)
		assert.Empty(t, cmds)
	})

	t.Run("Duplicate Names", func(t *testing.T) {
		path := filepath.Join(dir, "dup.yaml")
		require.NoError(t, os.WriteFile(path, []byte("commands:\n  - {name: a, command: x}\n  - {name: a, command: y}\n"), 0o644))
		_, err := process.LoadCommands(path)
		assert.Error(t, err)
	})
}
