package checkpoint_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stevekinney/silvan-sub003/pkg/adapters/process"
	"github.com/stevekinney/silvan-sub003/pkg/checkpoint"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockExec struct{ mock.Mock }

func (m *mockExec) Run(ctx context.Context, cmd process.Command) (domain.CommandResult, error) {
	args := m.Called(ctx, cmd.Args)
	return args.Get(0).(domain.CommandResult), args.Error(1)
}

func TestParseShortStat(t *testing.T) {
	tests := []struct {
		in   string
		want domain.DiffStat
	}{
		{" 3 files changed, 10 insertions(+), 2 deletions(-)\n", domain.DiffStat{FilesChanged: 3, Insertions: 10, Deletions: 2}},
		{" 1 file changed, 1 insertion(+)\n", domain.DiffStat{FilesChanged: 1, Insertions: 1}},
		{" 1 file changed, 4 deletions(-)\n", domain.DiffStat{FilesChanged: 1, Deletions: 4}},
		{"", domain.DiffStat{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, checkpoint.ParseShortStat(tt.in))
	}
}

func TestCommit_NothingStaged(t *testing.T) {
	m := &mockExec{}
	m.On("Run", mock.Anything, []string{"add", "-A"}).Return(domain.CommandResult{}, nil)
	m.On("Run", mock.Anything, []string{"diff", "--cached", "--quiet"}).Return(domain.CommandResult{}, nil)
	m.On("Run", mock.Anything, []string{"rev-parse", "HEAD"}).Return(domain.CommandResult{Stdout: "abc123\n"}, nil)

	res, err := checkpoint.New(m, "/repo").Commit(context.Background(), "checkpoint")
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, "abc123", res.SHA)
	m.AssertNotCalled(t, "Run", mock.Anything, []string{"commit", "--no-verify", "-m", "checkpoint"})
}

func TestCommit_GitFailure(t *testing.T) {
	m := &mockExec{}
	m.On("Run", mock.Anything, []string{"add", "-A"}).Return(domain.CommandResult{ExitCode: 128, Stderr: "fatal: not a git repository\n"}, nil)

	_, err := checkpoint.New(m, "/repo").Commit(context.Background(), "checkpoint")
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestCommit_RealRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	r := process.NewRunner(process.WithBaseDir(dir), process.WithEnv(map[string]string{
		"GIT_AUTHOR_NAME": "silvan", "GIT_AUTHOR_EMAIL": "silvan@example.com",
		"GIT_COMMITTER_NAME": "silvan", "GIT_COMMITTER_EMAIL": "silvan@example.com",
		"GIT_CONFIG_GLOBAL": "/dev/null", "GIT_CONFIG_NOSYSTEM": "1",
	}))
	res, err := r.Run(context.Background(), process.Command{Path: "git", Args: []string{"init", "-q"}})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode, res.Stderr)

	g := checkpoint.New(r, dir)

	empty, err := g.Commit(context.Background(), "nothing")
	require.NoError(t, err)
	assert.False(t, empty.Committed)
	assert.Empty(t, empty.SHA)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o644))
	first, err := g.Commit(context.Background(), "checkpoint: implement")
	require.NoError(t, err)
	assert.True(t, first.Committed)
	assert.Len(t, first.SHA, 40)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	stat, err := g.DiffStat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DiffStat{FilesChanged: 1, Deletions: 1}, stat)

	again, err := g.Commit(context.Background(), "checkpoint: verify")
	require.NoError(t, err)
	assert.True(t, again.Committed)
	assert.NotEqual(t, first.SHA, again.SHA)
}
