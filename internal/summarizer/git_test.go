package summarizer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs billy.Filesystem, name string, data []byte) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestGitSummarizer_Digest(t *testing.T) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)

	writeFile(t, fs, "README.md", []byte("# widget\n"))
	writeFile(t, fs, "cmd/main.go", []byte("package main"))
	writeFile(t, fs, "assets/logo.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0x01, 0x02})
	writeFile(t, fs, "data/big.txt", []byte(strings.Repeat("z", 64)))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddGlob("."))
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	s := &GitSummarizer{MaxFileBytes: 32}
	out, err := s.digest(context.Background(), repo, "widget")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Repository: widget\n"))
	assert.Contains(t, out, "Files analyzed: 2\n")
	assert.Contains(t, out, "    ├── cmd/\n        ├── main.go\n")
	assert.Contains(t, out, "FILE: README.md\n================================================\n# widget\n")
	assert.Contains(t, out, "FILE: cmd/main.go\n================================================\npackage main\n")
	assert.Contains(t, out, "FILE: assets/logo.png\n================================================\n[binary file]\n")
	assert.Contains(t, out, "[file larger than 32 bytes]")
	assert.NotContains(t, out, "zzzz")

	// files are listed in path order
	assert.Less(t, strings.Index(out, "FILE: README.md"), strings.Index(out, "FILE: assets/logo.png"))
	assert.Less(t, strings.Index(out, "FILE: assets/logo.png"), strings.Index(out, "FILE: cmd/main.go"))
}
