package summarizer

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitSummarizer builds the digest in process from a shallow in-memory clone.
// The layout follows gitingest: a header, the directory structure, then
// every text file not larger than MaxFileBytes.
type GitSummarizer struct {
	MaxFileBytes int64
}

func NewGitSummarizer() *GitSummarizer {
	return &GitSummarizer{MaxFileBytes: MaxSummaryBytes}
}

func (s *GitSummarizer) Summarize(ctx context.Context, repoURL string) (string, error) {
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("clone %s: %w", repoURL, err)
	}

	name := path.Base(strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git"))
	return s.digest(ctx, repo, name)
}

type digestFile struct {
	path    string
	content string
	skipped string
}

func (s *GitSummarizer) digest(ctx context.Context, repo *git.Repository, name string) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("load commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("load tree: %w", err)
	}

	var files []digestFile
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		df := digestFile{path: f.Name}
		switch binary, err := f.IsBinary(); {
		case err != nil:
			return err
		case binary:
			df.skipped = "binary file"
		case s.MaxFileBytes > 0 && f.Size > s.MaxFileBytes:
			df.skipped = fmt.Sprintf("file larger than %d bytes", s.MaxFileBytes)
		default:
			content, err := f.Contents()
			if err != nil {
				return err
			}
			df.content = content
		}
		files = append(files, df)
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return render(name, commit.Hash.String(), files), nil
}

func render(name, commit string, files []digestFile) string {
	var b strings.Builder

	analyzed := 0
	for _, f := range files {
		if f.skipped == "" {
			analyzed++
		}
	}

	fmt.Fprintf(&b, "Repository: %s\n", name)
	fmt.Fprintf(&b, "Commit: %s\n", commit)
	fmt.Fprintf(&b, "Files analyzed: %d\n\n", analyzed)

	b.WriteString("Directory structure:\n")
	fmt.Fprintf(&b, "└── %s/\n", name)
	seen := map[string]bool{}
	for _, f := range files {
		parts := strings.Split(f.path, "/")
		for i := range parts {
			p := strings.Join(parts[:i+1], "/")
			if seen[p] {
				continue
			}
			seen[p] = true
			suffix := ""
			if i < len(parts)-1 {
				suffix = "/"
			}
			fmt.Fprintf(&b, "%s├── %s%s\n", strings.Repeat("    ", i+1), parts[i], suffix)
		}
	}

	for _, f := range files {
		b.WriteString("\n================================================\n")
		fmt.Fprintf(&b, "FILE: %s\n", f.path)
		b.WriteString("================================================\n")
		if f.skipped != "" {
			fmt.Fprintf(&b, "[%s]\n", f.skipped)
			continue
		}
		b.WriteString(f.content)
		if !strings.HasSuffix(f.content, "\n") {
			b.WriteString("\n")
		}
	}

	return b.String()
}
