package summarizer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// stderrTail bounds how much of the tool's stderr is kept in errors
const stderrTail = 2048

// CommandSummarizer runs the gitingest CLI and captures its stdout
type CommandSummarizer struct {
	Bin       string
	ExtraArgs []string
}

func NewCommandSummarizer(bin string) *CommandSummarizer {
	if bin == "" {
		bin = "gitingest"
	}
	return &CommandSummarizer{Bin: bin}
}

func (s *CommandSummarizer) Summarize(ctx context.Context, repoURL string) (string, error) {
	args := append([]string{
		repoURL,
		"--output", "-",
		"--max-size", strconv.Itoa(MaxSummaryBytes),
	}, s.ExtraArgs...)

	cmd := exec.CommandContext(ctx, s.Bin, args...)
	// the tool may leave child processes holding the pipes after a kill
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s failed: %w (stderr: %s)", s.Bin, err, tail(stderr.String()))
	}

	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s produced an empty summary", s.Bin)
	}
	return out, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}
	return s
}
