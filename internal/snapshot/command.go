package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandProvider shells out to repomix (or a compatible tool) to pack a remote
// repository into one file, then reads that file back.
type CommandProvider struct {
	opts    Options
	command string
}

func NewCommandProvider(command string, opts Options) *CommandProvider {
	if command == "" {
		command = "repomix"
	}
	return &CommandProvider{opts: opts, command: command}
}

func (p *CommandProvider) Fetch(ctx context.Context, rawURL string) (string, error) {
	tempDir, err := os.MkdirTemp(p.opts.TempDir, "errorwatch-repomix-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			slog.Warn("snapshot cleanup failed", "path", tempDir, "error", err)
		}
	}()

	out := filepath.Join(tempDir, "output.json")
	cmd := exec.CommandContext(ctx, p.command,
		"--remote", rawURL,
		"-o", out,
		"--style", "json",
		"--remove-comments",
	)
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("run %s: %w", p.command, ctx.Err())
		}
		return "", fmt.Errorf("run %s: %w: %s", p.command, err, strings.TrimSpace(lastLines(stderr.String(), 5)))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read %s output: %w", p.command, err)
	}

	text := Truncate(string(data), p.opts.MaxBytes)
	slog.Info("snapshot fetched", "source", rawURL, "bytes", len(text), "command", p.command)
	return text, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

var _ Provider = (*CommandProvider)(nil)
