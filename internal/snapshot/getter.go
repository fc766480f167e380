package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
)

var archiveSuffixes = []string{".zip", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".tar"}

// GetterProvider downloads sources with hashicorp/go-getter (git, archives, local paths,
// S3/GCS) into a temp dir and flattens them.
type GetterProvider struct {
	opts Options
}

func NewGetterProvider(opts Options) *GetterProvider {
	return &GetterProvider{opts: opts}
}

func (p *GetterProvider) Fetch(ctx context.Context, rawURL string) (string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(sourceFor(rawURL), pwd, getter.Detectors)
	if err != nil {
		return "", fmt.Errorf("detect source %q: %w", rawURL, err)
	}

	tempDir, err := os.MkdirTemp(p.opts.TempDir, "errorwatch-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			slog.Warn("snapshot cleanup failed", "path", tempDir, "error", err)
		}
	}()

	dst := filepath.Join(tempDir, "src")
	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeDir,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	// Local directories are symlinked into dst rather than copied.
	text, err := Flatten(dst, p.opts.MaxBytes)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("fetch %s: %w", rawURL, ErrEmptySnapshot)
	}
	slog.Info("snapshot fetched", "source", rawURL, "bytes", len(text))
	return text, nil
}

// sourceFor forces the git getter for plain http(s) repository URLs, which go-getter
// would otherwise fetch as a web page. Archives and explicit "getter::" sources pass through.
func sourceFor(raw string) string {
	if strings.Contains(raw, "::") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return raw
	}
	lower := strings.ToLower(u.Path)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s) {
			return raw
		}
	}
	return "git::" + raw
}

var _ Provider = (*GetterProvider)(nil)
