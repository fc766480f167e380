// Package snapshot turns a feature's source location into a single text document
// that can be handed to a language model as context.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Provider fetches the source behind url and returns it flattened to text.
// Implementations own any temporary files and remove them before returning.
type Provider interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ErrEmptySnapshot means the source was fetched but held no readable text files.
var ErrEmptySnapshot = errors.New("snapshot contains no text files")

// Options shared by every provider.
type Options struct {
	TempDir  string // empty means os.TempDir()
	MaxBytes int    // 0 means unlimited
}

const (
	maxFileBytes    = 256 * 1024
	binarySniffSize = 8000
	truncatedMarker = "\n... [snapshot truncated]\n"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
}

// Flatten concatenates every text file under root, in lexical path order, as
// "=== relative/path ===" sections. Binary and oversized files are skipped.
// A symlinked root is resolved first.
func Flatten(root string, maxBytes int) (string, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}
	root = resolved

	var b strings.Builder

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileBytes {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if isBinary(data) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "=== %s ===\n%s", filepath.ToSlash(rel), data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			b.WriteByte('\n')
		}

		if maxBytes > 0 && b.Len() > maxBytes {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("flatten %s: %w", root, err)
	}

	return Truncate(b.String(), maxBytes), nil
}

// Truncate caps s at maxBytes without splitting a UTF-8 rune and marks the cut.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedMarker
}

func isBinary(data []byte) bool {
	n := len(data)
	if n > binarySniffSize {
		n = binarySniffSize
	}
	return bytes.IndexByte(data[:n], 0) >= 0 || !utf8.Valid(data)
}
