package project

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const (
	gitIgnoreFile    = ".gitignore"
	dinghyIgnoreFile = ".dinghyignore"
)

// CopyOptions tunes Copy.
type CopyOptions struct {
	// IncludeGitIgnored copies files matched by .gitignore. .dinghyignore
	// rules always apply.
	IncludeGitIgnored bool
}

// CopyStats counts the files visited by Copy.
type CopyStats struct {
	Copied  int
	Skipped int
}

// Copy mirrors the tree at src into dst. Paths with a "target" or ".git"
// component and ignored paths are left out. A file whose destination has the
// same size and is not older than the source is skipped. Links to
// directories are copied as links.
func Copy(src, dst string, opts CopyOptions) (CopyStats, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return CopyStats{}, fmt.Errorf("create %s: %w", dst, err)
	}
	c := &copier{
		src:  osfs.New(src),
		dst:  osfs.New(dst),
		opts: opts,
	}
	if err := c.walk(nil); err != nil {
		return c.stats, err
	}
	return c.stats, nil
}

type copier struct {
	src      billy.Filesystem
	dst      billy.Filesystem
	opts     CopyOptions
	patterns []gitignore.Pattern
	stats    CopyStats
}

func (c *copier) walk(dir []string) error {
	dirPath := path.Join(dir...)
	if dirPath == "" {
		dirPath = "."
	}
	if err := c.loadIgnoreFiles(dir); err != nil {
		return err
	}
	entries, err := c.src.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("read directory %q: %w", dirPath, err)
	}
	matcher := gitignore.NewMatcher(c.patterns)

	for _, entry := range entries {
		name := entry.Name()
		if name == "target" || name == ".git" {
			continue
		}
		rel := append(append([]string(nil), dir...), name)
		relPath := path.Join(rel...)

		info := entry
		if entry.Mode()&os.ModeSymlink != 0 {
			resolved, err := c.src.Stat(relPath)
			if err != nil {
				// dangling link
				continue
			}
			if resolved.IsDir() {
				// directory links are recreated, never followed
				if matcher.Match(rel, true) {
					continue
				}
				if err := c.link(relPath); err != nil {
					return err
				}
				continue
			}
			info = resolved
		}
		if matcher.Match(rel, info.IsDir()) {
			continue
		}

		if info.IsDir() {
			if err := c.dst.MkdirAll(relPath, 0o755); err != nil {
				return fmt.Errorf("create directory %q: %w", relPath, err)
			}
			if err := c.walk(rel); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if c.unchanged(relPath, info) {
			c.stats.Skipped++
			continue
		}
		if err := c.copy(relPath, info); err != nil {
			return err
		}
		c.stats.Copied++
	}
	return nil
}

func (c *copier) unchanged(relPath string, src os.FileInfo) bool {
	dst, err := c.dst.Stat(relPath)
	if err != nil {
		return false
	}
	return dst.Size() == src.Size() && !dst.ModTime().Before(src.ModTime())
}

func (c *copier) copy(relPath string, info os.FileInfo) error {
	in, err := c.src.Open(relPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", relPath, err)
	}
	defer in.Close()

	out, err := c.dst.OpenFile(relPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %q: %w", relPath, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %q: %w", relPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("finalize %q: %w", relPath, err)
	}
	if changer, ok := c.dst.(billy.Change); ok {
		_ = changer.Chmod(relPath, info.Mode().Perm())
	}
	return nil
}

func (c *copier) link(relPath string) error {
	target, err := c.src.Readlink(relPath)
	if err != nil {
		return fmt.Errorf("read link %q: %w", relPath, err)
	}
	if existing, err := c.dst.Readlink(relPath); err == nil && existing == target {
		c.stats.Skipped++
		return nil
	}
	if err := c.dst.Remove(relPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace %q: %w", relPath, err)
	}
	if err := c.dst.Symlink(target, relPath); err != nil {
		return fmt.Errorf("link %q: %w", relPath, err)
	}
	c.stats.Copied++
	return nil
}

func (c *copier) loadIgnoreFiles(dir []string) error {
	files := []string{dinghyIgnoreFile}
	if !c.opts.IncludeGitIgnored {
		files = append(files, gitIgnoreFile)
	}
	for _, name := range files {
		patterns, err := readPatterns(c.src, dir, name)
		if err != nil {
			return err
		}
		c.patterns = append(c.patterns, patterns...)
	}
	return nil
}

func readPatterns(fs billy.Filesystem, dir []string, name string) ([]gitignore.Pattern, error) {
	f, err := fs.Open(path.Join(append(append([]string(nil), dir...), name)...))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, dir))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return patterns, nil
}

// CopyFile copies a single file, creating or truncating dst with perm.
func CopyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
