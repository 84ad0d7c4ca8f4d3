// Package templates manages the prompt templates rendered into each
// iteration's context and guards them against drift from their committed
// baselines.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

//go:embed defaults/*.md
var defaults embed.FS

const templatesDirName = "templates"

// Managed lists the template files the guard watches, one per iteration kind.
var Managed = []string{"first.md", "ongoing.md", "refresh.md"}

// Report describes the outcome of a drift check.
type Report struct {
	Drifted  []string // managed files whose working copy differs from baseline
	Restored int      // how many of those were overwritten with the baseline
}

// Guard verifies working templates against their last committed content.
type Guard struct {
	dir string // runDir/templates
}

// NewGuard creates a guard for templates under the given run directory.
func NewGuard(runDir string) *Guard {
	return &Guard{dir: filepath.Join(runDir, templatesDirName)}
}

// Dir returns the directory holding the managed templates.
func (g *Guard) Dir() string {
	return g.dir
}

// EnsureDefaults writes the built-in template content for any managed file
// that does not exist yet. Existing files are left alone.
func (g *Guard) EnsureDefaults() error {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("failed to create templates directory: %w", err)
	}
	for _, name := range Managed {
		path := filepath.Join(g.dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		content, err := defaults.ReadFile("defaults/" + name)
		if err != nil {
			return fmt.Errorf("missing built-in template %s: %w", name, err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write template %s: %w", name, err)
		}
	}
	return nil
}

// Verify compares each managed template against its content at the
// repository HEAD. With restore set, drifted files are overwritten with the
// baseline; the report still lists them, so restoration never masks
// detection. Outside a git repository, or before the first commit, drift is
// undefined and Verify is a no-op success.
func (g *Guard) Verify(restore bool) (*Report, error) {
	report := &Report{}

	repo, err := git.PlainOpenWithOptions(g.dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return report, nil
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return report, nil
		}
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD tree: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	root := wt.Filesystem.Root()

	for _, name := range Managed {
		path := filepath.Join(g.dir, name)
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, fmt.Errorf("template %s outside repository: %w", name, err)
		}
		baseline, err := baselineContent(tree, filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		if baseline == nil {
			// Never committed: drift cannot be defined for this file.
			continue
		}

		working, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		if bytes.Equal(working, baseline) {
			continue
		}

		report.Drifted = append(report.Drifted, name)
		if restore {
			if err := restoreFile(path, baseline); err != nil {
				return nil, err
			}
			report.Restored++
		}
	}

	return report, nil
}

// baselineContent reads a file's committed content from the HEAD tree, or nil
// when the file is not tracked there.
func baselineContent(tree *object.Tree, path string) ([]byte, error) {
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read baseline for %s: %w", path, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline blob for %s: %w", path, err)
	}
	return []byte(content), nil
}

// restoreFile atomically replaces path with the baseline content.
func restoreFile(path string, content []byte) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write restore temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	return nil
}
