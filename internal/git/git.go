// Package git answers the one question the orchestrator asks of version
// control: is the workspace clean after an agent claimed it committed
// everything.
package git

import (
	"errors"
	"sort"

	gogit "github.com/go-git/go-git/v5"
)

// Status represents the workspace status.
type Status struct {
	Clean bool
	Files []string
}

// GetStatus returns the workspace status for the repository containing dir.
// A directory outside any repository reports clean: with no repository there
// is nothing the agent could have left uncommitted.
func GetStatus(dir string) (*Status, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return &Status{Clean: true}, nil
		}
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	var files []string
	for path, st := range status {
		if st.Worktree == gogit.Unmodified && st.Staging == gogit.Unmodified {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)

	return &Status{
		Clean: len(files) == 0,
		Files: files,
	}, nil
}

// IsClean reports whether the workspace has no uncommitted or untracked
// changes.
func IsClean(dir string) (bool, error) {
	status, err := GetStatus(dir)
	if err != nil {
		return false, err
	}
	return status.Clean, nil
}
