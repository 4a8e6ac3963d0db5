// Package gitctx records which git revision a set of artifacts came from.
package gitctx

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// Revision captures the state of the repository holding the artifacts.
type Revision struct {
	GitSHA        string   `json:"git_sha" yaml:"git_sha"`
	Branch        string   `json:"branch,omitempty" yaml:"branch,omitempty"`
	Dirty         bool     `json:"dirty" yaml:"dirty"`
	ModifiedFiles []string `json:"modified_files,omitempty" yaml:"modified_files,omitempty"`
}

// Short returns the abbreviated commit hash.
func (r *Revision) Short() string {
	if len(r.GitSHA) > 8 {
		return r.GitSHA[:8]
	}
	return r.GitSHA
}

// Collect opens the repository containing target and reports its HEAD and
// the changed files below target. Returns nil if target is not inside a
// repository or HEAD has no commit yet.
func Collect(target string) (*Revision, error) {
	repo, err := git.PlainOpenWithOptions(target, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		// Unborn branch: nothing committed yet.
		return nil, nil
	}
	rev := &Revision{GitSHA: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return rev, nil
	}
	st, err := wt.Status()
	if err != nil {
		return nil, err
	}

	prefix := ""
	if abs, err := filepath.Abs(target); err == nil {
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		if rel, err := filepath.Rel(wt.Filesystem.Root(), abs); err == nil && rel != "." {
			prefix = filepath.ToSlash(rel) + "/"
		}
	}
	for path, s := range st {
		// Consider both staged and unstaged changes
		if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
			continue
		}
		p := filepath.ToSlash(path)
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rev.ModifiedFiles = append(rev.ModifiedFiles, strings.TrimPrefix(p, prefix))
	}
	sort.Strings(rev.ModifiedFiles)
	rev.Dirty = len(rev.ModifiedFiles) > 0
	return rev, nil
}
