package owners

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GitRepos clones, updates and pushes repositories with go-git.
type GitRepos struct {
	auth  *githttp.BasicAuth
	name  string
	email string
}

func NewGitRepos(user, token, email string) *GitRepos {
	return &GitRepos{
		auth:  &githttp.BasicAuth{Username: user, Password: token},
		name:  user,
		email: email,
	}
}

// Sync clones url into dir, or pulls when dir is already a clone.
func (g *GitRepos) Sync(ctx context.Context, url, dir string) error {
	r, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}

		_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:   url,
			Auth:  g.auth,
			Depth: 1,
		})
		if err != nil {
			return fmt.Errorf("clone %s, err:%w", url, err)
		}

		return nil
	}
	if err != nil {
		return err
	}

	w, err := r.Worktree()
	if err != nil {
		return err
	}

	err = w.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName, Auth: g.auth})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s, err:%w", dir, err)
	}

	return nil
}

// CommitAndPush commits every change of the work tree in dir and pushes
// it. A clean work tree is left alone.
func (g *GitRepos) CommitAndPush(ctx context.Context, dir, msg string) (bool, error) {
	r, err := git.PlainOpen(dir)
	if err != nil {
		return false, err
	}

	w, err := r.Worktree()
	if err != nil {
		return false, err
	}

	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, err
	}

	status, err := w.Status()
	if err != nil {
		return false, err
	}
	if status.IsClean() {
		return false, nil
	}

	_, err = w.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: g.name, Email: g.email, When: time.Now()},
	})
	if err != nil {
		return false, err
	}

	err = r.PushContext(ctx, &git.PushOptions{RemoteName: git.DefaultRemoteName, Auth: g.auth})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return true, fmt.Errorf("push %s, err:%w", dir, err)
	}

	return true, nil
}
