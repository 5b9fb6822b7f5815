// Package codehost comments on and labels the pull request under check,
// hosted either on Gitee or on GitHub.
package codehost

import (
	"context"
	"strings"

	"github.com/opensourceways/community-robot-lib/giteeclient"

	"github.com/opensourceways/robot-codearts-gate/retry"
)

type Comment struct {
	ID   int64
	Body string
}

// Client operates on one pull request.
type Client interface {
	AddComment(ctx context.Context, body string) error
	ListComments(ctx context.Context) ([]Comment, error)
	DeleteComment(ctx context.Context, id int64) error

	AddLabel(ctx context.Context, label string) error
	// RemoveLabel succeeds when the label is not on the pull request.
	RemoveLabel(ctx context.Context, label string) error

	// PRLink is the web page of the pull request.
	PRLink() string
}

// PR identifies the pull request a Client operates on.
type PR struct {
	Owner  string
	Repo   string
	Number int
}

// New returns the GitHub client when isGithub is set, the Gitee one
// otherwise. Every call is retried by the policy.
func New(isGithub bool, token string, pr PR, p retry.Policy) Client {
	var c Client
	if isGithub {
		c = NewGithubClient(token, pr)
	} else {
		c = NewGiteeClient(giteeclient.NewClient(func() []byte {
			return []byte(token)
		}), pr)
	}

	return WithRetry(c, p)
}

var labelNotFoundMsgs = []string{"Label does not exist", "Labels not found"}

func isLabelNotFoundMsg(msg string) bool {
	for _, s := range labelNotFoundMsgs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// CommentsContaining returns the comments whose body contains marker.
func CommentsContaining(comments []Comment, marker string) []Comment {
	var r []Comment
	for i := range comments {
		if strings.Contains(comments[i].Body, marker) {
			r = append(r, comments[i])
		}
	}
	return r
}
