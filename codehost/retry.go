package codehost

import (
	"context"

	"github.com/opensourceways/robot-codearts-gate/retry"
)

// WithRetry returns a Client that retries every call of c.
func WithRetry(c Client, p retry.Policy) Client {
	return &retryClient{c: c, p: p}
}

type retryClient struct {
	c Client
	p retry.Policy
}

func (r *retryClient) AddComment(ctx context.Context, body string) error {
	return retry.Do(ctx, r.p, "add_comment", func() error {
		return r.c.AddComment(ctx, body)
	})
}

func (r *retryClient) ListComments(ctx context.Context) ([]Comment, error) {
	return retry.DoWithData(ctx, r.p, "list_comments", func() ([]Comment, error) {
		return r.c.ListComments(ctx)
	})
}

func (r *retryClient) DeleteComment(ctx context.Context, id int64) error {
	return retry.Do(ctx, r.p, "delete_comment", func() error {
		return r.c.DeleteComment(ctx, id)
	})
}

func (r *retryClient) AddLabel(ctx context.Context, label string) error {
	return retry.Do(ctx, r.p, "add_label", func() error {
		return r.c.AddLabel(ctx, label)
	})
}

func (r *retryClient) RemoveLabel(ctx context.Context, label string) error {
	return retry.Do(ctx, r.p, "del_label", func() error {
		return r.c.RemoveLabel(ctx, label)
	})
}

func (r *retryClient) PRLink() string {
	return r.c.PRLink()
}
