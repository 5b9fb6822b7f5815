package storage

import (
	"context"

	"github.com/opensourceways/robot-codearts-gate/retry"
)

// WithRetry retries uploads of u under the policy.
func WithRetry(u Uploader, p retry.Policy) Uploader {
	return &retryUploader{u: u, p: p}
}

type retryUploader struct {
	u Uploader
	p retry.Policy
}

func (r *retryUploader) Upload(ctx context.Context, localPath, key string) error {
	return retry.Do(ctx, r.p, "upload_to_obs", func() error {
		return r.u.Upload(ctx, localPath, key)
	})
}
