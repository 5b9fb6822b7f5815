package codehost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
)

type githubClient struct {
	gh *gh.Client
	pr PR
}

// NewGithubClient stacks ETag caching and secondary rate limit handling
// under the go-github client.
func NewGithubClient(token string, pr PR) Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	return &githubClient{
		gh: gh.NewClient(rateLimitClient).WithAuthToken(token),
		pr: pr,
	}
}

// NewGithubClientWithHTTPClient points the client at baseURL, which must
// end with a slash.
func NewGithubClientWithHTTPClient(hc *http.Client, baseURL string, pr PR) (Client, error) {
	client := gh.NewClient(hc)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &githubClient{gh: client, pr: pr}, nil
}

func (c *githubClient) AddComment(ctx context.Context, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, c.pr.Owner, c.pr.Repo, c.pr.Number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("creating comment on %s/%s#%d: %w", c.pr.Owner, c.pr.Repo, c.pr.Number, err)
	}

	return nil
}

func (c *githubClient) ListComments(ctx context.Context) ([]Comment, error) {
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var r []Comment
	for {
		items, resp, err := c.gh.Issues.ListComments(ctx, c.pr.Owner, c.pr.Repo, c.pr.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments of %s/%s#%d (page %d): %w", c.pr.Owner, c.pr.Repo, c.pr.Number, opts.Page, err)
		}

		for _, item := range items {
			r = append(r, Comment{ID: item.GetID(), Body: item.GetBody()})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return r, nil
}

func (c *githubClient) DeleteComment(ctx context.Context, id int64) error {
	if _, err := c.gh.Issues.DeleteComment(ctx, c.pr.Owner, c.pr.Repo, id); err != nil {
		return fmt.Errorf("deleting comment %d: %w", id, err)
	}

	return nil
}

func (c *githubClient) AddLabel(ctx context.Context, label string) error {
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, c.pr.Owner, c.pr.Repo, c.pr.Number, []string{label})
	if err != nil {
		return fmt.Errorf("adding label %q: %w", label, err)
	}

	return nil
}

func (c *githubClient) RemoveLabel(ctx context.Context, label string) error {
	_, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.pr.Owner, c.pr.Repo, c.pr.Number, label)
	if err == nil {
		return nil
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil &&
		ghErr.Response.StatusCode == http.StatusNotFound && isLabelNotFoundMsg(ghErr.Message) {
		return nil
	}

	return fmt.Errorf("removing label %q: %w", label, err)
}

func (c *githubClient) PRLink() string {
	return fmt.Sprintf("https://github.com/%s/%s/pull/%d", c.pr.Owner, c.pr.Repo, c.pr.Number)
}
