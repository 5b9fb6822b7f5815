package codehost

import (
	"context"
	"fmt"

	sdk "github.com/opensourceways/go-gitee/gitee"
)

// giteeAPI is the part of giteeclient.Client the robot needs.
type giteeAPI interface {
	CreatePRComment(org, repo string, number int32, comment string) error
	ListPRComments(org, repo string, number int32) ([]sdk.PullRequestComments, error)
	DeletePRComment(org, repo string, ID int32) error
	AddPRLabel(org, repo string, number int32, label string) error
	RemovePRLabel(org, repo string, number int32, label string) error
}

type giteeClient struct {
	cli giteeAPI
	pr  PR
}

func NewGiteeClient(cli giteeAPI, pr PR) Client {
	return &giteeClient{cli: cli, pr: pr}
}

func (c *giteeClient) number() int32 {
	return int32(c.pr.Number)
}

func (c *giteeClient) AddComment(ctx context.Context, body string) error {
	return c.cli.CreatePRComment(c.pr.Owner, c.pr.Repo, c.number(), body)
}

func (c *giteeClient) ListComments(ctx context.Context) ([]Comment, error) {
	items, err := c.cli.ListPRComments(c.pr.Owner, c.pr.Repo, c.number())
	if err != nil {
		return nil, err
	}

	r := make([]Comment, 0, len(items))
	for i := range items {
		r = append(r, Comment{ID: int64(items[i].Id), Body: items[i].Body})
	}

	return r, nil
}

func (c *giteeClient) DeleteComment(ctx context.Context, id int64) error {
	return c.cli.DeletePRComment(c.pr.Owner, c.pr.Repo, int32(id))
}

func (c *giteeClient) AddLabel(ctx context.Context, label string) error {
	return c.cli.AddPRLabel(c.pr.Owner, c.pr.Repo, c.number(), label)
}

func (c *giteeClient) RemoveLabel(ctx context.Context, label string) error {
	err := c.cli.RemovePRLabel(c.pr.Owner, c.pr.Repo, c.number(), label)
	if err != nil && isLabelNotFoundMsg(err.Error()) {
		return nil
	}

	return err
}

func (c *giteeClient) PRLink() string {
	return fmt.Sprintf("https://gitee.com/%s/%s/pulls/%d", c.pr.Owner, c.pr.Repo, c.pr.Number)
}
