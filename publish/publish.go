// Package publish releases a build artifact kept in OBS on Gitee.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	sdk "github.com/opensourceways/go-gitee/gitee"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/opensourceways/robot-codearts-gate/retry"
	"github.com/opensourceways/robot-codearts-gate/storage"
)

const DefaultBaseURL = "https://gitee.com/api"

type Release struct {
	TagName         string
	Name            string
	Body            string
	Prerelease      bool
	TargetCommitish string
}

// Client talks to the release API of Gitee.
type Client struct {
	base string
	hc   *http.Client
	ac   *sdk.APIClient
}

// NewClient authenticates every request sent through hc with token.
func NewClient(base, token string, hc *http.Client) *Client {
	if base == "" {
		base = DefaultBaseURL
	}

	c := *hc
	c.Transport = &oauth2.Transport{
		Base:   hc.Transport,
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	}

	conf := sdk.NewConfiguration()
	conf.BasePath = base
	conf.HTTPClient = &c

	return &Client{base: base, hc: &c, ac: sdk.NewAPIClient(conf)}
}

// CreateRelease returns the id of the new release.
func (c *Client) CreateRelease(ctx context.Context, owner, repo string, r Release) (int64, error) {
	v, resp, err := c.ac.RepositoriesApi.PostV5ReposOwnerRepoReleases(
		ctx, owner, repo,
		sdk.ReleaseCreateParam{
			TagName:         r.TagName,
			Name:            r.Name,
			Body:            r.Body,
			Prerelease:      r.Prerelease,
			TargetCommitish: r.TargetCommitish,
		},
	)
	if err != nil {
		return 0, statusErr(fmt.Errorf("create release %s, err:%s", r.TagName, sdkErr(err)), resp)
	}

	return int64(v.Id), nil
}

// UploadAttachment attaches the local file to the release.
func (c *Client) UploadAttachment(ctx context.Context, owner, repo string, releaseID int64, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/v5/repos/%s/%s/releases/%d/attach_files", c.base, owner, repo, releaseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	b, _ := io.ReadAll(resp.Body)

	return statusErr(
		fmt.Errorf("upload %s to release %d, status:%d, body:%s", localPath, releaseID, resp.StatusCode, b),
		resp,
	)
}

// statusErr stops retrying when gitee rejected the request itself.
func statusErr(err error, resp *http.Response) error {
	if resp != nil && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		return retry.Permanent(err)
	}
	return err
}

func sdkErr(err error) string {
	var v sdk.GenericSwaggerError
	if errors.As(err, &v) {
		return fmt.Sprintf("%s, msg:%q", v.Error(), v.Body())
	}
	return err.Error()
}

type Task struct {
	Owner string
	Repo  string

	// ObjectKey is the artifact in the bucket.
	ObjectKey string
	FileName  string
	LocalDir  string

	Release Release
}

func (t *Task) Validate() error {
	if t.Owner == "" || t.Repo == "" {
		return fmt.Errorf("missing owner or repo")
	}

	if t.ObjectKey == "" || t.FileName == "" {
		return fmt.Errorf("missing object key or file name")
	}

	if t.Release.TagName == "" {
		return fmt.Errorf("missing tag name")
	}

	return nil
}

type Publisher struct {
	storage storage.Downloader
	cli     *Client
	policy  retry.Policy
}

func NewPublisher(d storage.Downloader, cli *Client, p retry.Policy) *Publisher {
	return &Publisher{storage: d, cli: cli, policy: p}
}

// Publish downloads the artifact, creates the release and attaches the
// artifact to it. It returns the release id.
func (p *Publisher) Publish(ctx context.Context, t Task, log *logrus.Entry) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	policy := p.policy
	policy.Log = log

	localPath := filepath.Join(t.LocalDir, t.FileName)

	err := retry.Do(ctx, policy, "download_from_obs", func() error {
		return p.storage.Download(ctx, t.ObjectKey, localPath)
	})
	if err != nil {
		return 0, err
	}

	log.Infof("downloaded %s to %s", t.ObjectKey, localPath)

	id, err := retry.DoWithData(ctx, policy, "create_release", func() (int64, error) {
		return p.cli.CreateRelease(ctx, t.Owner, t.Repo, t.Release)
	})
	if err != nil {
		return 0, err
	}

	log.Infof("created release %d for tag %s", id, t.Release.TagName)

	err = retry.Do(ctx, policy, "upload_attach_file", func() error {
		return p.cli.UploadAttachment(ctx, t.Owner, t.Repo, id, localPath)
	})

	return id, err
}
