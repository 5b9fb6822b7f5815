package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opensourceways/robot-codearts-gate/codearts"
	"github.com/opensourceways/robot-codearts-gate/community"
)

// RecipientLoader reads the mail receivers of a repository from the
// pipeline config file published in a repository.
type RecipientLoader struct {
	url   string
	token string
	hc    codearts.HTTPDoer
	log   *logrus.Entry
}

func NewRecipientLoader(url, token string, hc codearts.HTTPDoer, log *logrus.Entry) *RecipientLoader {
	return &RecipientLoader{url: url, token: token, hc: hc, log: log}
}

// Receivers returns nil when the file can't be loaded or has no entry
// for repo.
func (l *RecipientLoader) Receivers(ctx context.Context, repo string) []string {
	if l.url == "" {
		return nil
	}

	v, err := l.load(ctx)
	if err != nil {
		l.log.Errorf("load mail receivers from %s, err:%s", l.url, err.Error())
		return nil
	}

	return v.GetReceivers(repo)
}

func (l *RecipientLoader) load(ctx context.Context) (community.RepoPipelines, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}
	if l.token != "" {
		req.Header.Set("Authorization", "token "+l.token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3.raw")

	resp, err := l.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status:%d, body:%s", resp.StatusCode, b)
	}

	var v community.RepoPipelines
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	return v, nil
}
