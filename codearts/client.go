// Package codearts talks to the CodeArts pipeline, build and code check
// services of Huawei Cloud.
package codearts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethgrid/pester"
)

// Endpoints are the service prefixes, without a trailing slash.
type Endpoints struct {
	Pipeline  string `json:"pipeline,omitempty"`
	CodeCheck string `json:"code_check,omitempty"`
	Build     string `json:"build,omitempty"`
}

func (e *Endpoints) SetDefault() {
	if e.Pipeline == "" {
		e.Pipeline = "https://cloudpipeline-ext.cn-north-4.myhuaweicloud.com"
	}
	if e.CodeCheck == "" {
		e.CodeCheck = "https://codecheck-ext.cn-north-4.myhuaweicloud.com"
	}
	if e.Build == "" {
		e.Build = "https://cloudbuild-ext.cn-north-4.myhuaweicloud.com"
	}
}

// HTTPDoer is satisfied by *http.Client and *pester.Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewHTTPClient returns the client used for every CodeArts call. It sends
// each request once; callers retry through the retry package.
func NewHTTPClient() HTTPDoer {
	c := pester.New()
	c.MaxRetries = 1
	c.KeepLog = true
	c.Timeout = 30 * time.Second

	return c
}

type Client struct {
	ep     Endpoints
	tokens TokenSource
	hc     HTTPDoer
}

func NewClient(ep Endpoints, ts TokenSource, hc HTTPDoer) *Client {
	ep.SetDefault()

	return &Client{ep: ep, tokens: ts, hc: hc}
}

func (c *Client) runURL(ref RunRef, suffix string) string {
	return fmt.Sprintf(
		"%s/v5/%s/api/pipelines/%s/pipeline-runs/%s%s",
		c.ep.Pipeline, ref.ProjectID, ref.PipelineID, ref.RunID, suffix,
	)
}

// GetRunDetail returns the status of every stage and job of the run.
func (c *Client) GetRunDetail(ctx context.Context, ref RunRef) (RunDetail, error) {
	u := fmt.Sprintf(
		"%s/v5/%s/api/pipelines/%s/pipeline-runs/detail?pipeline_run_id=%s",
		c.ep.Pipeline, ref.ProjectID, ref.PipelineID, url.QueryEscape(ref.RunID),
	)

	var v RunDetail
	err := c.getJSON(ctx, u, &v)

	return v, err
}

// GetActualTaskID resolves the task a pipeline job really ran from its
// jump link. The job id is returned when the link carries no task id.
func (c *Client) GetActualTaskID(ctx context.Context, ref RunRef, jobID, stepRunID string) (string, error) {
	u := c.runURL(ref, fmt.Sprintf("/jobs/%s/steps/%s/jump-link", jobID, stepRunID))

	var v jumpLinkResp
	if err := c.getJSON(ctx, u, &v); err != nil {
		return "", err
	}

	if id := taskIDFromJumpLink(v.JumpLink); id != "" {
		return id, nil
	}

	return jobID, nil
}

func taskIDFromJumpLink(link string) string {
	p := strings.Split(link, "/defects?")[0]
	items := strings.Split(p, "/")

	return items[len(items)-1]
}

func (c *Client) GetDefectStatistic(ctx context.Context, taskID string) (DefectStatistic, error) {
	u := fmt.Sprintf("%s/v2/tasks/%s/defects-statistic", c.ep.CodeCheck, taskID)

	var v DefectStatistic
	err := c.getJSON(ctx, u, &v)

	return v, err
}

// GetStepOutputs returns the outputs a step published, such as
// dailyBuildNumber.
func (c *Client) GetStepOutputs(ctx context.Context, ref RunRef, stepRunID string) (map[string]string, error) {
	u := c.runURL(ref, "/steps/outputs?step_run_ids="+url.QueryEscape(stepRunID))

	var v stepOutputsResp
	if err := c.getJSON(ctx, u, &v); err != nil {
		return nil, err
	}

	r := make(map[string]string)
	for i := range v.StepOutputs {
		for _, kv := range v.StepOutputs[i].OutputResult {
			r[kv.Key] = kv.StringValue()
		}
	}

	return r, nil
}

func (c *Client) GetBuildRecordID(ctx context.Context, jobID, buildNumber string) (string, error) {
	u := fmt.Sprintf("%s/v4/jobs/%s/%s/record-info", c.ep.Build, jobID, buildNumber)

	var v recordInfoResp
	if err := c.getJSON(ctx, u, &v); err != nil {
		return "", err
	}

	if v.Result.BuildRecordID == "" {
		return "", fmt.Errorf("no build record of job:%s, build:%s", jobID, buildNumber)
	}

	return v.Result.BuildRecordID, nil
}

// GetBuildLog downloads the log of the build task driven by a pipeline job.
func (c *Client) GetBuildLog(ctx context.Context, ref RunRef, jobID, stepRunID string) (string, error) {
	buildNumber, err := c.GetActualTaskID(ctx, ref, jobID, stepRunID)
	if err != nil {
		return "", err
	}

	recordID, err := c.GetBuildRecordID(ctx, jobID, buildNumber)
	if err != nil {
		return "", err
	}

	b, err := c.get(ctx, fmt.Sprintf("%s/v4/%s/download-log", c.ep.Build, recordID))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func (c *Client) getJSON(ctx context.Context, u string, v interface{}) error {
	b, err := c.get(ctx, u)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode response of %s, err:%w", u, err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-auth-token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u, Code: resp.StatusCode, Body: string(b)}
	}

	return b, nil
}

type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s, status:%d, body:%s", e.URL, e.Code, e.Body)
}
