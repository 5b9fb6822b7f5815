package main

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/opensourceways/robot-codearts-gate/codearts"
	"github.com/opensourceways/robot-codearts-gate/community"
	"github.com/opensourceways/robot-codearts-gate/retry"
	"github.com/opensourceways/robot-codearts-gate/storage"
)

type botConfig struct {
	// IAMEndpoint is the identity v3 endpoint tokens are requested from.
	IAMEndpoint string `json:"iam_endpoint,omitempty"`
	// Region scopes the token, e.g. cn-north-4.
	Region string `json:"region,omitempty"`

	Endpoints codearts.Endpoints `json:"endpoints,omitempty"`

	// ConsolePrefix is the web prefix of pipeline pages.
	ConsolePrefix string `json:"console_prefix,omitempty"`

	OBS    storage.Config `json:"obs,omitempty"`
	LogDir string         `json:"log_dir,omitempty"`

	// RecipientsURL points at the raw pipeline-config.yml holding the
	// mail receivers of each repository.
	RecipientsURL string `json:"recipients_url,omitempty"`
	// Distribution always receives the result mail.
	Distribution []string `json:"distribution,omitempty"`

	CheckNames map[string][]string `json:"check_names,omitempty"`

	// TerminalJob stops the report; it and later jobs are not reported.
	TerminalJob        string   `json:"terminal_job,omitempty"`
	CodeCheckKeywords  []string `json:"code_check_keywords,omitempty"`
	CoverageKeywords   []string `json:"coverage_keywords,omitempty"`
	CoverageCheckName  string   `json:"coverage_check_name,omitempty"`
	CodeCheckRetryText string   `json:"code_check_retry_text,omitempty"`
	// PackageOutputKey is the step output holding the package link.
	PackageOutputKey string `json:"package_output_key,omitempty"`

	GatePassLabel    string `json:"gate_pass_label,omitempty"`
	PushedLabel      string `json:"pushed_label,omitempty"`
	TriggeredMarker  string `json:"triggered_marker,omitempty"`
	TriggeredComment string `json:"triggered_comment,omitempty"`
	StatusMarker     string `json:"status_marker,omitempty"`

	// PollInterval is in seconds.
	PollInterval int `json:"poll_interval,omitempty"`
	RetryTimes   int `json:"retry_times,omitempty"`
	// RetryDelay is in seconds.
	RetryDelay int `json:"retry_delay,omitempty"`

	checks *community.CheckNames `json:"-"`
}

func (c *botConfig) SetDefault() {
	if c.IAMEndpoint == "" {
		c.IAMEndpoint = "https://iam.cn-north-4.myhuaweicloud.com/v3/"
	}

	if c.Region == "" {
		c.Region = "cn-north-4"
	}

	c.Endpoints.SetDefault()

	if c.ConsolePrefix == "" {
		c.ConsolePrefix = "https://devcloud.cn-north-4.huaweicloud.com/cicd/project"
	}

	c.OBS.SetDefault()

	if c.LogDir == "" {
		c.LogDir = "/home/logs"
	}

	if c.RecipientsURL == "" {
		c.RecipientsURL = "https://raw.githubusercontent.com/opensourceways/codearts-ci-config/main/pipeline-config.yml"
	}

	if len(c.CheckNames) == 0 {
		c.CheckNames = community.DefaultCheckNames().Items
	}

	if c.TerminalJob == "" {
		c.TerminalJob = "统一评论"
	}

	if len(c.CodeCheckKeywords) == 0 {
		c.CodeCheckKeywords = []string{"代码检查", "code_check"}
	}

	if len(c.CoverageKeywords) == 0 {
		c.CoverageKeywords = []string{"覆盖率", "coverage"}
	}

	if c.CoverageCheckName == "" {
		c.CoverageCheckName = "DT覆盖率"
	}

	if c.CodeCheckRetryText == "" {
		c.CodeCheckRetryText = "任务失败, 请重试"
	}

	if c.GatePassLabel == "" {
		c.GatePassLabel = "gate_check_pass"
	}

	if c.PushedLabel == "" {
		c.PushedLabel = "gate_check_pushed"
	}

	if c.TriggeredMarker == "" {
		c.TriggeredMarker = "<!-- codearts-gate:triggered -->"
	}

	if c.TriggeredComment == "" {
		c.TriggeredComment = "门禁检查已触发, 请等待检查结果"
	}

	if c.StatusMarker == "" {
		c.StatusMarker = "<!-- codearts-gate:status -->"
	}

	if c.PollInterval <= 0 {
		c.PollInterval = 60
	}

	if c.RetryTimes <= 0 {
		c.RetryTimes = retry.DefaultMaxAttempts
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = int(retry.DefaultDelay / time.Second)
	}
}

func (c *botConfig) Validate() error {
	if c.TriggeredMarker == c.StatusMarker {
		return fmt.Errorf("triggered_marker and status_marker must differ")
	}

	checks := &community.CheckNames{Items: c.CheckNames}
	if err := checks.Validate(); err != nil {
		return err
	}
	c.checks = checks

	return nil
}

func (c *botConfig) pollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c *botConfig) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryTimes,
		Delay:       time.Duration(c.RetryDelay) * time.Second,
	}
}

// loadConfig reads the optional config file; missing fields get defaults.
func loadConfig(path string) (*botConfig, error) {
	cfg := new(botConfig)

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("decode config file:%s, err:%s", path, err.Error())
		}
	}

	cfg.SetDefault()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
