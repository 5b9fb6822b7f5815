package main

import (
	"context"
	"time"

	"github.com/opensourceways/robot-codearts-gate/codearts"
	"github.com/opensourceways/robot-codearts-gate/codehost"
	"github.com/opensourceways/robot-codearts-gate/metrics"
	"github.com/opensourceways/robot-codearts-gate/notify"
	"github.com/opensourceways/robot-codearts-gate/report"
	"github.com/opensourceways/robot-codearts-gate/retry"
	"github.com/opensourceways/robot-codearts-gate/storage"
)

const botName = "robot-codearts-gate"

type iPipeline interface {
	GetRunDetail(ctx context.Context, ref codearts.RunRef) (codearts.RunDetail, error)
	GetActualTaskID(ctx context.Context, ref codearts.RunRef, jobID, stepRunID string) (string, error)
	GetDefectStatistic(ctx context.Context, taskID string) (codearts.DefectStatistic, error)
	GetStepOutputs(ctx context.Context, ref codearts.RunRef, stepRunID string) (map[string]string, error)
	GetBuildLog(ctx context.Context, ref codearts.RunRef, jobID, stepRunID string) (string, error)
}

type iMailer interface {
	Send(ctx context.Context, mail notify.Mail) error
}

type iRecipients interface {
	Receivers(ctx context.Context, repo string) []string
}

// gateTask is the PR and pipeline run one invocation reports on.
type gateTask struct {
	owner        string
	repo         string
	pr           int
	ref          codearts.RunRef
	removeDetail bool
}

type robot struct {
	cfg  *botConfig
	task gateTask

	cli        codehost.Client
	pipeline   iPipeline
	uploader   storage.Uploader
	mailer     iMailer
	recipients iRecipients

	// optional
	metrics        *metrics.Gate
	pushgatewayURL string

	retry  retry.Policy
	local  *localState
	glyphs report.Glyphs
	now    func() time.Time
}

func newRobot(
	cfg *botConfig,
	task gateTask,
	cli codehost.Client,
	pipeline iPipeline,
	uploader storage.Uploader,
	mailer iMailer,
	recipients iRecipients,
) *robot {
	return &robot{
		cfg:        cfg,
		task:       task,
		cli:        cli,
		pipeline:   pipeline,
		uploader:   uploader,
		mailer:     mailer,
		recipients: recipients,
		retry:      cfg.retryPolicy(),
		local:      newLocalState(cfg.LogDir, task.repo, task.pr),
		glyphs:     report.DefaultGlyphs(),
		now:        time.Now,
	}
}

func (bot *robot) withMetrics(m *metrics.Gate, pushgatewayURL string) *robot {
	bot.metrics = m
	bot.pushgatewayURL = pushgatewayURL

	return bot
}
