package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opensourceways/robot-codearts-gate/codearts"
	"github.com/opensourceways/robot-codearts-gate/notify"
	"github.com/opensourceways/robot-codearts-gate/report"
	"github.com/opensourceways/robot-codearts-gate/retry"
)

type gateResult struct {
	table   report.Table
	passed  bool
	running bool
}

// runOnce reports the pipeline run once, whatever its state.
func (bot *robot) runOnce(ctx context.Context, log *logrus.Entry) error {
	r, err := bot.collect(ctx, log)
	if err != nil {
		return err
	}

	html := r.table.Render(bot.glyphs)
	if err := bot.cli.AddComment(ctx, html); err != nil {
		return err
	}

	return bot.finish(ctx, r, html, log)
}

func (bot *robot) collect(ctx context.Context, log *logrus.Entry) (gateResult, error) {
	p := bot.retryPolicy(log)

	detail, err := retry.DoWithData(ctx, p, "get_pipeline_detail", func() (codearts.RunDetail, error) {
		return bot.pipeline.GetRunDetail(ctx, bot.task.ref)
	})
	if err != nil {
		return gateResult{}, err
	}

	passed := true
	var results []report.JobResult

	jobs := detail.GateJobs()
	for i := range jobs {
		job := &jobs[i]
		status := report.Status(job.Status)

		log.Infof("job name: %s, status: %s", job.Name, job.Status)

		if status == report.StatusUnselected {
			continue
		}

		if job.Name == bot.cfg.TerminalJob {
			break
		}

		item, ok, err := bot.checkJob(ctx, job, log)
		if err != nil {
			return gateResult{}, err
		}

		if !ok {
			passed = false
		}

		results = append(results, item)
	}

	return gateResult{
		table: report.Table{
			Results:      results,
			PipelineLink: bot.task.ref.DetailLink(bot.cfg.ConsolePrefix),
			RemoveDetail: bot.task.removeDetail,
		},
		passed:  passed,
		running: detail.IsRunning(),
	}, nil
}

// checkJob builds the row of one job. A job that finished is handled
// once; its row is reused by later poll cycles while CodeArts reports the
// same state for it.
func (bot *robot) checkJob(ctx context.Context, job *codearts.Job, log *logrus.Entry) (report.JobResult, bool, error) {
	if v, ok := bot.local.getFinished(job.Name); ok && v.status == job.Status {
		return v.item, v.ok, nil
	}

	status := report.Status(job.Status)
	canonical := bot.cfg.checks.Canonical(job.Name)

	item := report.JobResult{
		CheckName: canonical,
		Status:    status,
		LogLink:   bot.cfg.OBS.PublicURL(bot.local.objectKey(job.Name)),
	}

	if !status.Finished() {
		item.LogLink = ""
		return item, false, nil
	}

	ok := status == report.StatusCompleted
	l := log.WithField("job", job.Name)

	isCodeCheck := matchAny(bot.cfg.CodeCheckKeywords, job.Name, canonical)

	switch {
	case isCodeCheck && status == report.StatusCompleted:
		taskID, s, err := bot.fetchCodeCheck(ctx, job, l)
		if err != nil {
			return item, false, err
		}

		item.Detail = fmt.Sprintf("致命: %d, 严重: %d", s.Critical, s.Major)
		if s.Blocking() > 0 {
			ok = false
			item.Status = report.StatusFailed
		}

		if err := bot.handleCodeCheck(ctx, job.Name, taskID, s, l); err != nil {
			l.Errorf("handle code check page, err:%s", err.Error())
			item.LogLink = ""
		}

	case isCodeCheck:
		item.LogLink = bot.cfg.CodeCheckRetryText

	default:
		if err := bot.handleBuildLog(ctx, job, l); err != nil {
			l.Errorf("handle build log, err:%s", err.Error())
			item.LogLink = ""
		}

		item.PackageLink = bot.packageLink(ctx, job, l)
	}

	if matchAny(bot.cfg.CoverageKeywords, job.Name, canonical) {
		if rate, found := bot.local.coverage(job.Name); found {
			item.CheckName = bot.cfg.CoverageCheckName
			item.Display = rate
		}
	}

	bot.local.setFinished(job.Name, jobOutcome{item: item, ok: ok, status: job.Status})

	return item, ok, nil
}

func (bot *robot) retryPolicy(log *logrus.Entry) retry.Policy {
	p := bot.retry
	p.Log = log

	return p
}

// fetchCodeCheck returns the code check task of job and its defects.
func (bot *robot) fetchCodeCheck(ctx context.Context, job *codearts.Job, log *logrus.Entry) (string, report.Severity, error) {
	p := bot.retryPolicy(log)
	ref := bot.task.ref

	taskID, err := retry.DoWithData(ctx, p, "get_actual_task_id", func() (string, error) {
		return bot.pipeline.GetActualTaskID(ctx, ref, job.JobID(), job.StepRunID())
	})
	if err != nil {
		return "", report.Severity{}, err
	}

	stat, err := retry.DoWithData(ctx, p, "get_defect_statistic", func() (codearts.DefectStatistic, error) {
		return bot.pipeline.GetDefectStatistic(ctx, taskID)
	})
	if err != nil {
		return "", report.Severity{}, err
	}

	return taskID, report.Severity(stat.Severity), nil
}

func (bot *robot) handleCodeCheck(ctx context.Context, job, taskID string, s report.Severity, log *logrus.Entry) error {
	page, err := report.CodeCheckPage(s, bot.codeCheckTaskLink(taskID))
	if err != nil {
		return err
	}

	return bot.publish(ctx, job, page, log)
}

func (bot *robot) codeCheckTaskLink(taskID string) string {
	prefix := strings.Replace(bot.cfg.ConsolePrefix, "cicd", "codechecknew", 1)

	return fmt.Sprintf("%s/%s/codecheck/task/%s/defects", prefix, bot.task.ref.ProjectID, taskID)
}

func (bot *robot) handleBuildLog(ctx context.Context, job *codearts.Job, log *logrus.Entry) error {
	v, err := retry.DoWithData(ctx, bot.retryPolicy(log), "get_build_log", func() (string, error) {
		return bot.pipeline.GetBuildLog(ctx, bot.task.ref, job.JobID(), job.StepRunID())
	})
	if err != nil {
		return err
	}

	page, err := report.BuildLogPage(job.Name, v)
	if err != nil {
		return err
	}

	return bot.publish(ctx, job.Name, page, log)
}

func (bot *robot) packageLink(ctx context.Context, job *codearts.Job, log *logrus.Entry) string {
	if bot.cfg.PackageOutputKey == "" {
		return ""
	}

	outputs, err := retry.DoWithData(ctx, bot.retryPolicy(log), "get_step_outputs", func() (map[string]string, error) {
		return bot.pipeline.GetStepOutputs(ctx, bot.task.ref, job.StepRunID())
	})
	if err != nil {
		log.Errorf("get step outputs, err:%s", err.Error())
		return ""
	}

	return outputs[bot.cfg.PackageOutputKey]
}

// publish saves the log page of job and uploads it to the bucket.
func (bot *robot) publish(ctx context.Context, job, page string, log *logrus.Entry) error {
	p, err := bot.local.save(job, page)
	if err != nil {
		return err
	}

	key := bot.local.objectKey(job)
	log.Infof("upload %s to %s", p, key)

	return bot.uploader.Upload(ctx, p, key)
}

// finish mails the result and labels the PR when the gate passed.
func (bot *robot) finish(ctx context.Context, r gateResult, html string, log *logrus.Entry) error {
	t := &bot.task

	if receivers := bot.recipients.Receivers(ctx, t.repo); len(receivers) > 0 {
		log.Info("send gate check result by email")

		p := bot.retryPolicy(log)

		mail := notify.Mail{
			Subject:   notify.GateSubject(t.repo),
			HTML:      notify.GateBody(t.owner, t.repo, html, bot.cli.PRLink(), bot.now()),
			To:        receivers,
			AttachDir: bot.local.dir,
		}

		err := retry.Do(ctx, p, "send_mail", func() error {
			return bot.mailer.Send(ctx, mail)
		})
		if err != nil {
			return err
		}
	}

	if r.passed {
		if err := bot.cli.AddLabel(ctx, bot.cfg.GatePassLabel); err != nil {
			return err
		}
	}

	bot.pushMetrics(ctx, r, log)

	return nil
}

func (bot *robot) pushMetrics(ctx context.Context, r gateResult, log *logrus.Entry) {
	if bot.metrics == nil {
		return
	}

	for i := range r.table.Results {
		item := &r.table.Results[i]
		bot.metrics.ObserveCheck(item.CheckName, !item.Failed())
	}
	bot.metrics.ObserveGate(r.passed)

	if bot.pushgatewayURL == "" {
		return
	}

	if err := bot.metrics.Push(ctx, bot.pushgatewayURL, bot.task.repo, bot.task.pr); err != nil {
		log.Errorf("push metrics, err:%s", err.Error())
	}
}

func matchAny(keywords []string, names ...string) bool {
	for _, k := range keywords {
		for _, n := range names {
			if k != "" && strings.Contains(n, k) {
				return true
			}
		}
	}
	return false
}
