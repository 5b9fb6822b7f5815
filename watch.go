package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opensourceways/robot-codearts-gate/codearts"
	"github.com/opensourceways/robot-codearts-gate/codehost"
	"github.com/opensourceways/robot-codearts-gate/report"
)

// watch reports the pipeline run every poll interval until it is no
// longer running, then sends the mail and labels the PR.
func (bot *robot) watch(ctx context.Context, log *logrus.Entry) error {
	if err := bot.prepare(ctx, log); err != nil {
		return err
	}

	log = log.WithField("run", bot.task.ref.RunID)

	var r gateResult
	var html string

	for {
		if isCancelled(ctx) {
			return ctx.Err()
		}

		v, err := bot.collect(ctx, log)
		if err != nil {
			return err
		}
		r = v

		html = r.table.Render(bot.glyphs)
		if err := bot.replaceStatusComment(ctx, html); err != nil {
			return err
		}

		if bot.metrics != nil {
			bot.metrics.IncCycle()
		}

		if !r.running {
			break
		}

		log.Infof("pipeline is running, check again after %s", bot.cfg.pollInterval())

		if !sleep(ctx, bot.cfg.pollInterval()) {
			return ctx.Err()
		}
	}

	return bot.finish(ctx, r, html, log)
}

// prepare resolves the run when it was not given, then announces that
// the gate check started.
func (bot *robot) prepare(ctx context.Context, log *logrus.Entry) error {
	comments, err := bot.cli.ListComments(ctx)
	if err != nil {
		return err
	}

	if bot.task.ref.IsEmpty() {
		ref, ok := findRunRef(comments)
		if !ok {
			return fmt.Errorf("no pipeline run is given or found in the comments of pr:%d", bot.task.pr)
		}

		log.Infof("found pipeline run %s from comments", ref.RunID)
		bot.task.ref = ref
	}

	for _, c := range codehost.CommentsContaining(comments, bot.cfg.TriggeredMarker) {
		if err := bot.cli.DeleteComment(ctx, c.ID); err != nil {
			return err
		}
	}

	body := fmt.Sprintf(
		"%s\n%s<br/>%s: %s",
		bot.cfg.TriggeredMarker, bot.cfg.TriggeredComment,
		report.PipelineLinkName, bot.task.ref.DetailLink(bot.cfg.ConsolePrefix),
	)
	if err := bot.cli.AddComment(ctx, body); err != nil {
		return err
	}

	return bot.cli.RemoveLabel(ctx, bot.cfg.PushedLabel)
}

// replaceStatusComment keeps only one status comment on the PR.
func (bot *robot) replaceStatusComment(ctx context.Context, html string) error {
	comments, err := bot.cli.ListComments(ctx)
	if err != nil {
		return err
	}

	for _, c := range codehost.CommentsContaining(comments, bot.cfg.StatusMarker) {
		if err := bot.cli.DeleteComment(ctx, c.ID); err != nil {
			return err
		}
	}

	return bot.cli.AddComment(ctx, bot.cfg.StatusMarker+"\n"+html)
}

// findRunRef looks for the newest comment carrying a pipeline link.
func findRunRef(comments []codehost.Comment) (codearts.RunRef, bool) {
	for i := len(comments) - 1; i >= 0; i-- {
		if ref, ok := codearts.ParseRunRef(comments[i].Body); ok {
			return ref, true
		}
	}
	return codearts.RunRef{}, false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
