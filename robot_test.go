package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensourceways/robot-codearts-gate/codearts"
	"github.com/opensourceways/robot-codearts-gate/codehost"
	"github.com/opensourceways/robot-codearts-gate/notify"
	"github.com/opensourceways/robot-codearts-gate/report"
)

type fakeHost struct {
	comments []codehost.Comment
	nextID   int64
	deleted  []int64
	labels   []string
	removed  []string
}

func (f *fakeHost) AddComment(ctx context.Context, body string) error {
	f.nextID++
	f.comments = append(f.comments, codehost.Comment{ID: f.nextID, Body: body})
	return nil
}

func (f *fakeHost) ListComments(ctx context.Context) ([]codehost.Comment, error) {
	return append([]codehost.Comment(nil), f.comments...), nil
}

func (f *fakeHost) DeleteComment(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	for i := range f.comments {
		if f.comments[i].ID == id {
			f.comments = append(f.comments[:i], f.comments[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeHost) AddLabel(ctx context.Context, label string) error {
	f.labels = append(f.labels, label)
	return nil
}

func (f *fakeHost) RemoveLabel(ctx context.Context, label string) error {
	f.removed = append(f.removed, label)
	return nil
}

func (f *fakeHost) PRLink() string {
	return "https://gitee.com/ascend/mindstudio/pulls/7"
}

type fakePipeline struct {
	details  []codearts.RunDetail
	calls    int
	logs     map[string]string
	logErr   error
	severity codearts.DefectStatistic
	outputs  map[string]string

	// the first taskIDErrs calls of GetActualTaskID fail
	taskIDErrs  int
	taskIDCalls int

	logFetched []string
}

func (f *fakePipeline) GetRunDetail(ctx context.Context, ref codearts.RunRef) (codearts.RunDetail, error) {
	i := f.calls
	if i >= len(f.details) {
		i = len(f.details) - 1
	}
	f.calls++

	return f.details[i], nil
}

func (f *fakePipeline) GetActualTaskID(ctx context.Context, ref codearts.RunRef, jobID, stepRunID string) (string, error) {
	f.taskIDCalls++
	if f.taskIDCalls <= f.taskIDErrs {
		return "", errors.New("gateway timeout")
	}
	return "task-" + jobID, nil
}

func (f *fakePipeline) GetDefectStatistic(ctx context.Context, taskID string) (codearts.DefectStatistic, error) {
	return f.severity, nil
}

func (f *fakePipeline) GetStepOutputs(ctx context.Context, ref codearts.RunRef, stepRunID string) (map[string]string, error) {
	return f.outputs, nil
}

func (f *fakePipeline) GetBuildLog(ctx context.Context, ref codearts.RunRef, jobID, stepRunID string) (string, error) {
	f.logFetched = append(f.logFetched, jobID)
	if f.logErr != nil {
		return "", f.logErr
	}
	return f.logs[jobID], nil
}

type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, key string) error {
	f.keys = append(f.keys, key)
	return f.err
}

type fakeMailer struct {
	sent []notify.Mail
}

func (f *fakeMailer) Send(ctx context.Context, mail notify.Mail) error {
	f.sent = append(f.sent, mail)
	return nil
}

type fakeRecipients []string

func (f fakeRecipients) Receivers(ctx context.Context, repo string) []string {
	return f
}

type testBot struct {
	*robot

	host     *fakeHost
	pipeline *fakePipeline
	uploader *fakeUploader
	mailer   *fakeMailer
}

var testRef = codearts.RunRef{ProjectID: "p1", PipelineID: "pl1", RunID: "r1"}

func newTestBot(t *testing.T, pipeline *fakePipeline, receivers ...string) *testBot {
	cfg := new(botConfig)
	cfg.LogDir = t.TempDir()
	cfg.PollInterval = 1
	cfg.RetryDelay = 1
	cfg.SetDefault()
	require.NoError(t, cfg.Validate())

	tb := &testBot{
		host:     &fakeHost{},
		pipeline: pipeline,
		uploader: &fakeUploader{},
		mailer:   &fakeMailer{},
	}

	tb.robot = newRobot(
		cfg,
		gateTask{owner: "ascend", repo: "mindstudio", pr: 7, ref: testRef},
		tb.host, tb.pipeline, tb.uploader, tb.mailer, fakeRecipients(receivers),
	)
	tb.robot.retry.Delay = time.Millisecond
	tb.robot.now = func() time.Time {
		return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	}

	return tb
}

func job(id, name string, status report.Status) codearts.Job {
	return codearts.Job{
		ID:     id,
		Name:   name,
		Status: string(status),
		Steps: []codearts.Step{{
			ID:     "step-" + id,
			Inputs: []codearts.KeyValue{{Key: "jobId", Value: id}},
		}},
	}
}

func detail(status string, jobs ...codearts.Job) codearts.RunDetail {
	return codearts.RunDetail{
		Status: status,
		Stages: []codearts.Stage{{Name: "gate", Jobs: jobs}},
	}
}

func testLog() *logrus.Entry {
	return logrus.WithField("test", true)
}

func TestRunOnceSkipsUnselectedAndFailsGate(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("FAILED",
			job("j1", "Build构建", report.StatusCompleted),
			job("j2", "CodeCheck代码检查", report.StatusFailed),
			job("j3", "CodeSCA", report.StatusUnselected),
		)},
		logs: map[string]string{"j1": "build ok"},
	}
	bot := newTestBot(t, p, "dev@example.com")

	require.NoError(t, bot.runOnce(context.Background(), testLog()))

	require.Len(t, bot.host.comments, 1)
	html := bot.host.comments[0].Body

	// header, two jobs and the pipeline link
	assert.Equal(t, 4, strings.Count(html, "<tr>"))
	assert.Contains(t, html, "<td>build</td>")
	assert.Contains(t, html, "<td>code_check</td>")
	assert.NotContains(t, html, "<td>sca</td>")
	assert.Contains(t, html, bot.cfg.CodeCheckRetryText)
	assert.Contains(t, html, testRef.DetailLink(bot.cfg.ConsolePrefix))

	assert.Empty(t, bot.host.labels)
	assert.Equal(t, []string{"log/mindstudio/7/7_Build构建.html"}, bot.uploader.keys)
	assert.Equal(t, []string{"j1"}, p.logFetched)

	require.Len(t, bot.mailer.sent, 1)
	mail := bot.mailer.sent[0]
	assert.Equal(t, "mindstudio门禁检查结果通知", mail.Subject)
	assert.Equal(t, []string{"dev@example.com"}, mail.To)
	assert.Equal(t, bot.local.dir, mail.AttachDir)
	assert.Contains(t, mail.HTML, html)
}

func TestRunOnceStopsAtTerminalJob(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "Build构建", report.StatusCompleted),
			job("j2", "统一评论", report.StatusFailed),
			job("j3", "Build_ARM", report.StatusFailed),
		)},
	}
	bot := newTestBot(t, p)

	require.NoError(t, bot.runOnce(context.Background(), testLog()))

	html := bot.host.comments[0].Body
	assert.Equal(t, 3, strings.Count(html, "<tr>"))
	assert.NotContains(t, html, "build_arm")

	assert.Equal(t, []string{bot.cfg.GatePassLabel}, bot.host.labels)
	assert.Empty(t, bot.mailer.sent)
}

func TestCodeCheckWithBlockingDefectsFails(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "CodeCheck代码检查", report.StatusCompleted),
		)},
		severity: codearts.DefectStatistic{Severity: codearts.DefectSeverity{Critical: 1, Major: 2, Minor: 5}},
	}
	bot := newTestBot(t, p)

	r, err := bot.collect(context.Background(), testLog())
	require.NoError(t, err)

	assert.False(t, r.passed)
	require.Len(t, r.table.Results, 1)

	item := r.table.Results[0]
	assert.Equal(t, report.StatusFailed, item.Status)
	assert.Equal(t, "致命: 1, 严重: 2", item.Detail)
	assert.Equal(t, bot.cfg.OBS.PublicURL("log/mindstudio/7/7_CodeCheck代码检查.html"), item.LogLink)
	assert.Equal(t, []string{"log/mindstudio/7/7_CodeCheck代码检查.html"}, bot.uploader.keys)
}

func TestCodeCheckFetchIsRetried(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "CodeCheck代码检查", report.StatusCompleted),
		)},
		taskIDErrs: 1,
	}
	bot := newTestBot(t, p)

	r, err := bot.collect(context.Background(), testLog())
	require.NoError(t, err)

	assert.True(t, r.passed)
	assert.Equal(t, 2, p.taskIDCalls)
	assert.Equal(t, "致命: 0, 严重: 0", r.table.Results[0].Detail)
}

func TestCodeCheckFetchGivesUp(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "CodeCheck代码检查", report.StatusCompleted),
		)},
		taskIDErrs: 10,
	}
	bot := newTestBot(t, p)

	assert.Error(t, bot.runOnce(context.Background(), testLog()))
	assert.Equal(t, bot.cfg.RetryTimes, p.taskIDCalls)
	assert.Empty(t, bot.host.comments)
}

func TestCodeCheckUploadFailureKeepsRow(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "CodeCheck代码检查", report.StatusCompleted),
		)},
		severity: codearts.DefectStatistic{Severity: codearts.DefectSeverity{Critical: 1, Major: 2}},
	}
	bot := newTestBot(t, p)
	bot.uploader.err = errors.New("bucket unavailable")

	require.NoError(t, bot.runOnce(context.Background(), testLog()))

	require.Len(t, bot.host.comments, 1)
	html := bot.host.comments[0].Body
	assert.Contains(t, html, "致命: 1, 严重: 2")
	assert.NotContains(t, html, bot.cfg.OBS.PublicURL("log/mindstudio/7/7_CodeCheck代码检查.html"))
	assert.Empty(t, bot.host.labels)

	v, ok := bot.local.getFinished("CodeCheck代码检查")
	require.True(t, ok)
	assert.Equal(t, report.StatusFailed, v.item.Status)
	assert.Equal(t, "", v.item.LogLink)
}

func TestUnfinishedJobsArePending(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("RUNNING",
			job("j1", "CodeCheck代码检查", report.Status("QUEUED")),
			job("j2", "Build构建", report.Status("INIT")),
		)},
	}
	bot := newTestBot(t, p)

	r, err := bot.collect(context.Background(), testLog())
	require.NoError(t, err)

	assert.False(t, r.passed)
	assert.True(t, r.running)
	require.Len(t, r.table.Results, 2)
	for _, item := range r.table.Results {
		assert.Equal(t, "", item.LogLink)
	}

	assert.Zero(t, p.taskIDCalls)
	assert.Empty(t, p.logFetched)
	assert.Empty(t, bot.uploader.keys)

	_, ok := bot.local.getFinished("Build构建")
	assert.False(t, ok)
}

func TestCodeCheckTaskLink(t *testing.T) {
	bot := newTestBot(t, &fakePipeline{})

	assert.Equal(
		t,
		"https://devcloud.cn-north-4.huaweicloud.com/codechecknew/project/p1/codecheck/task/t9/defects",
		bot.codeCheckTaskLink("t9"),
	)
}

func TestCoverageJobShowsRate(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "coverage", report.StatusCompleted),
		)},
		logs: map[string]string{"j1": "running tests\nCOVERAGE=87.65\ndone"},
	}
	bot := newTestBot(t, p)

	r, err := bot.collect(context.Background(), testLog())
	require.NoError(t, err)

	require.Len(t, r.table.Results, 1)
	assert.Equal(t, bot.cfg.CoverageCheckName, r.table.Results[0].CheckName)
	assert.Equal(t, "87.6%", r.table.Results[0].Display)
	assert.True(t, r.passed)
}

func TestBuildLogFailureLeavesEmptyLogCell(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "Build构建", report.StatusCompleted),
		)},
		logErr: errors.New("record not found"),
	}
	bot := newTestBot(t, p)

	r, err := bot.collect(context.Background(), testLog())
	require.NoError(t, err)

	assert.Equal(t, "", r.table.Results[0].LogLink)
	assert.True(t, r.passed)
	assert.Empty(t, bot.uploader.keys)
}

func TestPackageLinkFromStepOutputs(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED",
			job("j1", "Build构建", report.StatusCompleted),
		)},
		outputs: map[string]string{"package_url": "https://example.com/pkg.tar.gz"},
	}
	bot := newTestBot(t, p)
	bot.cfg.PackageOutputKey = "package_url"

	require.NoError(t, bot.runOnce(context.Background(), testLog()))

	assert.Contains(t, bot.host.comments[0].Body, `<a href="https://example.com/pkg.tar.gz">下载</a>`)
}

func TestWatchPollsUntilRunFinishes(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{
			detail("RUNNING",
				job("j1", "Build构建", report.StatusCompleted),
				job("j2", "Build_ARM", report.StatusRunning),
			),
			detail("COMPLETED",
				job("j1", "Build构建", report.StatusCompleted),
				job("j2", "Build_ARM", report.StatusCompleted),
			),
		},
	}
	bot := newTestBot(t, p, "dev@example.com")
	bot.host.comments = []codehost.Comment{{ID: 100, Body: bot.cfg.TriggeredMarker + "\nold"}}
	bot.host.nextID = 100

	require.NoError(t, bot.watch(context.Background(), testLog()))

	assert.Equal(t, 2, p.calls)
	// the first build log is uploaded once although reported twice
	assert.Equal(t, []string{"j1", "j2"}, p.logFetched)
	assert.Equal(t, []string{bot.cfg.PushedLabel}, bot.host.removed)
	assert.Equal(t, []string{bot.cfg.GatePassLabel}, bot.host.labels)
	assert.Len(t, bot.mailer.sent, 1)

	// one triggered comment and one status comment remain
	require.Len(t, bot.host.comments, 2)
	assert.Contains(t, bot.host.comments[0].Body, bot.cfg.TriggeredComment)
	assert.NotContains(t, bot.host.comments[0].Body, "old")
	assert.True(t, strings.HasPrefix(bot.host.comments[1].Body, bot.cfg.StatusMarker))
	assert.NotContains(t, bot.host.comments[1].Body, "&#128346;")
}

func TestWatchUploadsBlockingCodeCheckOnce(t *testing.T) {
	running := detail("RUNNING",
		job("j1", "CodeCheck代码检查", report.StatusCompleted),
		job("j2", "Build_ARM", report.StatusRunning),
	)
	p := &fakePipeline{
		details: []codearts.RunDetail{
			running,
			running,
			detail("COMPLETED",
				job("j1", "CodeCheck代码检查", report.StatusCompleted),
				job("j2", "Build_ARM", report.StatusCompleted),
			),
		},
		severity: codearts.DefectStatistic{Severity: codearts.DefectSeverity{Critical: 1}},
	}
	bot := newTestBot(t, p)

	require.NoError(t, bot.watch(context.Background(), testLog()))

	assert.Equal(t, 3, p.calls)
	assert.Equal(t, 1, p.taskIDCalls)
	assert.Equal(t, []string{
		"log/mindstudio/7/7_CodeCheck代码检查.html",
		"log/mindstudio/7/7_Build_ARM.html",
	}, bot.uploader.keys)

	b, err := os.ReadFile(bot.local.filePath("CodeCheck代码检查"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "<!DOCTYPE html>"))

	assert.Empty(t, bot.host.labels)
}

func TestWatchFindsRunFromComments(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("COMPLETED")},
	}
	bot := newTestBot(t, p)
	bot.task.ref = codearts.RunRef{}
	bot.host.comments = []codehost.Comment{
		{ID: 1, Body: "see " + testRef.DetailLink(bot.cfg.ConsolePrefix)},
	}
	bot.host.nextID = 1

	require.NoError(t, bot.watch(context.Background(), testLog()))

	assert.Equal(t, testRef, bot.task.ref)
}

func TestWatchWithoutRunFails(t *testing.T) {
	bot := newTestBot(t, &fakePipeline{})
	bot.task.ref = codearts.RunRef{}

	assert.Error(t, bot.watch(context.Background(), testLog()))
}

func TestWatchStopsOnCancel(t *testing.T) {
	p := &fakePipeline{
		details: []codearts.RunDetail{detail("RUNNING")},
	}
	bot := newTestBot(t, p)
	bot.cfg.PollInterval = 3600

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := bot.watch(ctx, testLog())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func commentsOf(bodies ...string) []codehost.Comment {
	r := make([]codehost.Comment, len(bodies))
	for i, b := range bodies {
		r[i] = codehost.Comment{ID: int64(i + 1), Body: b}
	}
	return r
}
