package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opensourceways/robot-codearts-gate/report"
)

type jobOutcome struct {
	item report.JobResult
	ok   bool

	// status is the state CodeArts reported, before any override.
	status string
}

// localState holds the log pages of one PR and the jobs already handled
// during this process.
type localState struct {
	repo string
	pr   int
	dir  string

	finished map[string]jobOutcome
}

func newLocalState(root, repo string, pr int) *localState {
	return &localState{
		repo:     repo,
		pr:       pr,
		dir:      filepath.Join(root, repo, fmt.Sprint(pr)),
		finished: make(map[string]jobOutcome),
	}
}

func (l *localState) fileName(job string) string {
	return fmt.Sprintf("%d_%s.html", l.pr, job)
}

func (l *localState) filePath(job string) string {
	return filepath.Join(l.dir, l.fileName(job))
}

// objectKey is where the log page of job lives in the bucket.
func (l *localState) objectKey(job string) string {
	return fmt.Sprintf("log/%s/%d/%s", l.repo, l.pr, l.fileName(job))
}

// save appends content to the log page of job.
func (l *localState) save(job, content string) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", err
	}

	p := l.filePath(job)

	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", err
	}

	return p, f.Close()
}

// coverage reads the coverage rate from the saved log page of job.
func (l *localState) coverage(job string) (string, bool) {
	f, err := os.Open(l.filePath(job))
	if err != nil {
		return "", false
	}
	defer f.Close()

	return report.ExtractCoverage(f)
}

func (l *localState) getFinished(job string) (jobOutcome, bool) {
	v, ok := l.finished[job]
	return v, ok
}

func (l *localState) setFinished(job string, v jobOutcome) {
	l.finished[job] = v
}
