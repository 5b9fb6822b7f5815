package codearts

import (
	"fmt"
	"regexp"
)

const (
	RunStatusRunning = "RUNNING"

	inputJobID = "jobId"
)

// RunRef identifies one pipeline run.
type RunRef struct {
	ProjectID  string
	PipelineID string
	RunID      string
}

func (r RunRef) IsEmpty() bool {
	return r.ProjectID == "" || r.PipelineID == "" || r.RunID == ""
}

// DetailLink is the console page of the run under the pipeline console
// prefix, e.g. https://devcloud.cn-north-4.huaweicloud.com/cicd/project.
func (r RunRef) DetailLink(consolePrefix string) string {
	return fmt.Sprintf("%s/%s/pipeline/detail/%s/%s", consolePrefix, r.ProjectID, r.PipelineID, r.RunID)
}

var detailLinkRe = regexp.MustCompile(`/([0-9A-Za-z_-]+)/pipeline/detail/([0-9A-Za-z_-]+)/([0-9A-Za-z_-]+)`)

// ParseRunRef finds the first pipeline detail link embedded in s.
func ParseRunRef(s string) (RunRef, bool) {
	m := detailLinkRe.FindStringSubmatch(s)
	if m == nil {
		return RunRef{}, false
	}

	return RunRef{ProjectID: m[1], PipelineID: m[2], RunID: m[3]}, true
}

type RunDetail struct {
	Status string  `json:"status"`
	Stages []Stage `json:"stages"`
}

func (d *RunDetail) IsRunning() bool {
	return d.Status == RunStatusRunning
}

// GateJobs are the jobs of the first stage.
func (d *RunDetail) GateJobs() []Job {
	if len(d.Stages) == 0 {
		return nil
	}
	return d.Stages[0].Jobs
}

type Stage struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Jobs   []Job  `json:"jobs"`
}

type Job struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Steps  []Step `json:"steps"`
}

// StepRunID is the id of the first step, which carries the job inputs.
func (j *Job) StepRunID() string {
	if len(j.Steps) == 0 {
		return ""
	}
	return j.Steps[0].ID
}

// JobID is the id of the build or code check task the job drives.
func (j *Job) JobID() string {
	if len(j.Steps) == 0 {
		return ""
	}

	v := ""
	for _, item := range j.Steps[0].Inputs {
		if item.Key == inputJobID {
			v = item.StringValue()
		}
	}
	return v
}

type Step struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Inputs []KeyValue `json:"inputs"`
}

type KeyValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

func (kv KeyValue) StringValue() string {
	switch v := kv.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

type DefectSeverity struct {
	Critical   int `json:"critical"`
	Major      int `json:"major"`
	Minor      int `json:"minor"`
	Suggestion int `json:"suggestion"`
}

type DefectStatistic struct {
	Severity DefectSeverity `json:"severity"`
}

type jumpLinkResp struct {
	JumpLink string `json:"jumpLink"`
}

type recordInfoResp struct {
	Result struct {
		BuildRecordID string `json:"build_record_id"`
	} `json:"result"`
}

type stepOutputsResp struct {
	StepOutputs []struct {
		StepRunID    string     `json:"step_run_id"`
		OutputResult []KeyValue `json:"output_result"`
	} `json:"step_outputs"`
}
