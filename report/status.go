// Package report renders gate check results into the HTML posted on a PR
// and into the standalone log pages uploaded to object storage.
package report

// Status is the state of a pipeline job as reported by CodeArts.
type Status string

const (
	StatusCompleted  Status = "COMPLETED"
	StatusRunning    Status = "RUNNING"
	StatusCanceled   Status = "CANCELED"
	StatusFailed     Status = "FAILED"
	StatusUnselected Status = "UNSELECTED"
	StatusBlank      Status = "BLANK"
)

// Finished reports whether a job in state s has stopped. INIT, QUEUED and
// any other state CodeArts reports are still in progress.
func (s Status) Finished() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusBlank:
		return true
	}
	return false
}

// Glyphs maps a status to the code point of the HTML numeric entity
// shown in the status column.
type Glyphs map[Status]string

func DefaultGlyphs() Glyphs {
	return Glyphs{
		StatusCompleted:  "9989",
		StatusRunning:    "128346",
		StatusCanceled:   "10060",
		StatusFailed:     "10060",
		StatusBlank:      "32",
		StatusUnselected: "128762",
	}
}

// Glyph returns the entity code of s. Unknown statuses have no glyph.
func (g Glyphs) Glyph(s Status) (string, bool) {
	v, ok := g[s]
	return v, ok
}

// JobResult is one row of the report table.
type JobResult struct {
	CheckName string
	Status    Status

	// Display replaces the status glyph when set, e.g. a coverage rate.
	Display string

	// LogLink is either a URL or a sentinel text shown instead of a link.
	LogLink     string
	Detail      string
	PackageLink string
}

func (j *JobResult) Failed() bool {
	return j.Status != StatusCompleted
}
