package report

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	ViewLogText      = "查看日志"
	JumpText         = "点击跳转"
	DownloadText     = "下载"
	PipelineLinkName = "流水线链接"
)

type layout struct {
	header  string
	row     string
	linkRow string
}

const tableOpen = `<table style="border-collapse: collapse" border=1>`

// Layouts are keyed by (with detail column, with package column).
var layouts = map[[2]bool]layout{
	{true, true}: {
		header: `
    <tr>
        <th>检查项</th>
        <th>状态</th>
        <th colspan="2">详情</th>
        <th>日志</th>
        <th>出包</th>
    </tr>
`,
		row: `
<tr>
    <td>{name}</td>
    <td>{status}</td>
    <td colspan="2">{detail}</td>
    <td>{log}</td>
    <td>{package}</td>
</tr>
`,
		linkRow: `
<tr>
    <td>{name}</td>
    <td colspan="5">{link}</td>
</tr>
`,
	},
	{true, false}: {
		header: `
    <tr>
        <th>检查项</th>
        <th>状态</th>
        <th colspan="2">详情</th>
        <th>日志</th>
    </tr>
`,
		row: `
<tr>
    <td>{name}</td>
    <td>{status}</td>
    <td colspan="2">{detail}</td>
    <td>{log}</td>
</tr>
`,
		linkRow: `
<tr>
    <td>{name}</td>
    <td colspan="4">{link}</td>
</tr>
`,
	},
	{false, true}: {
		header: `
    <tr>
        <th>检查项</th>
        <th>状态</th>
        <th>日志</th>
        <th>出包</th>
    </tr>
`,
		row: `
<tr>
    <td>{name}</td>
    <td>{status}</td>
    <td>{log}</td>
    <td>{package}</td>
</tr>
`,
		linkRow: `
<tr>
    <td>{name}</td>
    <td colspan="3">{link}</td>
</tr>
`,
	},
	{false, false}: {
		header: `
    <tr>
        <th>检查项</th>
        <th>状态</th>
        <th>日志</th>
    </tr>
`,
		row: `
<tr>
    <td>{name}</td>
    <td>{status}</td>
    <td>{log}</td>
</tr>
`,
		linkRow: `
<tr>
    <td>{name}</td>
    <td colspan="2">{link}</td>
</tr>
`,
	},
}

// Table is the gate report posted as a PR comment.
type Table struct {
	Results      []JobResult
	PipelineLink string

	// RemoveDetail drops the detail column.
	RemoveDetail bool
}

func (t *Table) hasPackage() bool {
	for i := range t.Results {
		if t.Results[i].PackageLink != "" {
			return true
		}
	}
	return false
}

// Render produces the HTML table. The pipeline link row is always last.
func (t *Table) Render(glyphs Glyphs) string {
	l := layouts[[2]bool{!t.RemoveDetail, t.hasPackage()}]
	policy := bluemonday.UGCPolicy()

	b := strings.Builder{}
	b.WriteString(tableOpen)
	b.WriteString(l.header)

	for i := range t.Results {
		item := &t.Results[i]

		r := strings.NewReplacer(
			"{name}", html.EscapeString(item.CheckName),
			"{status}", statusCell(item, glyphs),
			"{detail}", policy.Sanitize(item.Detail),
			"{log}", linkCell(item.LogLink, ViewLogText),
			"{package}", linkCell(item.PackageLink, DownloadText),
		)
		b.WriteString(r.Replace(l.row))
	}

	if t.PipelineLink != "" {
		r := strings.NewReplacer(
			"{name}", PipelineLinkName,
			"{link}", linkCell(t.PipelineLink, JumpText),
		)
		b.WriteString(r.Replace(l.linkRow))
	}

	b.WriteString("</table>")

	return b.String()
}

func statusCell(item *JobResult, glyphs Glyphs) string {
	if item.Display != "" {
		return html.EscapeString(item.Display)
	}

	if v, ok := glyphs.Glyph(item.Status); ok {
		return "&#" + v + ";"
	}

	return html.EscapeString(string(item.Status))
}

func linkCell(link, text string) string {
	if isURL(link) {
		return `<a href="` + html.EscapeString(link) + `">` + text + `</a>`
	}

	return html.EscapeString(link)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
