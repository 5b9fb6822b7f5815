package report

import (
	"bytes"
	"html/template"
)

// Severity counts the defects a code check task found.
type Severity struct {
	Critical   int `json:"critical"`
	Major      int `json:"major"`
	Minor      int `json:"minor"`
	Suggestion int `json:"suggestion"`
}

func (s Severity) Total() int {
	return s.Critical + s.Major + s.Minor + s.Suggestion
}

// Blocking is the number of defects that fail the gate.
func (s Severity) Blocking() int {
	return s.Critical + s.Major
}

var codeCheckPage = template.Must(template.New("codecheck").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>代码检查</title>
    <style>
        th, td{
            padding: 8px;
        }
        table{
            background: ghostwhite;
            margin-left: 40px;
            margin-top: 40px;
        }
        tr{
            text-align: center;
        }
    </style>
</head>
<body>
    <table border="10px" width="30%">
    <tr>
        <th width="40%">检查项</th>
        <th  width="60%">结果</th>
    </tr>
    <tr>
        <td>致命</td>
        <td>{{.Severity.Critical}}</td>
    </tr>
    <tr>
        <td>严重</td>
        <td>{{.Severity.Major}}</td>
    </tr>
    <tr>
        <td>一般</td>
        <td>{{.Severity.Minor}}</td>
    </tr>
    <tr>
        <td>提示</td>
        <td>{{.Severity.Suggestion}}</td>
    </tr>
    <tr>
        <td>问题总数</td>
        <td>{{.Severity.Total}}</td>
    </tr>
    <tr>
        <td colspan="2"><a href="{{.Link}}">点击跳转至codecheck任务</a></td>
    </tr>
</table>
</body>
</html>
`))

var buildLogPage = template.Must(template.New("buildlog").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Name}}</title>
</head>
<body>
    <pre>
{{.Log}}
    </pre>
</body>
</html>
`))

// CodeCheckPage renders the defect severity page of a code check job.
func CodeCheckPage(s Severity, taskLink string) (string, error) {
	buf := bytes.Buffer{}
	err := codeCheckPage.Execute(&buf, struct {
		Severity Severity
		Link     string
	}{s, taskLink})

	return buf.String(), err
}

// BuildLogPage wraps the raw log of a build job in a page.
func BuildLogPage(jobName, log string) (string, error) {
	buf := bytes.Buffer{}
	err := buildLogPage.Execute(&buf, struct {
		Name string
		Log  string
	}{jobName, log})

	return buf.String(), err
}
