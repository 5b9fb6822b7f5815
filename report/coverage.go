package report

import (
	"bufio"
	"io"
	"strings"
)

const (
	goCoverageMarker   = "COVERAGE="
	javaCoverageMarker = "Jacoco Coverge:"

	coverageDigits = 4
)

// ExtractCoverage scans a rendered log page for the first coverage line
// and returns the rate formatted as a percentage, e.g. "87.6%".
func ExtractCoverage(r io.Reader) (string, bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := sc.Text()

		if strings.Contains(line, goCoverageMarker) {
			v := line[strings.LastIndex(line, "=")+1:]
			return formatRate(v), true
		}

		if strings.Contains(line, javaCoverageMarker) {
			v := strings.TrimSpace(line[strings.LastIndex(line, ":")+1:])
			if fields := strings.Fields(v); len(fields) > 0 {
				v = fields[0]
			}
			return formatRate(v), true
		}
	}

	return "", false
}

func formatRate(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > coverageDigits {
		v = v[:coverageDigits]
	}

	return strings.TrimSpace(v) + "%"
}
