// Package metrics pushes gate results to a Prometheus pushgateway.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "codearts_gate"

// Gate collects the outcome of one gate run.
type Gate struct {
	registry *prometheus.Registry
	checks   *prometheus.GaugeVec
	passed   prometheus.Gauge
	cycles   prometheus.Counter
}

func NewGate() *Gate {
	g := &Gate{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codearts_gate_check_passed",
			Help: "1 when the gate check passed, 0 otherwise.",
		}, []string{"check"}),
		passed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codearts_gate_passed",
			Help: "1 when every gate check passed.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codearts_gate_poll_cycles_total",
			Help: "Number of poll cycles run.",
		}),
	}

	g.registry.MustRegister(g.checks, g.passed, g.cycles)

	return g
}

func (g *Gate) ObserveCheck(check string, passed bool) {
	g.checks.WithLabelValues(check).Set(boolValue(passed))
}

func (g *Gate) ObserveGate(passed bool) {
	g.passed.Set(boolValue(passed))
}

func (g *Gate) IncCycle() {
	g.cycles.Inc()
}

// Push sends the collected values grouped by repository and PR.
func (g *Gate) Push(ctx context.Context, url, repo string, pr int) error {
	return push.New(url, jobName).
		Gatherer(g.registry).
		Grouping("repo", repo).
		Grouping("pr", strconv.Itoa(pr)).
		PushContext(ctx)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
