package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/warpbench/internal/optimization/search"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
)

var _ search.Recorder = (*Metrics)(nil)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Suggested("rs", 3)
	m.Suggested("rs", 2)
	m.Observed("gp", 4)
	m.SampleAttempts("rs", 1)
	m.SampleAttempts("rs", 1000)
	m.Exhausted("rs")
	m.StudyCreated()
	m.StudyCreated()
	m.StudyDeleted()

	out := scrape(t, reg)
	assert.Contains(t, out, `warpbench_suggestions_total{optimizer="rs"} 5`)
	assert.Contains(t, out, `warpbench_observations_total{optimizer="gp"} 4`)
	assert.Contains(t, out, `warpbench_sampling_exhausted_total{optimizer="rs"} 1`)
	assert.Contains(t, out, `warpbench_rejection_attempts_count{optimizer="rs"} 2`)
	assert.Contains(t, out, `warpbench_rejection_attempts_bucket{optimizer="rs",le="1"} 1`)
	assert.Contains(t, out, "warpbench_studies 1")
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func boolSpace(t *testing.T) *space.Space {
	t.Helper()
	s, err := space.New(map[string]space.Param{"flag": space.NewBoolean()})
	require.NoError(t, err)
	return s
}

func TestRandomOptimizerReportsToMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	o, err := search.NewRandomOptimizer(boolSpace(t), search.Options{Name: "rs", Seed: 1, Recorder: m})
	require.NoError(t, err)

	for {
		ts, err := o.Suggest(1)
		if err != nil {
			break
		}
		ts[0].Observe(1)
		require.NoError(t, o.Observe(ts))
	}

	out := scrape(t, reg)
	assert.Contains(t, out, `warpbench_suggestions_total{optimizer="rs"} 2`)
	assert.Contains(t, out, `warpbench_observations_total{optimizer="rs"} 2`)
	assert.Contains(t, out, `warpbench_sampling_exhausted_total{optimizer="rs"} 1`)
}
