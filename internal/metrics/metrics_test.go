package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsLoads(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.LoadOutcome(OutcomeStarted)
	c.LoadOutcome(OutcomeJoined)
	c.LoadOutcome(OutcomeJoined)
	c.LoadOutcome(OutcomeSucceeded)
	c.SourceError("https://example.com/bad.xml")
	c.LegacySource()
	c.Published(3, 7, 0.5)

	assert.InDelta(t, 1, testutil.ToFloat64(c.loads.WithLabelValues(OutcomeStarted)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.loads.WithLabelValues(OutcomeJoined)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.sourceErrors.WithLabelValues("https://example.com/bad.xml")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.legacySources), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(c.localPackages), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(c.remotePackages), 0)

	count, err := testutil.GatherAndCount(reg, "pkgrepo_load_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.LoadOutcome(OutcomeCached)
		c.SourceError("source")
		c.LegacySource()
		c.Published(1, 1, 1)
	})
}

func TestCollectorWithoutRegistry(t *testing.T) {
	c := NewCollector(nil)
	c.LoadOutcome(OutcomeFailed)
	assert.InDelta(t, 1, testutil.ToFloat64(c.loads.WithLabelValues(OutcomeFailed)), 0)
}
