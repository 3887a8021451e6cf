package observability

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, mm *MetricsManager) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := mm.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestMetricsManager_Registry(t *testing.T) {
	mm := NewMetricsManager(MetricsConfig{Enabled: true})

	mm.RecordIdentifier("Document", "hashed")
	mm.RecordIdentifier("Document", "hashed")
	mm.RecordIdentifierMissing("Document")
	mm.RecordLockOperation("acquire", "acquired", 5*time.Millisecond, "entity")

	families := gather(t, mm)

	ids, ok := families["wormgraph_identity_identifiers_total"]
	require.True(t, ok)
	require.Len(t, ids.GetMetric(), 1)
	assert.Equal(t, 2.0, ids.GetMetric()[0].GetCounter().GetValue())

	missing, ok := families["wormgraph_identity_missing_total"]
	require.True(t, ok)
	assert.Equal(t, 1.0, missing.GetMetric()[0].GetCounter().GetValue())

	wait, ok := families["wormgraph_lock_wait_duration_seconds"]
	require.True(t, ok)
	assert.Equal(t, uint64(1), wait.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetricsManager_Disabled(t *testing.T) {
	mm := NewMetricsManager(MetricsConfig{})
	assert.Nil(t, mm.Registry())
	assert.False(t, mm.IsEnabled())

	// recording on a disabled manager is a no-op
	mm.RecordIdentifier("Document", "hashed")
	mm.RecordLockOperation("acquire", "failed", time.Second, "entity")
}
