package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemCollectorGathersHostSamples(t *testing.T) {
	samples, err := NewSystemCollector("/").Collect(context.Background())
	if err != nil {
		t.Logf("partial collection: %v", err)
	}
	require.NotEmpty(t, samples)

	types := map[string]bool{}
	for _, s := range samples {
		types[s.Type] = true
		assert.NotEmpty(t, s.Unit, "sample %s has no unit", s.Type)
	}

	for _, want := range []string{
		"cpu_percent",
		"memory_percent",
		"memory_available_mb",
		"disk_percent",
		"disk_free_gb",
		"disk_read_mb",
		"disk_write_mb",
		"load_1",
		"net_sent_mb",
		"net_recv_mb",
	} {
		assert.True(t, types[want], "missing sample type %s, got %v", want, types)
	}
}
