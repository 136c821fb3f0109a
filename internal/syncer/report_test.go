package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imrishuroy/go-workorder-sync/internal/aws"
)

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 1.0, InboundStats{}.SuccessRate())
	assert.Equal(t, 1.0, OutboundStats{}.SuccessRate())
	assert.Equal(t, 0.5, InboundStats{FilesRead: 4, Saved: 2}.SuccessRate())
	assert.Equal(t, 0.25, OutboundStats{Read: 4, Synced: 1}.SuccessRate())
}

func TestReport_Fields(t *testing.T) {
	r := Report{
		RunID:    "run-1",
		Duration: 1500 * time.Millisecond,
		Inbound:  InboundStats{FilesRead: 3, FilesValid: 2, Skipped: 1, Converted: 2, Saved: 2},
		Outbound: OutboundStats{Read: 2, Converted: 2, Written: 2, Synced: 1, Errors: 1},
	}
	f := r.Fields()
	assert.Equal(t, "run-1", f["run_id"])
	assert.Equal(t, 1.5, f["execution_time"])
	assert.Equal(t, 1, f["inbound_skipped"])
	assert.Equal(t, 0.5, f["outbound_success_rate"])
}

func TestReport_Metrics(t *testing.T) {
	r := Report{
		Duration: 2 * time.Second,
		Inbound:  InboundStats{FilesRead: 2, Saved: 1, Errors: 1},
		Outbound: OutboundStats{Read: 1, Synced: 1},
	}
	metrics := r.Metrics()

	var exec *aws.Metric
	for i := range metrics {
		m := metrics[i]
		if m.Name == "ExecutionTime" {
			exec = &metrics[i]
			continue
		}
		assert.Contains(t, []string{"inbound", "outbound"}, m.Dimensions["Pass"], m.Name)
		if m.Name == "SuccessRate" {
			assert.Equal(t, aws.UnitPercent, m.Unit)
			if m.Dimensions["Pass"] == "inbound" {
				assert.Equal(t, 50.0, m.Value)
			} else {
				assert.Equal(t, 100.0, m.Value)
			}
		}
	}
	if assert.NotNil(t, exec) {
		assert.Equal(t, 2.0, exec.Value)
		assert.Equal(t, aws.UnitSeconds, exec.Unit)
	}
}
