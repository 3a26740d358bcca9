package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransferMetricsCounters(t *testing.T) {
	m := New()
	m.AddBytesSent(100)
	m.AddBytesSent(50)
	m.AddBytesReceived(20)
	m.AddFileSent()
	m.AddFileSent()
	m.AddFileReceived()
	m.AddError()

	snap := m.Snapshot()
	assert.EqualValues(t, 150, snap.BytesSent)
	assert.EqualValues(t, 20, snap.BytesReceived)
	assert.EqualValues(t, 2, snap.FilesSent)
	assert.EqualValues(t, 1, snap.FilesReceived)
	assert.EqualValues(t, 1, snap.Errors)
}

func TestTransferMetricsUptimeAdvances(t *testing.T) {
	m := New()
	time.Sleep(5 * time.Millisecond)
	snap := m.Snapshot()
	assert.Greater(t, snap.Uptime, time.Duration(0))
}

func TestSnapshotSpeedHistoryIsIndependentCopy(t *testing.T) {
	m := New()
	// speed is sampled at most once per 100ms, so wait past that window for
	// AddBytesReceived to record a history point.
	time.Sleep(110 * time.Millisecond)
	m.AddBytesReceived(10)
	snap := m.Snapshot()

	// mutating the returned slice must not reach back into the live metrics.
	if len(snap.SpeedHistory) > 0 {
		snap.SpeedHistory[0].BytesPerSecond = -1
		snap2 := m.Snapshot()
		assert.NotEqual(t, float64(-1), snap2.SpeedHistory[0].BytesPerSecond)
	}
}

func TestConnectionCounterIncDec(t *testing.T) {
	c := NewConnectionCounter()
	assert.EqualValues(t, 0, c.Active())

	c.Inc()
	c.Inc()
	c.Inc()
	assert.EqualValues(t, 3, c.Active())
	assert.EqualValues(t, 3, c.Peak())

	c.Dec()
	assert.EqualValues(t, 2, c.Active())
	assert.EqualValues(t, 3, c.Peak(), "peak must not fall when active count drops")

	c.Dec()
	c.Dec()
	assert.EqualValues(t, 0, c.Active())
}

func TestConnectionCounterPeakTracksHighWaterMark(t *testing.T) {
	c := NewConnectionCounter()
	c.Inc()
	c.Inc()
	c.Dec()
	c.Inc()
	c.Inc()
	c.Inc()
	assert.EqualValues(t, 3, c.Active())
	assert.EqualValues(t, 3, c.Peak())
}
