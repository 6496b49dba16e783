package metrics_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/newsflow/internal/metrics"
)

func TestNew(t *testing.T) {
	m := metrics.New()
	assert.NotNil(t, m)
	assert.False(t, m.Snapshot().StartTime.IsZero())
}

func TestRecordProcessed(t *testing.T) {
	m := metrics.New()

	m.RecordProcessed(true)
	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ProcessedCount)
	assert.Equal(t, int64(0), snap.ErrorCount)
	assert.False(t, snap.LastProcessedTime.IsZero())

	m.RecordProcessed(false)
	snap = m.Snapshot()
	assert.Equal(t, int64(2), snap.ProcessedCount)
	assert.Equal(t, int64(1), snap.ErrorCount)
}

func TestRecordRequests(t *testing.T) {
	m := metrics.New()

	m.RecordRequest(true)
	m.RecordRequest(true)
	m.RecordRequest(false)
	m.RecordRateLimited()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.SuccessfulRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
	assert.Equal(t, int64(1), snap.RateLimitedRequests)
}

func TestCurrentSource(t *testing.T) {
	m := metrics.New()
	assert.Empty(t, m.Snapshot().CurrentSource)

	m.SetCurrentSource("setn")
	assert.Equal(t, "setn", m.Snapshot().CurrentSource)
}

func TestConcurrentUpdates(t *testing.T) {
	m := metrics.New()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordProcessed(true)
			m.RecordRequest(true)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(100), snap.ProcessedCount)
	assert.Equal(t, int64(100), snap.SuccessfulRequests)
}
