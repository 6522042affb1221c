package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSamplerCollect(t *testing.T) {
	s, err := NewSelfSampler(10)
	require.NoError(t, err)

	sample, err := s.Collect()
	require.NoError(t, err)
	assert.Positive(t, sample.PID, "expected own pid")
	assert.NotZero(t, sample.MemoryRSS, "expected nonzero RSS for a running process")
	assert.False(t, sample.Timestamp.IsZero(), "sample must be timestamped")

	latest, ok := s.Latest()
	require.True(t, ok, "Latest should report the collected sample")
	assert.Equal(t, sample.Timestamp, latest.Timestamp)
}

func TestSelfSamplerRingOrder(t *testing.T) {
	s, err := NewSelfSampler(3)
	require.NoError(t, err)

	// Fill past capacity; history must stay bounded and chronological.
	for i := 0; i < 5; i++ {
		_, err := s.Collect()
		require.NoError(t, err, "collect %d", i)
		time.Sleep(time.Millisecond)
	}
	hist := s.History()
	require.Len(t, hist, 3, "history should be capped at ring size")
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].Timestamp.Before(hist[i-1].Timestamp),
			"history out of order at %d: %v before %v", i, hist[i].Timestamp, hist[i-1].Timestamp)
	}
}

func TestSelfSamplerDefaultsHistorySize(t *testing.T) {
	s, err := NewSelfSampler(0)
	require.NoError(t, err)
	assert.Equal(t, 100, s.maxSize)
}

func TestSelfSamplerEmpty(t *testing.T) {
	s, err := NewSelfSampler(4)
	require.NoError(t, err)

	_, ok := s.Latest()
	assert.False(t, ok, "Latest must report false before any Collect")
	assert.Nil(t, s.History(), "History must be nil before any Collect")
}
