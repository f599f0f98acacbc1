package sse

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatistics_Snapshot(t *testing.T) {
	t.Run("should report lifecycle counters and rates", func(t *testing.T) {
		s := NewStatistics()

		for i := 0; i < 10; i++ {
			s.recordCreated()
		}
		s.recordClosed(time.Second, CloseByClient)
		s.recordClosed(3*time.Second, CloseByError)
		s.recordReconnection("session-1")

		snap := s.snapshot(8)
		require.Equal(t, 8, snap.Active)
		require.Equal(t, uint64(10), snap.TotalCreated)
		require.Equal(t, uint64(2), snap.TotalClosed)
		require.Equal(t, uint64(1), snap.TotalErrors)
		require.Equal(t, uint64(1), snap.TotalReconnections)
		require.InDelta(t, 0.1, snap.ErrorRate, 1e-9)
		require.InDelta(t, 0.1, snap.ReconnectionRate, 1e-9)
		require.Equal(t, 2*time.Second, snap.AverageDuration)
	})

	t.Run("should report zero rates before any connection", func(t *testing.T) {
		snap := NewStatistics().snapshot(0)
		require.Zero(t, snap.ErrorRate)
		require.Zero(t, snap.ReconnectionRate)
		require.Zero(t, snap.AverageDuration)
	})

	t.Run("should bound the duration sample ring", func(t *testing.T) {
		s := NewStatistics()
		for i := 0; i < durationSampleSize*2; i++ {
			s.recordClosed(time.Duration(i)*time.Millisecond, CloseByClient)
		}
		require.Len(t, s.durations, durationSampleSize)
	})
}

func TestStatistics_Prune(t *testing.T) {
	t.Run("should keep the highest-count error types", func(t *testing.T) {
		s := NewStatistics()
		for i := 0; i < errorTypeCap+5; i++ {
			errType := fmt.Sprintf("error-%02d", i)
			for j := 0; j <= i; j++ {
				s.recordErrorType(errType)
			}
		}

		s.prune()

		require.Len(t, s.errorTypes, errorTypeCap)
		// The five lowest-count types were dropped.
		for i := 0; i < 5; i++ {
			require.NotContains(t, s.errorTypes, fmt.Sprintf("error-%02d", i))
		}
		require.Contains(t, s.errorTypes, fmt.Sprintf("error-%02d", errorTypeCap+4))
	})

	t.Run("should cap the per-session reconnection map", func(t *testing.T) {
		s := NewStatistics()
		for i := 0; i < reconnectSessionCap+20; i++ {
			s.recordReconnection(fmt.Sprintf("session-%03d", i))
		}

		s.prune()
		require.Len(t, s.reconnectsBySession, reconnectSessionCap)
		// The overall counter is unaffected by pruning.
		require.Equal(t, uint64(reconnectSessionCap+20), s.snapshot(0).TotalReconnections)
	})

	t.Run("should break count ties by key order", func(t *testing.T) {
		m := map[string]int{"b": 1, "a": 1, "c": 1}
		kept := keepTopK(m, 2)
		require.Contains(t, kept, "a")
		require.Contains(t, kept, "b")
		require.NotContains(t, kept, "c")
	})

	t.Run("should leave maps within the cap untouched", func(t *testing.T) {
		m := map[string]int{"a": 5, "b": 3}
		require.Equal(t, m, keepTopK(m, 10))
	})
}
