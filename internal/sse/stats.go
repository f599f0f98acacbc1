package sse

import (
	"sort"
	"sync"
	"time"
)

const (
	durationSampleSize  = 100
	errorTypeCap        = 10
	reconnectSessionCap = 50
)

// Statistics aggregates connection lifecycle counters under fixed memory
// bounds: a ring of recent connection durations, a top-K error-type map and a
// capped per-session reconnection map, both pruned back to their caps by the
// sweep cycle.
type Statistics struct {
	mu sync.Mutex

	created       uint64
	closed        uint64
	errors        uint64
	reconnections uint64

	durations    []time.Duration
	durationNext int

	errorTypes          map[string]int
	reconnectsBySession map[string]int
}

// NewStatistics creates an empty statistics aggregate.
func NewStatistics() *Statistics {
	return &Statistics{
		durations:           make([]time.Duration, 0, durationSampleSize),
		errorTypes:          make(map[string]int),
		reconnectsBySession: make(map[string]int),
	}
}

func (s *Statistics) recordCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
}

func (s *Statistics) recordClosed(lifetime time.Duration, reason CloseReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed++

	if len(s.durations) < durationSampleSize {
		s.durations = append(s.durations, lifetime)
	} else {
		s.durations[s.durationNext] = lifetime
		s.durationNext = (s.durationNext + 1) % durationSampleSize
	}

	if reason == CloseByError {
		s.errors++
	}
}

func (s *Statistics) recordErrorType(errType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorTypes[errType]++
}

func (s *Statistics) recordReconnection(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnections++
	s.reconnectsBySession[sessionID]++
}

// prune truncates the capped maps back to their size limits, keeping the
// highest-count entries.
func (s *Statistics) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorTypes = keepTopK(s.errorTypes, errorTypeCap)
	s.reconnectsBySession = keepTopK(s.reconnectsBySession, reconnectSessionCap)
}

// keepTopK sorts the map's entries by count and truncates to the k highest.
func keepTopK(m map[string]int, k int) map[string]int {
	if len(m) <= k {
		return m
	}

	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(m))
	for key, count := range m {
		entries = append(entries, entry{key, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})

	kept := make(map[string]int, k)
	for _, e := range entries[:k] {
		kept[e.key] = e.count
	}
	return kept
}

// Snapshot is a point-in-time view of the aggregate statistics.
type Snapshot struct {
	Active             int            `json:"active_connections"`
	TotalCreated       uint64         `json:"total_created"`
	TotalClosed        uint64         `json:"total_closed"`
	TotalErrors        uint64         `json:"total_errors"`
	TotalReconnections uint64         `json:"total_reconnections"`
	ErrorRate          float64        `json:"error_rate"`
	ReconnectionRate   float64        `json:"reconnection_rate"`
	AverageDuration    time.Duration  `json:"average_duration_ms"`
	TopErrorTypes      map[string]int `json:"top_error_types"`
}

// snapshot builds a Snapshot; the active count is supplied by the registry.
func (s *Statistics) snapshot(active int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Active:             active,
		TotalCreated:       s.created,
		TotalClosed:        s.closed,
		TotalErrors:        s.errors,
		TotalReconnections: s.reconnections,
		TopErrorTypes:      make(map[string]int, len(s.errorTypes)),
	}

	for key, count := range s.errorTypes {
		snap.TopErrorTypes[key] = count
	}

	if s.created > 0 {
		snap.ErrorRate = float64(s.errors) / float64(s.created)
		snap.ReconnectionRate = float64(s.reconnections) / float64(s.created)
	}

	if len(s.durations) > 0 {
		var total time.Duration
		for _, d := range s.durations {
			total += d
		}
		snap.AverageDuration = total / time.Duration(len(s.durations))
	}

	return snap
}
