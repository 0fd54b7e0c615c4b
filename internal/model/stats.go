package model

import (
	"sync"
	"time"
)

// ScanState is the lifecycle state of a single chain scan.
type ScanState string

const (
	ScanPending    ScanState = "pending"
	ScanConnecting ScanState = "connecting"
	ScanStreaming  ScanState = "streaming"
	ScanComplete   ScanState = "complete"
	ScanFailed     ScanState = "failed"
)

// StatsSnapshot is a point-in-time copy of one chain's scan progress, safe
// to read from any goroutine.
type StatsSnapshot struct {
	ChainID       uint64
	ChainName     string
	State         ScanState
	Height        uint64
	LastBlockSeen uint64
	TotalEvents   uint64
	StartTime     time.Time
	EndTime       time.Time
	IsScanning    bool
	IsComplete    bool
}

// EventsPerSec derives scan throughput from the snapshot.
func (s StatsSnapshot) EventsPerSec() float64 {
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	elapsed := end.Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TotalEvents) / elapsed
}

// ChainScanStats tracks scan progress for one chain. It is mutated only by
// the owning chain scanner; every other goroutine reads copies via Snapshot.
// Once the scan completes or fails the snapshot no longer changes.
type ChainScanStats struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// NewChainScanStats creates stats for a chain admitted to the scan set.
func NewChainScanStats(chainID uint64, chainName string) *ChainScanStats {
	return &ChainScanStats{s: StatsSnapshot{
		ChainID:   chainID,
		ChainName: chainName,
		State:     ScanPending,
		StartTime: time.Now(),
	}}
}

// ToConnecting marks the height lookup phase.
func (c *ChainScanStats) ToConnecting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.State = ScanConnecting
	c.s.IsScanning = true
}

// ToStreaming records the chain tip and marks the streaming phase.
func (c *ChainScanStats) ToStreaming(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.State = ScanStreaming
	c.s.Height = height
	c.s.IsScanning = true
}

// RecordBatch advances the cursor position and event count after one batch.
func (c *ChainScanStats) RecordBatch(lastBlock uint64, events uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.LastBlockSeen = lastBlock
	c.s.TotalEvents += events
}

// ToComplete freezes the stats at the end of a successful scan.
func (c *ChainScanStats) ToComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.State = ScanComplete
	c.s.IsScanning = false
	c.s.IsComplete = true
	c.s.EndTime = time.Now()
}

// ToFailed freezes the stats for a chain that could not be scanned. A failed
// chain contributes an empty result, so its progress counters reset with it
// rather than reporting events that were discarded.
func (c *ChainScanStats) ToFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.State = ScanFailed
	c.s.IsScanning = false
	c.s.IsComplete = true
	c.s.TotalEvents = 0
	c.s.LastBlockSeen = 0
	c.s.EndTime = time.Now()
}

// Snapshot returns a read-only copy of the current progress.
func (c *ChainScanStats) Snapshot() StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
