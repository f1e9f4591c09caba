package stratum

import (
	"sync/atomic"
	"time"

	"github.com/hako/durafmt"
)

// ConnStats counts per-connection activity. Fields are atomics so the I/O
// task and the caller context update them without coordination.
type ConnStats struct {
	JobsReceived atomic.Uint64
	Submitted    atomic.Uint64
	Accepted     atomic.Uint64
	Rejected     atomic.Uint64
	connectedAt  time.Time
}

func newConnStats() *ConnStats {
	return &ConnStats{connectedAt: time.Now()}
}

// StatusSnapshot is a point-in-time view of a connection suitable for
// status displays.
type StatusSnapshot struct {
	JobsReceived uint64
	Submitted    uint64
	Accepted     uint64
	Rejected     uint64
	Difficulty   float64
	CurrentJobID string
	Uptime       string
	HashImpl     string
}

// Snapshot renders the current counters. Difficulty and job ID come from
// the facade mirror, so the snapshot reflects everything the caller could
// observe at this point.
func (c *Client) Snapshot() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainEventsLocked()

	jobID := ""
	if c.notification != nil {
		jobID = c.notification.JobID
	}
	return StatusSnapshot{
		JobsReceived: c.stats.JobsReceived.Load(),
		Submitted:    c.stats.Submitted.Load(),
		Accepted:     c.stats.Accepted.Load(),
		Rejected:     c.stats.Rejected.Load(),
		Difficulty:   c.difficulty,
		CurrentJobID: jobID,
		Uptime:       durafmt.Parse(time.Since(c.stats.connectedAt).Round(time.Second)).LimitFirstN(2).String(),
		HashImpl:     sha256ImplementationName(),
	}
}
