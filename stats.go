package pubfile

import "go.uber.org/atomic"

// ServerStats are the running totals for one listener.
type ServerStats struct {
	ActiveConnections *atomic.Int64
	TotalConnections  *atomic.Uint64
	RequestsServed    *atomic.Uint64
	ReadTimeouts      *atomic.Uint64
	BytesSent         *atomic.Uint64
}

func NewServerStats() *ServerStats {
	return &ServerStats{
		ActiveConnections: atomic.NewInt64(0),
		TotalConnections:  atomic.NewUint64(0),
		RequestsServed:    atomic.NewUint64(0),
		ReadTimeouts:      atomic.NewUint64(0),
		BytesSent:         atomic.NewUint64(0),
	}
}

// StatsSnapshot is a point-in-time copy of the counters, fit for logging.
type StatsSnapshot struct {
	ActiveConnections int64
	TotalConnections  uint64
	RequestsServed    uint64
	ReadTimeouts      uint64
	BytesSent         uint64
}

func (s *ServerStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ActiveConnections: s.ActiveConnections.Load(),
		TotalConnections:  s.TotalConnections.Load(),
		RequestsServed:    s.RequestsServed.Load(),
		ReadTimeouts:      s.ReadTimeouts.Load(),
		BytesSent:         s.BytesSent.Load(),
	}
}
