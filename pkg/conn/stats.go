package conn

import "sync/atomic"

// stats holds the connection's internal counters. Atomic so that Stats may
// be read off the loop goroutine.
type stats struct {
	submitted   atomic.Uint64
	packetsSent atomic.Uint64
	retransmits atomic.Uint64
	timeouts    atomic.Uint64
	responses   atomic.Uint64
	ignored     atomic.Uint64
	completed   atomic.Uint64
	failed      atomic.Uint64
}

// Stats is a point-in-time snapshot of a connection's counters.
type Stats struct {
	// Submitted counts accepted SendSCP/Read/Write calls.
	Submitted uint64
	// PacketsSent counts datagrams handed to the substrate, retransmissions
	// included.
	PacketsSent uint64
	// Retransmits counts second and further attempts.
	Retransmits uint64
	// Timeouts counts requests that exhausted every attempt.
	Timeouts uint64
	// Responses counts datagrams matched to an outstanding packet.
	Responses uint64
	// Ignored counts datagrams dropped as malformed, stray or duplicate.
	Ignored uint64
	// Completed counts requests that finished successfully.
	Completed uint64
	// Failed counts requests that finished with an error.
	Failed uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Submitted:   s.submitted.Load(),
		PacketsSent: s.packetsSent.Load(),
		Retransmits: s.retransmits.Load(),
		Timeouts:    s.timeouts.Load(),
		Responses:   s.responses.Load(),
		Ignored:     s.ignored.Load(),
		Completed:   s.completed.Load(),
		Failed:      s.failed.Load(),
	}
}
