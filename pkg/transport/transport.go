// Package transport defines the I/O substrate consumed by the SCP engine —
// a cooperative event loop with asynchronous UDP sockets and one-shot timers
// — along with the production implementation over the net and time packages.
//
// Every callback registered through these interfaces fires on the loop
// goroutine, one at a time. Engine code therefore never locks: all state
// transitions happen between callback dispatches.
package transport

import "time"

// Loop is a single-goroutine cooperative scheduler. Work posted to the loop
// and every socket or timer callback runs serially on the loop goroutine.
type Loop interface {
	// Post schedules fn to run on the loop goroutine. Safe to call from any
	// goroutine. Posting to a stopped loop is a no-op.
	Post(fn func())

	// Now returns the loop's monotonic clock reading.
	Now() time.Duration

	// OpenUDP creates a socket bound to an ephemeral local port that sends
	// to and receives from the given remote address.
	OpenUDP(remote string) (Socket, error)

	// NewTimer creates an unarmed one-shot timer owned by the loop.
	NewTimer() Timer
}

// Socket is an asynchronous UDP socket. At least as many concurrent Send
// operations as the engine's window size must be supported.
type Socket interface {
	// StartRecv begins delivering inbound datagrams to cb on the loop
	// goroutine. The datagram slice is only valid for the duration of the
	// callback.
	StartRecv(cb func(data []byte))

	// StopRecv stops the delivery of inbound datagrams.
	StopRecv()

	// Send transmits one datagram and later invokes done on the loop
	// goroutine with the outcome. The buffer is owned by the socket until
	// done fires.
	Send(data []byte, done func(err error))

	// Close releases the socket and invokes closed on the loop goroutine
	// once no further callbacks will be delivered.
	Close(closed func())

	// IsClosing reports whether Close has been called.
	IsClosing() bool
}

// Timer is a one-shot timer whose expiry callback runs on the loop
// goroutine.
type Timer interface {
	// Start arms the timer to invoke expire after d. Restarting an armed
	// timer replaces the previous deadline.
	Start(d time.Duration, expire func())

	// Stop disarms the timer. A stopped timer's expiry callback does not
	// fire.
	Stop()

	// Close releases the timer and invokes closed on the loop goroutine once
	// no further callbacks will be delivered.
	Close(closed func())

	// IsClosing reports whether Close has been called.
	IsClosing() bool
}
