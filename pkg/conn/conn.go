// Package conn implements the SCP transport engine: a connection to a single
// remote endpoint multiplexing many outstanding requests over one UDP
// socket.
//
// A connection is driven entirely by its transport.Loop: API calls enqueue
// work onto the loop, datagram arrivals and timer expiries are delivered by
// the substrate, and every state transition happens between loop dispatches.
// Request callbacks consequently run on the loop goroutine and must not
// block.
package conn

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/project-rig/rig-scp/pkg/queue"
	"github.com/project-rig/rig-scp/pkg/scp"
	"github.com/project-rig/rig-scp/pkg/transport"
)

// SCPCallback delivers the outcome of a SendSCP request. On success err is
// nil and cmdRC, the argument values and data (a view over the caller's
// buffer) carry the response. On failure only err is meaningful.
type SCPCallback func(c *Conn, err error, cmdRC uint16, nArgs int, arg1, arg2, arg3 uint32, data []byte)

// RWCallback delivers the outcome of a Read or Write request. data is the
// caller's original buffer. cmdRC is meaningful only when err is
// ErrBadReturnCode.
type RWCallback func(c *Conn, err error, cmdRC uint16, data []byte)

// Config carries the per-connection parameters, all frozen at Open.
type Config struct {
	// DataLength is the maximum number of payload bytes per SCP packet (the
	// fragmentation unit for bulk transfers).
	DataLength int

	// Timeout is how long to wait for a response to each transmission
	// attempt.
	Timeout time.Duration

	// Attempts is the number of transmission attempts (including the first)
	// before a request fails with ErrTimeout. Must be at least 1.
	Attempts int

	// Window is the number of packets that may simultaneously await a
	// response. Must be at least 1.
	Window int

	// FramePadding prepends two zero bytes to every outbound datagram and
	// expects the same on inbound ones, as some SCP-over-UDP dialects
	// require. The choice must match the remote endpoint.
	FramePadding bool

	// Logger receives debug-level engine events. Nil discards them.
	Logger logrus.FieldLogger
}

type reqType uint8

const (
	reqSCPPacket reqType = iota
	reqRead
	reqWrite
)

// request is a queued submission awaiting an outstanding slot.
type request struct {
	typ      reqType
	destAddr uint16
	destCPU  uint8

	// Single-packet requests.
	cmdRC                uint16
	nArgsSend, nArgsRecv int
	arg1, arg2, arg3     uint32
	data                 []byte
	scpCB                SCPCallback

	// Bulk read/write requests.
	id      uint64
	address uint32
	cursor  []byte // unissued remainder, sliced forward per fragment
	orig    []byte // the caller's whole buffer, handed back on completion
	rwCB    RWCallback
}

// slot is one entry of the outstanding table: the in-flight context of a
// single packet awaiting its response.
type slot struct {
	active     bool // holds an in-flight packet
	cancelled  bool // cancellation deferred until the pending send completes
	sendActive bool // the substrate owns packet until the send completes

	typ       reqType
	seqNum    uint16
	nTries    int
	packet    []byte // packed wire bytes, framing included; reused across attempts
	packetLen int

	timer       transport.Timer
	timerClosed bool

	// Single-packet requests.
	nArgsRecv int
	data      []byte
	scpCB     SCPCallback

	// Bulk read/write requests; rwData is this fragment's slice of the
	// caller's buffer.
	rwID   uint64
	rwData []byte
	rwOrig []byte
	rwCB   RWCallback
}

// Conn is an SCP connection to one remote endpoint. All fields are owned by
// the loop goroutine except where noted.
type Conn struct {
	loop transport.Loop
	sock transport.Socket
	log  logrus.FieldLogger

	dataLength int
	timeout    time.Duration
	attempts   int
	pad        int // framing bytes preceding each datagram

	requests *queue.Queue[request]
	slots    []slot

	nextSeqNum uint16
	nextRWID   uint64

	// Teardown state. closing is also read by submitting goroutines.
	closing    atomic.Bool
	freeing    bool
	sockClosed bool
	finalized  bool
	closeCB    func()

	stats stats
}

// Open creates a connection to the SCP endpoint at remote, using loop as its
// scheduler. The configuration is frozen for the connection's lifetime;
// changing any parameter requires closing and reopening.
//
// Once the configuration is validated, only opening the socket can fail, and
// it fails before any other resource exists, so a failed Open leaves nothing
// to release.
func Open(loop transport.Loop, remote string, cfg Config) (*Conn, error) {
	if cfg.DataLength <= 0 {
		return nil, fmt.Errorf("conn: data length must be positive, got %d", cfg.DataLength)
	}
	if cfg.Attempts < 1 {
		return nil, fmt.Errorf("conn: attempts must be at least 1, got %d", cfg.Attempts)
	}
	if cfg.Window < 1 {
		return nil, fmt.Errorf("conn: window must be at least 1, got %d", cfg.Window)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("conn: timeout must be positive, got %v", cfg.Timeout)
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	sock, err := loop.OpenUDP(remote)
	if err != nil {
		return nil, fmt.Errorf("conn: open %s: %w", remote, err)
	}

	pad := 0
	if cfg.FramePadding {
		pad = 2
	}

	c := &Conn{
		loop:       loop,
		sock:       sock,
		log:        log,
		dataLength: cfg.DataLength,
		timeout:    cfg.Timeout,
		attempts:   cfg.Attempts,
		pad:        pad,
		requests:   queue.New[request](),
		slots:      make([]slot, cfg.Window),
	}
	for i := range c.slots {
		s := &c.slots[i]
		s.packet = make([]byte, pad+scp.PacketSize(scp.MaxArgs, cfg.DataLength))
		s.timer = loop.NewTimer()
	}

	sock.StartRecv(c.onRecv)
	return c, nil
}

// SendSCP queues a single SCP packet carrying cmd with nArgsSend arguments
// and the payload in buf. The response's payload is written into buf's
// storage: len(buf) is the request payload length and cap(buf) bounds the
// response length, beyond which the response is silently truncated. The
// payload is likewise silently truncated to the connection's data length on
// transmission. buf must stay valid until cb fires; cb fires exactly once.
func (c *Conn) SendSCP(destAddr uint16, destCPU uint8, cmd uint16,
	nArgsSend, nArgsRecv int, arg1, arg2, arg3 uint32,
	buf []byte, cb SCPCallback) error {

	if nArgsSend < 0 || nArgsSend > scp.MaxArgs || nArgsRecv < 0 || nArgsRecv > scp.MaxArgs {
		return fmt.Errorf("conn: argument counts must be 0-%d", scp.MaxArgs)
	}
	if c.closing.Load() {
		return ErrClosed
	}
	c.stats.submitted.Add(1)
	c.loop.Post(func() {
		if c.freeing {
			c.stats.failed.Add(1)
			cb(c, ErrClosed, 0, 0, 0, 0, 0, buf)
			return
		}
		req := c.requests.Insert()
		*req = request{
			typ:       reqSCPPacket,
			destAddr:  destAddr,
			destCPU:   destCPU,
			cmdRC:     cmd,
			nArgsSend: nArgsSend,
			nArgsRecv: nArgsRecv,
			arg1:      arg1,
			arg2:      arg2,
			arg3:      arg3,
			data:      buf,
			scpCB:     cb,
		}
		c.processQueue()
	})
	return nil
}

// Write queues a bulk write of buf to the given address, fragmented into
// packets of at most the connection's data length. buf must stay valid until
// cb fires; cb fires exactly once. A zero-length buf completes immediately
// with success.
func (c *Conn) Write(destAddr uint16, destCPU uint8, address uint32,
	buf []byte, cb RWCallback) error {
	return c.submitRW(reqWrite, destAddr, destCPU, address, buf, cb)
}

// Read queues a bulk read into buf from the given address; len(buf)
// determines how much is read. buf must stay valid until cb fires; cb fires
// exactly once. A zero-length buf completes immediately with success.
func (c *Conn) Read(destAddr uint16, destCPU uint8, address uint32,
	buf []byte, cb RWCallback) error {
	return c.submitRW(reqRead, destAddr, destCPU, address, buf, cb)
}

func (c *Conn) submitRW(typ reqType, destAddr uint16, destCPU uint8,
	address uint32, buf []byte, cb RWCallback) error {

	if c.closing.Load() {
		return ErrClosed
	}
	c.stats.submitted.Add(1)
	c.loop.Post(func() {
		if c.freeing {
			c.stats.failed.Add(1)
			cb(c, ErrClosed, 0, buf)
			return
		}
		if len(buf) == 0 {
			// Nothing to transfer: complete with zero fragments.
			c.stats.completed.Add(1)
			cb(c, nil, 0, buf)
			return
		}
		req := c.requests.Insert()
		*req = request{
			typ:      typ,
			destAddr: destAddr,
			destCPU:  destCPU,
			id:       c.nextRWID,
			address:  address,
			cursor:   buf,
			orig:     buf,
			rwCB:     cb,
		}
		c.nextRWID++
		c.processQueue()
	})
	return nil
}

// Close tears the connection down. Every pending and in-flight request
// receives its callback with ErrClosed, all substrate handles are released,
// and then cb (which may be nil) is invoked exactly once. Close is
// idempotent; later submissions fail with ErrClosed.
func (c *Conn) Close(cb func()) {
	c.closing.Store(true)
	c.loop.Post(func() { c.teardown(cb) })
}

// teardown runs the asynchronous release protocol. It is re-entered by every
// handle-closed and send-completion callback until the completion condition
// holds, and is idempotent throughout.
func (c *Conn) teardown(cb func()) {
	c.freeing = true
	if cb != nil {
		c.closeCB = cb
	}

	c.sock.StopRecv()
	if !c.sock.IsClosing() {
		c.sock.Close(func() {
			c.sockClosed = true
			c.teardown(nil)
		})
	}

	for i := range c.slots {
		s := &c.slots[i]
		c.cancelSlot(s, ErrClosed, 0)
		if !s.timer.IsClosing() {
			s.timer.Close(func() {
				s.timerClosed = true
				c.teardown(nil)
			})
		}
	}

	for {
		req := c.requests.Remove()
		if req == nil {
			break
		}
		c.cancelQueued(req, ErrClosed)
	}

	// Completion requires the socket closed, every timer closed and no send
	// in flight; whichever callback satisfies the last condition re-enters.
	for i := range c.slots {
		if c.slots[i].sendActive || !c.slots[i].timerClosed {
			return
		}
	}
	if !c.sockClosed || c.finalized {
		return
	}

	c.finalized = true
	c.log.Debug("connection torn down")
	done := c.closeCB
	c.closeCB = nil
	if done != nil {
		done()
	}
}

// Stats returns a snapshot of the connection's counters. Safe to call from
// any goroutine.
func (c *Conn) Stats() Stats {
	return c.stats.snapshot()
}
