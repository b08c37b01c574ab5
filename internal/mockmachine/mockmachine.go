// Package mockmachine implements an in-process SCP endpoint for exercising
// the transport engine: a UDP server with a flat memory image that serves
// CMD_READ and CMD_WRITE and echoes every other command verbatim.
//
// A filter hook can drop, delay, duplicate or corrupt individual responses,
// which is how tests provoke retransmissions, timeouts and mid-stream
// failures.
package mockmachine

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/project-rig/rig-scp/pkg/scp"
)

// Packet is a decoded inbound request, handed to the filter hook.
type Packet struct {
	CmdRC            uint16
	SeqNum           uint16
	NArgs            int
	Arg1, Arg2, Arg3 uint32
	Payload          []byte
}

// Action tells the machine what to do with one inbound request.
type Action struct {
	// Drop discards the request without responding.
	Drop bool

	// Delay postpones the response.
	Delay time.Duration

	// RC, if nonzero, overrides the return code of a read/write response.
	RC uint16

	// Duplicates sends that many extra copies of the response.
	Duplicates int
}

// Filter decides the fate of an inbound request. attempt counts how many
// times a request with this sequence number has been seen, starting at 1.
type Filter func(p *Packet, attempt int) Action

// Machine is a mock SCP endpoint. Create with New, point a connection at
// Addr, and Close when done.
type Machine struct {
	conn *net.UDPConn
	pad  int

	mu        sync.Mutex
	mem       []byte
	attempts  map[uint16]int
	datagrams int
	filter    Filter
}

// New starts a mock machine with a memory image of memSize bytes, listening
// on an ephemeral localhost port. framePadding must match the connection
// talking to it.
func New(memSize int, framePadding bool) (*Machine, error) {
	return NewOn("127.0.0.1:0", memSize, framePadding)
}

// NewOn is New listening on a specific address.
func NewOn(addr string, memSize int, framePadding bool) (*Machine, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("mockmachine: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("mockmachine: listen: %w", err)
	}
	pad := 0
	if framePadding {
		pad = 2
	}
	m := &Machine{
		conn:     conn,
		pad:      pad,
		mem:      make([]byte, memSize),
		attempts: make(map[uint16]int),
	}
	go m.serve()
	return m, nil
}

// Addr returns the machine's listen address.
func (m *Machine) Addr() string {
	return m.conn.LocalAddr().String()
}

// SetFilter installs the response filter. A nil filter answers everything
// immediately.
func (m *Machine) SetFilter(f Filter) {
	m.mu.Lock()
	m.filter = f
	m.mu.Unlock()
}

// Memory returns a copy of the machine's memory image.
func (m *Machine) Memory() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.mem))
	copy(out, m.mem)
	return out
}

// FillMemory overwrites the memory image starting at offset.
func (m *Machine) FillMemory(offset int, data []byte) {
	m.mu.Lock()
	copy(m.mem[offset:], data)
	m.mu.Unlock()
}

// Attempts returns how many times a request with the given sequence number
// has arrived.
func (m *Machine) Attempts(seq uint16) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[seq]
}

// TotalDatagrams returns the number of well-formed requests received.
func (m *Machine) TotalDatagrams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.datagrams
}

// Close shuts the machine down.
func (m *Machine) Close() {
	m.conn.Close()
}

func (m *Machine) serve() {
	buf := make([]byte, 65536)
	for {
		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < m.pad+scp.PacketSize(0, 0) {
			continue
		}
		pkt := make([]byte, n-m.pad)
		copy(pkt, buf[m.pad:n])
		m.handle(pkt, addr)
	}
}

func (m *Machine) handle(pkt []byte, addr *net.UDPAddr) {
	cmdRC, seq, nArgs, a1, a2, a3, payload := scp.Unpack(pkt, scp.MaxArgs)
	p := &Packet{
		CmdRC: cmdRC, SeqNum: seq, NArgs: nArgs,
		Arg1: a1, Arg2: a2, Arg3: a3, Payload: payload,
	}

	m.mu.Lock()
	m.datagrams++
	m.attempts[seq]++
	attempt := m.attempts[seq]
	filter := m.filter
	m.mu.Unlock()

	var act Action
	if filter != nil {
		act = filter(p, attempt)
	}
	if act.Drop {
		return
	}

	resp := m.respond(p, act)
	send := func() {
		for i := 0; i <= act.Duplicates; i++ {
			m.conn.WriteToUDP(resp, addr)
		}
	}
	if act.Delay > 0 {
		time.AfterFunc(act.Delay, send)
	} else {
		send()
	}
}

// respond builds the response datagram, padding included.
func (m *Machine) respond(p *Packet, act Action) []byte {
	switch p.CmdRC {
	case scp.CmdRead:
		rc := scp.RCOK
		if act.RC != 0 {
			rc = act.RC
		}
		var payload []byte
		if rc == scp.RCOK {
			m.mu.Lock()
			start := min(int(p.Arg1), len(m.mem))
			end := min(start+int(p.Arg2), len(m.mem))
			payload = append(payload, m.mem[start:end]...)
			m.mu.Unlock()
		}
		return m.pack(rc, p.SeqNum, payload)

	case scp.CmdWrite:
		rc := scp.RCOK
		if act.RC != 0 {
			rc = act.RC
		}
		if rc == scp.RCOK {
			m.mu.Lock()
			if off := int(p.Arg1); off < len(m.mem) {
				copy(m.mem[off:], p.Payload[:min(len(p.Payload), int(p.Arg2))])
			}
			m.mu.Unlock()
		}
		return m.pack(rc, p.SeqNum, nil)

	default:
		// Echo the request verbatim: same command, arguments and payload.
		return m.echo(p)
	}
}

// pack builds an argument-free response packet carrying rc and payload.
func (m *Machine) pack(rc, seq uint16, payload []byte) []byte {
	out := make([]byte, m.pad+scp.PacketSize(0, len(payload)))
	scp.Pack(out[m.pad:], len(payload), 0, 0, rc, seq, 0, 0, 0, 0, payload)
	return out
}

// echo rebuilds the request as its own response.
func (m *Machine) echo(p *Packet) []byte {
	out := make([]byte, m.pad+scp.PacketSize(p.NArgs, len(p.Payload)))
	scp.Pack(out[m.pad:], len(p.Payload), 0, 0, p.CmdRC, p.SeqNum,
		p.NArgs, p.Arg1, p.Arg2, p.Arg3, p.Payload)
	return out
}
