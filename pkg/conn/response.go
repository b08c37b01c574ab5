package conn

import "github.com/project-rig/rig-scp/pkg/scp"

// onRecv is the datagram dispatcher. Datagrams too short to be SCP packets,
// datagrams whose sequence number matches no outstanding packet, and
// duplicates (whose slot has already been released) are all silently
// ignored.
func (c *Conn) onRecv(data []byte) {
	if len(data) < c.pad+scp.PacketSize(0, 0) {
		c.stats.ignored.Add(1)
		return
	}
	pkt := data[c.pad:]

	seq := scp.SeqNum(pkt)
	for i := range c.slots {
		os := &c.slots[i]
		if os.active && !os.cancelled && os.seqNum == seq {
			c.processResponse(os, pkt)
			return
		}
	}
	c.stats.ignored.Add(1)
}

// processResponse handles a response matched to an outstanding slot, then
// releases the slot and re-runs the scheduler.
func (c *Conn) processResponse(os *slot, pkt []byte) {
	os.timer.Stop()
	c.stats.responses.Add(1)

	switch os.typ {
	case reqSCPPacket:
		c.responseSCPPacket(os, pkt)
	case reqRead, reqWrite:
		if !c.responseRW(os, pkt) {
			// The response reported an error; the cancellation cascade has
			// already released this slot and its siblings.
			return
		}
	}

	os.active = false
	c.processQueue()
}

// responseSCPPacket completes a single-packet request: the response payload
// is copied into the caller's buffer (truncated to its capacity) and the
// callback delivered.
func (c *Conn) responseSCPPacket(os *slot, pkt []byte) {
	cmdRC, _, nArgs, a1, a2, a3, payload := scp.Unpack(pkt, os.nArgsRecv)

	n := len(payload)
	if n > cap(os.data) {
		n = cap(os.data)
	}
	view := os.data[:n]
	copy(view, payload[:n])

	c.stats.completed.Add(1)
	os.scpCB(c, nil, cmdRC, nArgs, a1, a2, a3, view)
}

// responseRW handles one fragment response of a bulk read/write. A non-OK
// return code cancels the whole request (reporting false); otherwise read
// payloads are copied into the fragment's slice of the caller's buffer and,
// if this was the request's last in-flight fragment with nothing left to
// issue, the completion callback fires.
func (c *Conn) responseRW(os *slot, pkt []byte) bool {
	cmdRC, _, _, _, _, _, payload := scp.Unpack(pkt, 0)

	if cmdRC != scp.RCOK {
		c.cancelSlot(os, ErrBadReturnCode, cmdRC)
		return false
	}

	if os.typ == reqRead {
		n := len(os.rwData)
		if n > len(payload) {
			n = len(payload)
		}
		copy(os.rwData, payload[:n])
	}

	// This fragment completes the request iff no sibling is still in flight
	// and the queue head is not the unissued remainder of the same request.
	last := true
	for i := range c.slots {
		other := &c.slots[i]
		if other != os && other.active && other.typ == os.typ && other.rwID == os.rwID {
			last = false
		}
	}
	if req := c.requests.Peek(); req != nil && req.typ == os.typ && req.id == os.rwID {
		last = false
	}

	if last {
		c.stats.completed.Add(1)
		os.rwCB(c, nil, cmdRC, os.rwOrig)
	}
	return true
}
