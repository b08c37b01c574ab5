package conn

import (
	"github.com/sirupsen/logrus"

	"github.com/project-rig/rig-scp/pkg/scp"
)

// processQueue drives the scheduler: as long as there is both a free slot
// and a queued request, bind the head of the queue to a slot and start its
// transmission. Called after every event that frees a slot or enqueues a
// request.
func (c *Conn) processQueue() {
	if c.freeing {
		return
	}
	for {
		var os *slot
		for i := range c.slots {
			s := &c.slots[i]
			// A slot whose send is still pending cannot be reused: the
			// substrate owns its packet buffer.
			if !s.active && !s.sendActive {
				os = s
				break
			}
		}
		req := c.requests.Peek()
		if os == nil || req == nil {
			return
		}

		switch req.typ {
		case reqSCPPacket:
			c.bindSCPPacket(req, os)
			c.requests.Remove()
		case reqRead, reqWrite:
			// A bulk request stays at the head of the queue until its final
			// fragment has been issued.
			if c.bindRWFragment(req, os) {
				c.requests.Remove()
			}
		}

		c.attemptTransmission(os)
	}
}

// bindSCPPacket places a single-packet request into a free slot and packs
// its wire bytes.
func (c *Conn) bindSCPPacket(req *request, os *slot) {
	os.active = true
	os.cancelled = false
	os.typ = reqSCPPacket
	os.seqNum = c.nextSeqNum
	c.nextSeqNum++
	os.nTries = 0

	os.nArgsRecv = req.nArgsRecv
	os.data = req.data
	os.scpCB = req.scpCB

	n := scp.Pack(os.packet[c.pad:], c.dataLength,
		req.destAddr, req.destCPU, req.cmdRC, os.seqNum,
		req.nArgsSend, req.arg1, req.arg2, req.arg3, req.data)
	os.packetLen = c.pad + n

	c.log.WithFields(logrus.Fields{
		"seq": os.seqNum,
		"cmd": req.cmdRC,
	}).Debug("scp packet bound")
}

// bindRWFragment slices the next fragment off a bulk read/write request into
// a free slot, advancing the request's cursor. It reports whether this was
// the request's final fragment.
func (c *Conn) bindRWFragment(req *request, os *slot) bool {
	os.active = true
	os.cancelled = false
	os.typ = req.typ
	os.seqNum = c.nextSeqNum
	c.nextSeqNum++
	os.nTries = 0

	os.rwID = req.id
	os.rwOrig = req.orig
	os.rwCB = req.rwCB

	address := req.address
	l := len(req.cursor)
	if l > c.dataLength {
		l = c.dataLength
	}
	os.rwData = req.cursor[:l]
	req.address += uint32(l)
	req.cursor = req.cursor[l:]

	unit := scp.RWUnit(address, uint32(l))

	var cmd uint16
	var payload []byte
	if req.typ == reqRead {
		cmd = scp.CmdRead
	} else {
		cmd = scp.CmdWrite
		payload = os.rwData
	}
	n := scp.Pack(os.packet[c.pad:], c.dataLength,
		req.destAddr, req.destCPU, cmd, os.seqNum,
		3, address, uint32(l), uint32(unit), payload)
	os.packetLen = c.pad + n

	c.log.WithFields(logrus.Fields{
		"seq":     os.seqNum,
		"id":      os.rwID,
		"address": address,
		"len":     l,
	}).Debug("bulk fragment bound")

	return len(req.cursor) == 0
}
