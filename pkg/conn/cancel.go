package conn

import "github.com/sirupsen/logrus"

// cancelSlot cancels the in-flight packet held by a slot, delivering err to
// the request's callback. For bulk read/write requests the cancellation
// cascades: every sibling fragment in the slot table is cancelled, the
// queued remainder of the request (if still at the head of the queue) is
// discarded, and exactly one of the cancellations — the one that finds no
// further siblings to cancel — delivers the callback.
//
// A slot whose send is still pending is only marked cancelled here; the
// send-completion handler performs the release.
func (c *Conn) cancelSlot(os *slot, err error, cmdRC uint16) {
	if !os.active || os.cancelled {
		return
	}

	if !os.sendActive {
		os.active = false
	} else {
		os.cancelled = true
	}
	os.timer.Stop()

	// With this slot's flags now set, a scan matches only siblings that
	// still need cancelling.
	othersToCancel := false
	if os.typ == reqRead || os.typ == reqWrite {
		for i := range c.slots {
			other := &c.slots[i]
			if other.active && !other.cancelled && other.typ == os.typ && other.rwID == os.rwID {
				othersToCancel = true
			}
		}
	}

	// Only the last sibling to be cancelled raises the callback, so the
	// user hears about the failure exactly once.
	if !othersToCancel {
		c.stats.failed.Add(1)
		c.log.WithFields(logrus.Fields{
			"seq": os.seqNum,
			"err": ErrName(err),
		}).Debug("request cancelled")
		switch os.typ {
		case reqSCPPacket:
			os.scpCB(c, err, cmdRC, 0, 0, 0, 0, os.data)
		case reqRead, reqWrite:
			os.rwCB(c, err, cmdRC, os.rwOrig)
		}
	}

	if os.typ == reqRead || os.typ == reqWrite {
		for i := range c.slots {
			other := &c.slots[i]
			if other.active && !other.cancelled && other.typ == os.typ && other.rwID == os.rwID {
				c.cancelSlot(other, err, cmdRC)
			}
		}

		// Discard the unissued remainder so no further fragments of the
		// failed request are scheduled.
		if req := c.requests.Peek(); req != nil && req.typ == os.typ && req.id == os.rwID {
			c.requests.Remove()
		}
	}

	// A slot may have been freed; try to issue more packets.
	c.processQueue()
}

// cancelQueued delivers err to a request that never left the queue. The
// caller removes the request; bulk requests with in-flight fragments must be
// cancelled through cancelSlot instead.
func (c *Conn) cancelQueued(req *request, err error) {
	c.stats.failed.Add(1)
	switch req.typ {
	case reqSCPPacket:
		req.scpCB(c, err, 0, 0, 0, 0, 0, req.data)
	case reqRead, reqWrite:
		req.rwCB(c, err, 0, req.orig)
	}
}
