package conn

// attemptTransmission (re-)transmits a slot's packet unless the attempt
// budget is exhausted, in which case the request is cancelled with
// ErrTimeout. The slot must have been active when the caller last observed
// it; a concurrent cancellation makes this a no-op.
func (c *Conn) attemptTransmission(os *slot) {
	if !os.active {
		return
	}

	os.nTries++
	if os.nTries > c.attempts {
		c.stats.timeouts.Add(1)
		c.log.WithField("seq", os.seqNum).Debug("attempts exhausted")
		c.cancelSlot(os, ErrTimeout, 0)
		return
	}
	if os.nTries > 1 {
		c.stats.retransmits.Add(1)
		c.log.WithField("seq", os.seqNum).Debug("retransmitting")
	}

	os.sendActive = true
	c.stats.packetsSent.Add(1)
	c.sock.Send(os.packet[:os.packetLen], func(err error) {
		c.sendDone(os, err)
	})
}

// sendDone is the send-completion handler: it arms the response timer, or
// finishes a deferred cancellation, or resumes teardown, depending on what
// happened while the send was in flight.
func (c *Conn) sendDone(os *slot, err error) {
	os.sendActive = false

	// Teardown was waiting on this send before releasing the slot buffers.
	if c.freeing {
		c.teardown(nil)
		return
	}

	// A deferred cancellation can now complete and release the slot.
	if os.active && os.cancelled {
		os.active = false
		os.cancelled = false
		c.processQueue()
		return
	}

	if err != nil && os.active {
		c.cancelSlot(os, err, 0)
		return
	}

	if os.active {
		os.timer.Start(c.timeout, func() { c.onTimeout(os) })
	} else {
		// The response arrived before the send completed; the slot is only
		// now reusable.
		c.processQueue()
	}
}

// onTimeout fires when a response did not arrive within the per-attempt
// timeout.
func (c *Conn) onTimeout(os *slot) {
	c.attemptTransmission(os)
}
