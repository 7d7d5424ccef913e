package sample

// SeqChecker tracks the 4-bit VITA packet count of an inbound stream.
type SeqChecker struct {
	expected uint8
	synced   bool
	Lost     uint64
}

// Check reports whether seq is the expected successor. A mismatch is
// counted once and the checker resynchronises on the next packet.
func (c *SeqChecker) Check(seq uint8) bool {
	seq &= 0xF
	if !c.synced {
		c.synced = true
		c.expected = (seq + 1) & 0xF
		return true
	}
	if seq != c.expected {
		c.Lost++
		c.synced = false
		return false
	}
	c.expected = (seq + 1) & 0xF
	return true
}

// Reset forgets the expected count.
func (c *SeqChecker) Reset() {
	c.synced = false
}

// Counter produces the 4-bit packet count of an outbound stream.
type Counter struct {
	next uint8
}

// Next returns the count for the next packet.
func (c *Counter) Next() uint8 {
	n := c.next
	c.next = (c.next + 1) & 0xF
	return n
}
