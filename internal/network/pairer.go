package network

import "sync"

// Pairer is the single-slot rendezvous that matches connections two at a
// time in arrival order. Parking and pairing happen under one lock, so two
// concurrent offers can never both see the slot empty and strand a
// connection.
type Pairer struct {
	mu      sync.Mutex
	waiting *Connection
}

// NewPairer creates an empty Pairer.
func NewPairer() *Pairer {
	return &Pairer{}
}

// Offer either takes the parked connection and returns it as c's partner
// (paired == true), or parks c until the next offer.
func (p *Pairer) Offer(c *Connection) (partner *Connection, paired bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w := p.waiting; w != nil && !w.IsClosed() {
		p.waiting = nil
		return w, true
	}

	p.waiting = c
	// A parked connection that closes frees the slot.
	c.OnClose(func() { p.release(c) })
	return nil, false
}

func (p *Pairer) release(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiting == c {
		p.waiting = nil
	}
}

// Parked returns the live connection in the slot, or nil.
func (p *Pairer) Parked() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiting != nil && p.waiting.IsClosed() {
		p.waiting = nil
	}
	return p.waiting
}

// Waiting returns the number of live parked connections, zero or one.
func (p *Pairer) Waiting() int {
	if p.Parked() != nil {
		return 1
	}
	return 0
}

// Drain removes and returns the parked connection, if any.
func (p *Pairer) Drain() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.waiting
	p.waiting = nil
	return c
}
