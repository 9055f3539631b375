package book

// PriceLevel is a FIFO queue at a single price. Insertion order equals
// arrival-sequence order and defines time priority.
type PriceLevel struct {
	Price int64 // bid-space price (see CrossRule)

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	o.level = p
	p.TotalQty += o.Remaining()
	p.OrderCount++
}

func (p *PriceLevel) PopHead() *Order {
	o := p.head
	if o == nil {
		return nil
	}

	p.head = o.next
	if p.head != nil {
		p.head.prev = nil
	} else {
		p.tail = nil
	}

	o.next = nil
	o.prev = nil
	o.level = nil

	p.TotalQty -= o.Remaining()
	p.OrderCount--

	return o
}

// Unlink removes an order from the middle of the queue in O(1).
// Used by cancel via the book's order index.
func (p *PriceLevel) Unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}

	o.next = nil
	o.prev = nil
	o.level = nil

	p.TotalQty -= o.Remaining()
	p.OrderCount--
}

// reduce adjusts the level's visible quantity after a partial fill or an
// in-place quantity decrease.
func (p *PriceLevel) reduce(delta int64) {
	p.TotalQty -= delta
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Read-only helper
func (p *PriceLevel) Head() *Order {
	return p.head
}
