package session

import "sync"

// outbox is an unbounded FIFO in front of the events channel, so producers
// holding the session lock never block on a slow consumer.
type outbox struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	notify chan struct{}
	out    chan Event
}

func newOutbox(buffer int) *outbox {
	o := &outbox{
		notify: make(chan struct{}, 1),
		out:    make(chan Event, buffer),
	}
	go o.run()
	return o
}

func (o *outbox) push(ev Event) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, ev)
	o.mu.Unlock()
	o.signal()
}

// close delivers what is queued and then closes the events channel.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *outbox) run() {
	defer close(o.out)
	for range o.notify {
		o.mu.Lock()
		batch := o.queue
		o.queue = nil
		closed := o.closed
		o.mu.Unlock()

		for _, ev := range batch {
			o.out <- ev
		}
		if closed {
			return
		}
	}
}
