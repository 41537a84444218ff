package wsbridge

import (
	"context"
	"sync"

	"carelay/go-backend/internal/domains/contracts"
)

// mailbox is an unbounded FIFO between the socket reader and the relay.
type mailbox struct {
	mu     sync.Mutex
	items  []contracts.InboundMessage
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(msg contracts.InboundMessage) {
	m.mu.Lock()
	m.items = append(m.items, msg)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []contracts.InboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// drain forwards pushed messages to out in order until ctx ends.
func (m *mailbox) drain(ctx context.Context, out chan<- contracts.InboundMessage) {
	for {
		for _, msg := range m.take() {
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-m.signal:
		case <-ctx.Done():
			return
		}
	}
}
