package pipeline

import (
	"context"
	"sync"

	"carelay/go-backend/internal/domains/contracts"
)

const defaultPeerQueueSize = 64

// Handler is what the router feeds; *Service satisfies it.
type Handler interface {
	HandleInbound(ctx context.Context, msg contracts.InboundMessage)
}

// Router keeps per-peer arrival order while letting different peers
// proceed independently: each peer gets its own worker goroutine.
type Router struct {
	handler   Handler
	queueSize int

	mu      sync.Mutex
	queues  map[string]chan contracts.InboundMessage
	workers sync.WaitGroup
}

func NewRouter(handler Handler, queueSize int) *Router {
	if queueSize <= 0 {
		queueSize = defaultPeerQueueSize
	}
	return &Router{
		handler:   handler,
		queueSize: queueSize,
		queues:    make(map[string]chan contracts.InboundMessage),
	}
}

// Run drains inbound until it is closed or ctx ends, then waits for the
// peer workers to finish what they already hold.
func (r *Router) Run(ctx context.Context, inbound <-chan contracts.InboundMessage) error {
	defer r.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			q := r.queueFor(ctx, msg.Peer)
			select {
			case q <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *Router) queueFor(ctx context.Context, peer string) chan contracts.InboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[peer]
	if ok {
		return q
	}
	q = make(chan contracts.InboundMessage, r.queueSize)
	r.queues[peer] = q
	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		for msg := range q {
			r.handler.HandleInbound(ctx, msg)
		}
	}()
	return q
}

func (r *Router) shutdown() {
	r.mu.Lock()
	for peer, q := range r.queues {
		close(q)
		delete(r.queues, peer)
	}
	r.mu.Unlock()
	r.workers.Wait()
}
