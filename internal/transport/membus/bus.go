package membus

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"carelay/go-backend/internal/domains/contracts"
)

// Responder emulates a remote agent: it receives a message sent to its peer
// and returns replies that are delivered back as inbound events.
type Responder func(text string) []contracts.InboundMessage

// Sent is one outbound message recorded by the bus.
type Sent struct {
	Peer string
	Text string
}

// Bus is an in-process transport. Messages injected before Run are queued
// and delivered once a consumer attaches.
type Bus struct {
	mu         sync.Mutex
	inbound    chan<- contracts.InboundMessage
	done       <-chan struct{}
	mailbox    []contracts.InboundMessage
	sent       []Sent
	responders map[string]Responder
	failures   map[string]error
	seq        uint64
	running    bool
	now        func() time.Time
}

func New() *Bus {
	return &Bus{
		responders: make(map[string]Responder),
		failures:   make(map[string]error),
		now:        time.Now,
	}
}

// Run attaches inbound as the delivery channel and blocks until ctx ends.
func (b *Bus) Run(ctx context.Context, inbound chan<- contracts.InboundMessage) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("membus: already running")
	}
	b.running = true
	b.inbound = inbound
	b.done = ctx.Done()
	pending := append([]contracts.InboundMessage(nil), b.mailbox...)
	b.mailbox = nil
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.inbound = nil
		b.done = nil
		b.mu.Unlock()
	}()

	for _, msg := range pending {
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Inject delivers a message as if it arrived from peer.
func (b *Bus) Inject(ctx context.Context, peer, text string, links ...string) error {
	return b.publish(ctx, b.message(peer, text, links))
}

// SendMessage records the send and feeds any responder replies back in.
func (b *Bus) SendMessage(ctx context.Context, peer, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if err := b.failures[peer]; err != nil {
		b.mu.Unlock()
		return err
	}
	b.sent = append(b.sent, Sent{Peer: peer, Text: text})
	responder := b.responders[peer]
	b.mu.Unlock()

	if responder == nil {
		return nil
	}
	replies := responder(text)
	for i := range replies {
		if replies[i].Peer == "" {
			replies[i].Peer = peer
		}
		replies[i] = b.fill(replies[i])
	}
	if len(replies) > 0 {
		// Delivered asynchronously so a send never waits on its own reply.
		go func() {
			for _, msg := range replies {
				if err := b.publish(context.Background(), msg); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

// Respond installs a responder for peer; nil removes it.
func (b *Bus) Respond(peer string, responder Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if responder == nil {
		delete(b.responders, peer)
		return
	}
	b.responders[peer] = responder
}

// FailSendsTo makes every send to peer return err; nil clears it.
func (b *Bus) FailSendsTo(peer string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, peer)
		return
	}
	b.failures[peer] = err
}

// Sent returns a copy of every recorded outbound message.
func (b *Bus) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// SentTo returns the texts sent to peer in order.
func (b *Bus) SentTo(peer string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, s := range b.sent {
		if s.Peer == peer {
			out = append(out, s.Text)
		}
	}
	return out
}

func (b *Bus) publish(ctx context.Context, msg contracts.InboundMessage) error {
	b.mu.Lock()
	inbound, done := b.inbound, b.done
	if inbound == nil {
		b.mailbox = append(b.mailbox, msg)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case inbound <- msg:
		return nil
	case <-done:
		return contracts.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) message(peer, text string, links []string) contracts.InboundMessage {
	return b.fill(contracts.InboundMessage{
		Peer:  peer,
		Text:  text,
		Links: append([]string(nil), links...),
	})
}

func (b *Bus) fill(msg contracts.InboundMessage) contracts.InboundMessage {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()
	if msg.ID == "" {
		msg.ID = "mem-" + strconv.FormatUint(seq, 10)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = b.now()
	}
	return msg
}
