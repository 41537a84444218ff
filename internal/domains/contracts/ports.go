package contracts

import (
	"context"
	"time"
)

// InboundMessage is one message event delivered by the session layer.
type InboundMessage struct {
	ID         string
	Peer       string
	Text       string
	Links      []string
	ReceivedAt time.Time
}

// Sender delivers a text payload to a named peer.
type Sender interface {
	SendMessage(ctx context.Context, peer, text string) error
}

// Transport is the messaging session seen by the relay: it pushes inbound
// events into the supplied channel until ctx ends or the session drops.
type Transport interface {
	Sender
	Run(ctx context.Context, inbound chan<- InboundMessage) error
	Connected() bool
}
