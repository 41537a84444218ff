package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"carelay/go-backend/internal/domains/contracts"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	frameMessage = "message"
	frameSend    = "send"
	frameAck     = "ack"

	defaultAckTimeout = 30 * time.Second
	writeTimeout      = 10 * time.Second
	maxFrameSize      = 1 << 20
)

type frame struct {
	Type  string   `json:"type"`
	ID    string   `json:"id,omitempty"`
	Peer  string   `json:"peer,omitempty"`
	Text  string   `json:"text,omitempty"`
	Links []string `json:"links,omitempty"`
	Error string   `json:"error,omitempty"`
}

type Config struct {
	URL        string
	Token      string
	AckTimeout time.Duration
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Client speaks the bridge protocol: inbound message frames are pushed to
// the relay, outbound sends are acknowledged by id.
type Client struct {
	url        string
	token      string
	ackTimeout time.Duration
	dialer     *websocket.Dialer
	logger     *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	pending map[string]chan frame

	writeMu sync.Mutex
}

func New(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryConfig,
			fmt.Errorf("%w: bridge url is required", contracts.ErrInvalidConfig))
	}
	ackTimeout := cfg.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        url,
		token:      cfg.Token,
		ackTimeout: ackTimeout,
		dialer:     dialer,
		logger:     logger,
		pending:    make(map[string]chan frame),
	}, nil
}

// Run dials the bridge and reads frames until ctx ends or the connection
// drops. A dropped connection is reported as ErrTransportClosed.
func (c *Client) Run(ctx context.Context, inbound chan<- contracts.InboundMessage) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, fmt.Errorf("dial bridge: %w", err))
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()
	c.logger.Info("bridge connected", "bridge_url", c.url)

	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	})
	defer stop()
	defer c.disconnect(conn, done)

	// Message frames go through a mailbox so a slow consumer never keeps
	// the read loop from seeing acks.
	box := newMailbox()
	deliverCtx, cancelDeliver := context.WithCancel(ctx)
	var delivering sync.WaitGroup
	delivering.Add(1)
	go func() {
		defer delivering.Done()
		box.drain(deliverCtx, inbound)
	}()
	defer delivering.Wait()
	defer cancelDeliver()

	conn.SetReadLimit(maxFrameSize)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork,
				fmt.Errorf("%w: %v", contracts.ErrTransportClosed, err))
		}
		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			c.logger.Warn("discarding malformed bridge frame", "error", err.Error())
			continue
		}
		switch f.Type {
		case frameMessage:
			box.push(contracts.InboundMessage{
				ID:         f.ID,
				Peer:       f.Peer,
				Text:       f.Text,
				Links:      f.Links,
				ReceivedAt: time.Now(),
			})
		case frameAck:
			c.resolve(f)
		default:
			c.logger.Debug("ignoring bridge frame", "type", f.Type)
		}
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SendMessage writes a send frame and waits for its ack.
func (c *Client) SendMessage(ctx context.Context, peer, text string) error {
	id := uuid.NewString()
	ack := make(chan frame, 1)

	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		c.mu.Unlock()
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, contracts.ErrTransportClosed)
	}
	c.pending[id] = ack
	c.mu.Unlock()
	defer c.forget(id)

	payload, err := json.Marshal(frame{Type: frameSend, ID: id, Peer: peer, Text: text})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, fmt.Errorf("write send frame: %w", err))
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case f := <-ack:
		if f.Error != "" {
			return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, fmt.Errorf("bridge rejected send to %s: %s", peer, f.Error))
		}
		return nil
	case <-done:
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, contracts.ErrTransportClosed)
	case <-timer.C:
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, fmt.Errorf("send to %s: ack timeout after %s", peer, c.ackTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) resolve(f frame) {
	c.mu.Lock()
	ack, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("ack for unknown send", "id", f.ID)
		return
	}
	ack <- f
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) disconnect(conn *websocket.Conn, done chan struct{}) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.done = nil
	}
	c.mu.Unlock()
	close(done)
	if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("bridge close", "error", err.Error())
	}
	c.logger.Info("bridge disconnected", "bridge_url", c.url)
}
