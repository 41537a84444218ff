package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"carelay/go-backend/internal/bootstrap/relayconfig"
	"carelay/go-backend/internal/domains/contracts"
	"carelay/go-backend/internal/transport/membus"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	solAddress = "So11111111111111111111111111111111111111112"
	bnbAddress = "0x55d398326f99059fF775485246999027B3197955"
)

func testConfig() relayconfig.Config {
	cfg := relayconfig.DefaultConfig()
	cfg.Transport.Kind = relayconfig.TransportMock
	cfg.Health.Listen = "127.0.0.1:0"
	cfg.Outbound.RatePerSecond = 1000
	cfg.Outbound.Burst = 100
	return cfg
}

// metricValue reads one counter or gauge sample from the relay registry; a series
// that was never touched reads as zero.
func metricValue(t *testing.T, r *Relay, name string, labels ...string) float64 {
	t.Helper()
	families, err := r.Metrics().Registry().Gather()
	require.NoError(t, err)
	want := map[string]string{}
	for i := 0; i+1 < len(labels); i += 2 {
		want[labels[i]] = labels[i+1]
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if want[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				if gauge := metric.GetGauge(); gauge != nil {
					return gauge.GetValue()
				}
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func startRelay(t *testing.T, cfg relayconfig.Config, bus *membus.Bus) *Relay {
	t.Helper()
	r, err := New(cfg, Options{Transport: bus, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(6 * time.Second):
			t.Error("relay did not stop")
		}
	})
	require.Eventually(t, bus.Connected, 2*time.Second, 5*time.Millisecond)
	return r
}

// agents makes the scanner echo a report naming the address and the analyst
// acknowledge every command.
func agents(bus *membus.Bus, cfg relayconfig.Config) {
	bus.Respond(cfg.SOL.Scanner, func(text string) []contracts.InboundMessage {
		return []contracts.InboundMessage{{Text: "Scan report\nCA: " + text + "\nHolders: 412"}}
	})
	bus.Respond(cfg.SOL.Analyst, func(text string) []contracts.InboundMessage {
		return []contracts.InboundMessage{{Text: "analysis for " + text}}
	})
}

func TestSolanaAddressIsRelayedEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bus := membus.New()
	agents(bus, cfg)
	r := startRelay(t, cfg, bus)

	require.NoError(t, bus.Inject(context.Background(), cfg.SOL.Source, "🔥 New trending token "+solAddress))

	require.Eventually(t, func() bool {
		return len(bus.SentTo(cfg.SOL.Destination)) == 1
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{solAddress}, bus.SentTo(cfg.SOL.Scanner))
	assert.Equal(t, []string{"/th " + solAddress, "/tt " + solAddress}, bus.SentTo(cfg.SOL.Analyst))
	assert.Equal(t, []string{solAddress}, bus.SentTo(cfg.SOL.Destination))
	require.Eventually(t, func() bool { return r.Service().Store().Len() == 0 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, metricValue(t, r, "carelay_pipeline_started_total", "chain", "sol"))
	assert.Equal(t, 1.0, metricValue(t, r, "carelay_pipeline_forwarded_total", "chain", "sol", "outcome", "ok"))
}

func TestBNBAddressIsRelayedEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bus := membus.New()
	agents(bus, cfg)
	startRelay(t, cfg, bus)

	require.NoError(t, bus.Inject(context.Background(), cfg.BNB.Source, "🪙 Signal\n"+bnbAddress))

	require.Eventually(t, func() bool {
		return len(bus.SentTo(cfg.BNB.Destination)) == 1
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{bnbAddress, "/tt " + bnbAddress}, bus.SentTo(cfg.BNB.Analyst))
	assert.Empty(t, bus.SentTo(cfg.SOL.Destination))
}

func TestMessagesWithoutMarkerAreIgnored(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bus := membus.New()
	r := startRelay(t, cfg, bus)

	require.NoError(t, bus.Inject(context.Background(), cfg.SOL.Source, "plain text "+solAddress))
	require.NoError(t, bus.Inject(context.Background(), "someone_else", "🔥 "+solAddress))
	require.NoError(t, bus.Inject(context.Background(), cfg.SOL.Source, "🔥 marker"))

	require.Eventually(t, func() bool {
		return metricValue(t, r, "carelay_pipeline_skipped_total", "chain", "sol", "reason", "no_address") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, metricValue(t, r, "carelay_pipeline_skipped_total", "chain", "sol", "reason", "marker"))
	assert.Empty(t, bus.Sent())
	assert.Zero(t, r.Service().Store().Len())
}

func TestHealthEndpointTracksTransport(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bus := membus.New()
	r, err := New(cfg, Options{Transport: bus, Logger: quietLogger()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, bus.Connected, 2*time.Second, 5*time.Millisecond)

	rec = httptest.NewRecorder()
	r.health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relay is running and connected.", rec.Body.String())

	rec = httptest.NewRecorder()
	r.health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	cancel()
	require.NoError(t, <-done)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := relayconfig.DefaultConfig()
	cfg.Transport.BridgeURL = ""
	_, err := New(cfg, Options{Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrInvalidConfig))
	assert.Equal(t, contracts.ErrorCategoryConfig, contracts.ErrorCategory(err))
}

func TestNewBuildsWebsocketTransport(t *testing.T) {
	t.Parallel()

	cfg := relayconfig.DefaultConfig()
	cfg.Transport.BridgeURL = "ws://127.0.0.1:1/bridge"
	cfg.Health.Listen = "127.0.0.1:0"
	r, err := New(cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.False(t, r.transport.Connected())
}

func TestRunFailsWhenTransportDrops(t *testing.T) {
	t.Parallel()

	cfg := relayconfig.DefaultConfig()
	cfg.Transport.BridgeURL = "ws://127.0.0.1:1/bridge"
	cfg.Health.Listen = "127.0.0.1:0"
	r, err := New(cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = r.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
	assert.Equal(t, 1.0, metricValue(t, r, "carelay_errors_total", "category", contracts.ErrorCategoryNetwork))
}

func TestPrintFlow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, PrintFlow(&buf))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "digraph"))
	assert.Contains(t, out, "awaiting_step_two_reply")
	assert.Contains(t, out, "forwarded")
}

// ackingBridge emits one BNB source frame per address, then acknowledges
// every send frame as soon as it arrives.
func ackingBridge(t *testing.T, source string, addrs []string) (*httptest.Server, func() int) {
	t.Helper()
	var mu sync.Mutex
	sends := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for i, addr := range addrs {
			frame, _ := json.Marshal(map[string]string{
				"type": "message", "id": fmt.Sprintf("src-%d", i), "peer": source, "text": "🪙 " + addr,
			})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var send struct {
				Type string `json:"type"`
				ID   string `json:"id"`
			}
			if err := json.Unmarshal(payload, &send); err != nil || send.Type != "send" {
				continue
			}
			mu.Lock()
			sends++
			mu.Unlock()
			ack, _ := json.Marshal(map[string]string{"type": "ack", "id": send.ID})
			if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return sends
	}
}

func TestAckedSendsCountAsDeliveredWithTinyQueues(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	addrs := make([]string, 6)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("0x%040x", i+1)
	}
	srv, sends := ackingBridge(t, cfg.BNB.Source, addrs)
	cfg.Transport.Kind = relayconfig.TransportWebsocket
	cfg.Transport.BridgeURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.Transport.AckTimeout = 2 * time.Second
	cfg.Outbound.PeerQueueSize = 1

	r, err := New(cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return metricValue(t, r, "carelay_outbound_sends_total", "outcome", "ok") == float64(len(addrs))
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, len(addrs), sends())
	assert.Zero(t, metricValue(t, r, "carelay_outbound_sends_total", "outcome", "failed"))
}

// syncBuffer lets the relay goroutines and the test share a log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestShutdownLogsPendingInstances(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bus := membus.New()
	logs := &syncBuffer{}
	r, err := New(cfg, Options{Transport: bus, Logger: NewLogger("info", logs)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, bus.Connected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Inject(context.Background(), cfg.BNB.Source, "🪙 "+bnbAddress))
	require.Eventually(t, func() bool { return r.Service().Store().Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	out := logs.String()
	assert.Contains(t, out, `"msg":"instance pending at shutdown"`)
	assert.Contains(t, out, `"address":"`+bnbAddress+`"`)
	assert.Contains(t, out, `"stage":"awaiting_step_one_reply"`)
	assert.Contains(t, out, `"pending":1`)
}

func TestPendingGaugeStartsAtZeroForEveryStage(t *testing.T) {
	t.Parallel()

	r, err := New(testConfig(), Options{Transport: membus.New(), Logger: quietLogger()})
	require.NoError(t, err)

	families, err := r.Metrics().Registry().Gather()
	require.NoError(t, err)
	series := 0
	for _, family := range families {
		if family.GetName() == "carelay_pipeline_pending" {
			series = len(family.GetMetric())
		}
	}
	assert.Equal(t, 7, series)
	assert.Zero(t, metricValue(t, r, "carelay_pipeline_pending", "chain", "sol", "stage", "sent_to_scanner"))
}
