package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/hub"
	"github.com/humanophone/humanophone/internal/logging"
	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/theory"
	"github.com/humanophone/humanophone/internal/ws"
)

const waitFor = 2 * time.Second

// startRelay runs a real relay and returns its websocket URL.
func startRelay(t *testing.T) (string, *hub.Hub) {
	t.Helper()
	cfg := config.Default()
	h := hub.New(16)
	srv := ws.NewServer(cfg, h, logging.Discard(), nil)
	httpSrv := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Shutdown()
		httpSrv.Close()
		h.Close()
	})
	return "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/", h
}

// mute is a relay stand-in that accepts connections, records what clients
// send, and never answers.
type mute struct {
	url      string
	received chan protocol.Message
	conns    chan struct{}
}

func startMute(t *testing.T) *mute {
	t.Helper()
	m := &mute{
		received: make(chan protocol.Message, 64),
		conns:    make(chan struct{}, 16),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.conns <- struct{}{}
		go func() {
			defer c.Close()
			for {
				_, data, err := c.ReadMessage()
				if err != nil {
					return
				}
				if msg, err := protocol.DecodeClient(data); err == nil {
					m.received <- msg
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	m.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	return m
}

func (m *mute) expect(t *testing.T, want protocol.Message) {
	t.Helper()
	select {
	case got := <-m.received:
		assert.Equal(t, want, got)
	case <-time.After(waitFor):
		t.Fatalf("mute relay did not receive %s", want.Type())
	}
}

type chanSource chan protocol.Message

func (c chanSource) Events() <-chan protocol.Message { return c }

func testOptions(url, id string) Options {
	return Options{URL: url, ID: id, Logger: logging.Discard()}
}

func TestConsumer_RendersPublishedChord(t *testing.T) {
	url, h := startRelay(t)
	dialer, err := NewDialer(config.ClientConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rendered := make(chan protocol.Message, 8)
	go RunConsumer(ctx, dialer, testOptions(url, "screen"), RenderFunc(func(m protocol.Message) {
		rendered <- m
	}))
	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, waitFor, 5*time.Millisecond)

	chord, ok := theory.Detect(theory.NewNoteSet(48, 52, 55, 58, 62))
	require.True(t, ok)

	src := make(chanSource, 4)
	src <- protocol.PublishChord{Chord: chord}
	close(src)

	err = RunPublisher(ctx, dialer, testOptions(url, "keys"), src)
	assert.ErrorIs(t, err, ErrSourceExhausted)

	for _, want := range []protocol.Message{protocol.ChordEvent{Chord: chord}, protocol.Silence{}} {
		select {
		case got := <-rendered:
			assert.Equal(t, want, got)
		case <-time.After(waitFor):
			t.Fatalf("consumer did not render %s", want.Type())
		}
	}
}

func TestPublisher_AnnouncesThenSends(t *testing.T) {
	m := startMute(t)
	dialer, err := NewDialer(config.ClientConfig{})
	require.NoError(t, err)

	connected := make(chan struct{}, 1)
	opts := testOptions(m.url, "keys")
	opts.OnConnect = func() { connected <- struct{}{} }

	src := make(chanSource, 4)
	src <- protocol.PublishPitches{Pitches: theory.NewNoteSet(60, 61)}
	src <- protocol.Ping{} // not a publication
	close(src)

	err = RunPublisher(context.Background(), dialer, opts, src)
	assert.ErrorIs(t, err, ErrSourceExhausted)
	<-connected

	m.expect(t, protocol.ProtocolVersion{Version: protocol.Version})
	m.expect(t, protocol.IAmPublisher{ID: "keys"})
	m.expect(t, protocol.PublishPitches{Pitches: theory.NewNoteSet(60, 61)})
	m.expect(t, protocol.PublishSilence{})
}

func TestConsumer_MissingPongFails(t *testing.T) {
	m := startMute(t)
	clock := clockwork.NewFakeClock()
	dialer, err := NewDialer(config.ClientConfig{})
	require.NoError(t, err)

	opts := testOptions(m.url, "screen")
	opts.Clock = clock
	opts.Heartbeat = config.HeartbeatConfig{
		Enabled:      true,
		PingInterval: 10 * time.Second,
		PongTimeout:  5 * time.Second,
		PeerTimeout:  time.Hour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- RunConsumer(ctx, dialer, opts, RenderFunc(func(protocol.Message) {})) }()

	m.expect(t, protocol.ProtocolVersion{Version: protocol.Version})
	m.expect(t, protocol.IAmConsumer{ID: "screen"})

	// Ticker and silence watchdog.
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(10 * time.Second)
	m.expect(t, protocol.Ping{})

	// Pong watchdog armed after the Ping.
	require.NoError(t, clock.BlockUntilContext(ctx, 3))
	clock.Advance(4 * time.Second)
	select {
	case err := <-done:
		t.Fatalf("failed before the pong deadline: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, protocol.ErrPeerUnresponsive)
		assert.ErrorIs(t, err, protocol.ErrLivenessTimeout)
	case <-time.After(waitFor):
		t.Fatal("client did not give up after the pong deadline")
	}
}

func TestConsumer_PongKeepsConnection(t *testing.T) {
	url, _ := startRelay(t)
	clock := clockwork.NewFakeClock()
	dialer, err := NewDialer(config.ClientConfig{})
	require.NoError(t, err)

	opts := testOptions(url, "screen")
	opts.Clock = clock
	opts.Heartbeat = config.HeartbeatConfig{
		Enabled:      true,
		PingInterval: 10 * time.Second,
		PongTimeout:  5 * time.Second,
		PeerTimeout:  15 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- RunConsumer(ctx, dialer, opts, RenderFunc(func(protocol.Message) {})) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	for i := 0; i < 3; i++ {
		clock.Advance(10 * time.Second)
		// The real relay answers; give the pong time to arrive.
		time.Sleep(50 * time.Millisecond)
	}

	select {
	case err := <-done:
		t.Fatalf("connection dropped despite pongs: %v", err)
	default:
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// A client whose relay stops answering pings reconnects after the pause.
func TestSupervisor_ReconnectsAfterPongDeadline(t *testing.T) {
	m := startMute(t)
	clock := clockwork.NewFakeClock()
	dialer, err := NewDialer(config.ClientConfig{})
	require.NoError(t, err)

	opts := testOptions(m.url, "screen")
	opts.Clock = clock
	opts.Heartbeat = config.HeartbeatConfig{
		Enabled:      true,
		PingInterval: 10 * time.Second,
		PongTimeout:  time.Second,
		PeerTimeout:  time.Hour,
	}

	sup := NewSupervisor(config.ReconnectConfig{
		BaseDelay: 500 * time.Millisecond,
		Jitter:    500 * time.Millisecond,
	}, clock, logging.Discard())
	retries := make(chan time.Duration, 4)
	sup.OnRetry = func(_ int, err error, delay time.Duration) {
		assert.ErrorIs(t, err, protocol.ErrPeerUnresponsive)
		retries <- delay
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx, ConsumerAttempt(dialer, opts, RenderFunc(func(protocol.Message) {})))
	}()

	<-m.conns
	m.expect(t, protocol.ProtocolVersion{Version: protocol.Version})
	m.expect(t, protocol.IAmConsumer{ID: "screen"})

	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(10 * time.Second)
	m.expect(t, protocol.Ping{})
	require.NoError(t, clock.BlockUntilContext(ctx, 3))
	clock.Advance(time.Second)

	var delay time.Duration
	select {
	case delay = <-retries:
	case <-time.After(waitFor):
		t.Fatal("supervisor did not schedule a retry")
	}
	assert.GreaterOrEqual(t, delay, 500*time.Millisecond)
	assert.Less(t, delay, time.Second)

	// Only the supervisor's pause is pending now.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(delay)

	select {
	case <-m.conns:
	case <-time.After(waitFor):
		t.Fatal("client did not reconnect")
	}
	m.expect(t, protocol.ProtocolVersion{Version: protocol.Version})

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunConsumer_DialFailure(t *testing.T) {
	dialer, err := NewDialer(config.ClientConfig{})
	require.NoError(t, err)

	err = RunConsumer(context.Background(), dialer, testOptions("ws://127.0.0.1:1/", "x"), LogRenderer{Logger: logging.Discard()})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSourceExhausted))
}

func TestResolveURL(t *testing.T) {
	got, err := ResolveURL("ws://relay.local:8000/", true)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.local:8000/", got)

	got, err = ResolveURL("ws://relay.local:8000/", false)
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.local:8000/", got)

	_, err = ResolveURL("http://relay.local", false)
	assert.Error(t, err)
}

func TestNewDialer_TLS(t *testing.T) {
	d, err := NewDialer(config.ClientConfig{TLS: config.ClientTLS{Enabled: true, InsecureSkipVerify: true}})
	require.NoError(t, err)
	require.NotNil(t, d.TLSClientConfig)
	assert.True(t, d.TLSClientConfig.InsecureSkipVerify)

	_, err = NewDialer(config.ClientConfig{TLS: config.ClientTLS{Enabled: true, CAFile: filepath.Join(t.TempDir(), "missing.pem")}})
	assert.Error(t, err)

	bogus := filepath.Join(t.TempDir(), "bogus.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o600))
	_, err = NewDialer(config.ClientConfig{TLS: config.ClientTLS{Enabled: true, CAFile: bogus}})
	assert.Error(t, err)
}
