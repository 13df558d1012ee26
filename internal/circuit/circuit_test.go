package circuit

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/gridwire/internal/capture"
	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/danmuck/gridwire/internal/protocol/catalog"
	"github.com/danmuck/gridwire/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	records []capture.Record
}

func (s *memorySink) Append(bucket string, rec capture.Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return uint64(len(s.records)), nil
}

func (s *memorySink) snapshot() []capture.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capture.Record(nil), s.records...)
}

func startEndpoint(t *testing.T, cfg Config, opts ...Option) *Endpoint {
	t.Helper()
	codec, err := catalog.Codec(protocol.DefaultLimits())
	require.NoError(t, err)
	cfg.ListenAddr = "127.0.0.1:0"
	e, err := Listen(cfg, codec, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Errorf("serve did not stop")
		}
		_ = e.Close()
	})
	return e
}

func TestBackoffDelay(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	if got := cfg.Delay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.Delay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.Delay(9, nil); got != 5*time.Second {
		t.Fatalf("attempt9 got=%v", got)
	}
	cfg.Jitter = true
	got := cfg.Delay(2, rand.New(rand.NewSource(1)))
	if got < 250*time.Millisecond || got > 750*time.Millisecond {
		t.Fatalf("jittered attempt2 got=%v", got)
	}
}

func TestPingRoundTripOverLoopback(t *testing.T) {
	testlog.Start(t)
	serverSink := &memorySink{}
	server := startEndpoint(t, DefaultConfig(), WithCapture(serverSink, "server"), WithNode("test-server"))

	clientCfg := DefaultConfig()
	clientCfg.RespondToPings = false
	client := startEndpoint(t, clientCfg, WithNode("test-client"))

	replies := make(chan *protocol.Message, 1)
	require.NoError(t, client.Handle("CompletePingCheck", func(_ context.Context, from *net.UDPAddr, m *protocol.Message) error {
		replies <- m
		return nil
	}))

	ping, err := client.Codec().Registry().New("StartPingCheck")
	require.NoError(t, err)
	require.NoError(t, ping.Set("PingID", 0, "PingID", protocol.U8(7)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seq, err := client.Send(ctx, server.Addr(), ping)
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	select {
	case reply := <-replies:
		assert.Equal(t, "CompletePingCheck", reply.Name())
		assert.EqualValues(t, 7, reply.Get("PingID", 0, "PingID").Uint())
		assert.EqualValues(t, 1, reply.Header.Sequence)
	case <-ctx.Done():
		t.Fatalf("no ping reply")
	}

	seq, err = client.Send(ctx, server.Addr(), ping)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)

	require.Eventually(t, func() bool {
		p, ok := server.Peers().Get(client.Addr().String())
		return ok && p.Received == 2 && p.Sent == 2 && p.LastSequence == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return len(serverSink.snapshot()) >= 4 }, 2*time.Second, 10*time.Millisecond)
	recs := serverSink.snapshot()
	assert.Equal(t, capture.DirectionIn, recs[0].Direction)
	assert.Equal(t, client.Addr().String(), recs[0].Remote)
}

func TestMalformedDatagramIsNotFatal(t *testing.T) {
	testlog.Start(t)
	server := startEndpoint(t, DefaultConfig())
	received := make(chan string, 1)
	require.NoError(t, server.Handle("CloseCircuit", func(_ context.Context, _ *net.UDPAddr, m *protocol.Message) error {
		received <- m.Name()
		return nil
	}))

	conn, err := net.DialUDP("udp", nil, server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0, 1, 0, 0, 0, 0xFF})
	require.NoError(t, err)
	_, err = conn.Write([]byte{0, 2, 0, 0, 0, 0xFF, 0xFF, 0xFD, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)

	select {
	case name := <-received:
		assert.Equal(t, "CloseCircuit", name)
	case <-time.After(2 * time.Second):
		t.Fatalf("valid datagram after a malformed one was not dispatched")
	}
	p, ok := server.Peers().Get(conn.LocalAddr().String())
	require.True(t, ok)
	assert.EqualValues(t, 1, p.DecodeErrors)
	assert.EqualValues(t, 2, p.Received)
	assert.Contains(t, p.LastError, "frequency marker")
}

func TestHandleRejectsUnknownMessage(t *testing.T) {
	testlog.Start(t)
	server := startEndpoint(t, DefaultConfig())
	err := server.Handle("NotAMessage", func(context.Context, *net.UDPAddr, *protocol.Message) error { return nil })
	assert.ErrorIs(t, err, protocol.ErrUnknownMessageType)
}

func TestSendAfterClose(t *testing.T) {
	testlog.Start(t)
	codec, err := catalog.Codec(protocol.Limits{})
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	e, err := Listen(cfg, codec)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	m, err := codec.Registry().New("CloseCircuit")
	require.NoError(t, err)
	_, err = e.Send(context.Background(), e.Addr(), m)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, e.Serve(context.Background()))
}

func TestPeerTablePrune(t *testing.T) {
	testlog.Start(t)
	pt := NewPeerTable()
	now := time.Unix(1700000000, 0)
	pt.noteReceived("a", now, 1, "StartPingCheck")
	pt.noteSent("b", now.Add(time.Minute))
	assert.Len(t, pt.List(), 2)
	assert.Equal(t, 1, pt.Prune(now.Add(time.Second)))
	list := pt.List()
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Remote)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHandlerFailureLogKeepsMessageTypeSeparate(t *testing.T) {
	testlog.Start(t)
	out := &lockedBuffer{}
	server := startEndpoint(t, DefaultConfig(), WithLogger(zerolog.New(out)))
	require.NoError(t, server.Handle("CloseCircuit", func(context.Context, *net.UDPAddr, *protocol.Message) error {
		return errors.New("boom")
	}))

	conn, err := net.DialUDP("udp", nil, server.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte{0, 1, 0, 0, 0, 0xFF, 0xFF, 0xFD, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)

	var line string
	require.Eventually(t, func() bool {
		for _, l := range strings.Split(out.String(), "\n") {
			if strings.Contains(l, "handler failed") {
				line = l
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, line, `"msg_type":"CloseCircuit"`)
	assert.Equal(t, 1, strings.Count(line, `"message":`), line)
}
