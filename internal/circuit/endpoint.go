package circuit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/gridwire/internal/capture"
	"github.com/danmuck/gridwire/internal/observability"
	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	msgStartPingCheck    = "StartPingCheck"
	msgCompletePingCheck = "CompletePingCheck"
)

var ErrClosed = errors.New("circuit: endpoint closed")

// Handler receives one decoded message. The message is owned by the handler.
type Handler func(ctx context.Context, from *net.UDPAddr, m *protocol.Message) error

// Sink stores raw datagrams. *capture.Store satisfies it.
type Sink interface {
	Append(bucket string, rec capture.Record) (uint64, error)
}

type Option func(*Endpoint)

// WithCapture records every inbound and outbound datagram into bucket.
func WithCapture(sink Sink, bucket string) Option {
	return func(e *Endpoint) {
		e.sink = sink
		e.bucket = bucket
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

// WithNode sets the metrics node label.
func WithNode(node string) Option {
	return func(e *Endpoint) {
		e.node = node
	}
}

// Endpoint is a UDP socket speaking the datagram protocol. Each datagram is
// decoded on its own; a bad datagram is logged and counted, never fatal.
type Endpoint struct {
	cfg    Config
	codec  *protocol.Codec
	conn   *net.UDPConn
	logger zerolog.Logger
	node   string
	sink   Sink
	bucket string
	peers  *PeerTable

	mu       sync.RWMutex
	handlers map[string]Handler

	seq    atomic.Uint32
	closed atomic.Bool
}

// Listen binds cfg.ListenAddr.
func Listen(cfg Config, codec *protocol.Codec, opts ...Option) (*Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("circuit: resolve %s: %w", cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("circuit: listen %s: %w", cfg.ListenAddr, err)
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	e := &Endpoint{
		cfg:      cfg,
		codec:    codec,
		conn:     conn,
		logger:   log.Logger,
		node:     "gridwire",
		peers:    NewPeerTable(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "circuit").Str("local", conn.LocalAddr().String()).Logger()
	if cfg.RespondToPings {
		if _, ok := codec.Registry().ByName(msgCompletePingCheck); !ok {
			e.logger.Warn().Msg("ping responder disabled: CompletePingCheck not registered")
			e.cfg.RespondToPings = false
		}
	}
	e.logger.Info().Msg("circuit listening")
	return e, nil
}

func (e *Endpoint) Addr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

func (e *Endpoint) Peers() *PeerTable {
	return e.peers
}

func (e *Endpoint) Codec() *protocol.Codec {
	return e.codec
}

// Handle registers h for the named message type, replacing any previous
// handler.
func (e *Endpoint) Handle(name string, h Handler) error {
	if _, ok := e.codec.Registry().ByName(name); !ok {
		return fmt.Errorf("%w: %s", protocol.ErrUnknownMessageType, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
	return nil
}

func (e *Endpoint) handler(name string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[name]
	return h, ok
}

// Serve reads datagrams until ctx is done or the endpoint is closed.
func (e *Endpoint) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = e.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	buf := make([]byte, e.cfg.ReadBufferSize)
	failures := 0
	lastPrune := time.Now()
	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || e.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			failures++
			delay := e.cfg.Backoff.Delay(failures, rng)
			e.logger.Warn().Err(err).Int("failures", failures).Dur("retry_in", delay).Msg("circuit read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		failures = 0
		e.handleDatagram(ctx, from, buf[:n])

		if e.cfg.PeerIdleAfter > 0 && time.Since(lastPrune) > e.cfg.PeerIdleAfter {
			lastPrune = time.Now()
			if dropped := e.peers.Prune(lastPrune.Add(-e.cfg.PeerIdleAfter)); dropped > 0 {
				e.logger.Debug().Int("dropped", dropped).Msg("pruned idle peers")
			}
		}
	}
}

func (e *Endpoint) handleDatagram(ctx context.Context, from *net.UDPAddr, raw []byte) {
	start := time.Now()
	defer func() { observability.RecordHandle(e.node, time.Since(start)) }()

	remote := from.String()
	observability.RecordDatagram(e.node, "in", len(raw))
	e.capture(capture.DirectionIn, remote, raw)

	m, err := e.codec.Decode(raw)
	if err != nil {
		reason := protocol.Reason(err)
		observability.RecordDecode(e.node, "", reason)
		e.peers.noteDecodeError(remote, start, err)
		e.logger.Warn().
			Err(err).
			Str("remote", remote).
			Str("reason", reason).
			Int("bytes", len(raw)).
			Msg("datagram dropped")
		return
	}
	name := m.Name()
	observability.RecordDecode(e.node, name, "ok")
	e.peers.noteReceived(remote, start, m.Header.Sequence, name)
	e.logger.Debug().
		Str("remote", remote).
		Str("msg_type", name).
		Uint32("seq", m.Header.Sequence).
		Str("flags", m.Header.Flags.String()).
		Msg("datagram received")

	if e.cfg.RespondToPings && name == msgStartPingCheck {
		e.answerPing(ctx, from, m)
	}
	h, ok := e.handler(name)
	if !ok {
		return
	}
	if err := h(ctx, from, m); err != nil {
		e.logger.Error().Err(err).Str("remote", remote).Str("msg_type", name).Msg("handler failed")
	}
}

func (e *Endpoint) answerPing(ctx context.Context, to *net.UDPAddr, ping *protocol.Message) {
	reply, err := e.codec.Registry().New(msgCompletePingCheck)
	if err != nil {
		return
	}
	if err := reply.Set("PingID", 0, "PingID", ping.Get("PingID", 0, "PingID")); err != nil {
		e.logger.Error().Err(err).Msg("build ping reply")
		return
	}
	if _, err := e.Send(ctx, to, reply); err != nil {
		e.logger.Warn().Err(err).Str("remote", to.String()).Msg("ping reply failed")
	}
}

// Send stamps m with the next outbound sequence number, encodes it and
// writes one datagram. It returns the sequence used.
func (e *Endpoint) Send(ctx context.Context, to *net.UDPAddr, m *protocol.Message) (uint32, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	seq := e.seq.Add(1)
	m.Header.Sequence = seq
	raw, err := e.codec.Encode(m)
	observability.RecordEncode(e.node, m.Name(), protocol.Reason(err))
	if err != nil {
		return 0, err
	}

	var deadline time.Time
	if e.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(e.cfg.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := e.conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	if _, err := e.conn.WriteToUDP(raw, to); err != nil {
		return 0, fmt.Errorf("circuit: send %s to %s: %w", m.Name(), to, err)
	}
	remote := to.String()
	observability.RecordDatagram(e.node, "out", len(raw))
	e.peers.noteSent(remote, time.Now())
	e.capture(capture.DirectionOut, remote, raw)
	e.logger.Debug().
		Str("remote", remote).
		Str("msg_type", m.Name()).
		Uint32("seq", seq).
		Int("bytes", len(raw)).
		Msg("datagram sent")
	return seq, nil
}

func (e *Endpoint) capture(dir capture.Direction, remote string, raw []byte) {
	if e.sink == nil {
		return
	}
	rec := capture.Record{
		At:        time.Now().UTC(),
		Direction: dir,
		Remote:    remote,
		Raw:       append([]byte(nil), raw...),
	}
	if _, err := e.sink.Append(e.bucket, rec); err != nil {
		e.logger.Warn().Err(err).Str("bucket", e.bucket).Msg("capture failed")
	}
}

func (e *Endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info().Msg("circuit closed")
	return e.conn.Close()
}
