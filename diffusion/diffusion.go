// Package diffusion is the node's peer-to-peer networking boundary: it
// accepts and dials peers, relays messages, and answers the health queries
// the monitoring sidecars serve. Block and transaction semantics live above
// it; diffusion moves opaque envelopes.
package diffusion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	outboundQueueSize = 64
	inboundQueueSize  = 256
	maxLineBytes      = 1 << 20

	acceptRetryDelay = 100 * time.Millisecond

	defaultHandshakeTimeout = 5 * time.Second
	defaultMaxPeers         = 64
	defaultMsgRate          = 32.0
	defaultMsgBurst         = 200
)

var (
	ErrClosed         = errors.New("diffusion: layer closed")
	ErrNoRegistry     = errors.New("diffusion: peer registry required")
	ErrMagicMismatch  = errors.New("diffusion: protocol magic mismatch")
	ErrSelfConnection = errors.New("diffusion: connected to self")
	ErrDuplicatePeer  = errors.New("diffusion: peer already connected")
)

// Config assembles the diffusion layer from protocol constants, timeouts,
// and version metadata.
type Config struct {
	ListenAddress    string
	ProtocolMagic    uint32
	NetworkName      string
	LastKnownVersion string
	RecoveryHeaders  int
	StreamingWindow  int
	HandshakeTimeout time.Duration

	StaticPeers []string
	SeedDomains []string
	DNSServer   string
	Resolver    Resolver

	MaxPeers      int
	MsgsPerSecond float64
	MsgBurst      int

	PeerstorePath string
	Registry      *PeerRegistry
	Logger        *slog.Logger
}

// Status is the health view served by the health-check sidecar.
type Status struct {
	Listening bool   `json:"listening"`
	Peers     int    `json:"peers"`
	Address   string `json:"address"`
}

// Message is one inbound envelope received from a peer.
type Message struct {
	From    string          `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type handshake struct {
	Magic      uint32 `json:"magic"`
	Network    string `json:"network"`
	Version    string `json:"version"`
	InstanceID string `json:"instanceID"`
	Streaming  int    `json:"streamingWindow"`
}

type peer struct {
	id   string
	conn net.Conn
	out  chan []byte
	done chan struct{}

	limiter *rate.Limiter
}

// Diffusion is a running diffusion layer. It is scoped to one RunServer
// invocation and owns no persistent state beyond the peerstore file.
type Diffusion struct {
	cfg        Config
	logger     *slog.Logger
	instanceID string

	listener net.Listener
	store    *Peerstore
	registry *PeerRegistry

	inbound chan Message
	quit    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	peers  map[string]*peer
	closed bool
}

// Open starts the diffusion layer: listener, seed resolution, and dial
// attempts towards static and persisted peers.
func Open(ctx context.Context, cfg Config) (*Diffusion, error) {
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = defaultMaxPeers
	}
	if cfg.MsgsPerSecond <= 0 {
		cfg.MsgsPerSecond = defaultMsgRate
	}
	if cfg.MsgBurst <= 0 {
		cfg.MsgBurst = defaultMsgBurst
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NewResolver(cfg.DNSServer)
	}

	var store *Peerstore
	if cfg.PeerstorePath != "" {
		opened, err := OpenPeerstore(cfg.PeerstorePath)
		if err != nil {
			return nil, err
		}
		store = opened
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("diffusion: listen %s: %w", cfg.ListenAddress, err)
	}

	d := &Diffusion{
		cfg:        cfg,
		logger:     cfg.Logger.With(slog.String("component", "diffusion")),
		instanceID: uuid.NewString(),
		listener:   listener,
		store:      store,
		registry:   cfg.Registry,
		inbound:    make(chan Message, inboundQueueSize),
		quit:       make(chan struct{}),
		peers:      make(map[string]*peer),
	}

	d.wg.Add(1)
	go d.acceptLoop()

	targets := d.dialTargets(ctx)
	for _, addr := range targets {
		d.wg.Add(1)
		go d.dial(addr)
	}

	d.logger.Info("diffusion layer opened",
		slog.String("listen", listener.Addr().String()),
		slog.Int("dialTargets", len(targets)))
	return d, nil
}

func (d *Diffusion) dialTargets(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var targets []string
	add := func(addr string) {
		if addr == "" {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		targets = append(targets, addr)
	}
	for _, addr := range d.cfg.StaticPeers {
		add(addr)
	}
	if len(d.cfg.SeedDomains) > 0 {
		resolveCtx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
		defer cancel()
		for _, addr := range ResolveSeeds(resolveCtx, d.cfg.Resolver, d.cfg.SeedDomains) {
			add(addr)
		}
	}
	if d.store != nil {
		if addrs, err := d.store.Addresses(); err == nil {
			for _, addr := range addrs {
				add(addr)
			}
		}
	}
	return targets
}

func (d *Diffusion) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient accept failure, e.g. descriptor exhaustion. Back
			// off and keep the listener serving.
			d.logger.Warn("accept failed", slog.Any("error", err))
			select {
			case <-time.After(acceptRetryDelay):
			case <-d.quit:
				return
			}
			continue
		}
		d.wg.Add(1)
		go d.handleConn(conn, true)
	}
}

func (d *Diffusion) dial(addr string) {
	defer d.wg.Done()
	conn, err := net.DialTimeout("tcp", addr, d.cfg.HandshakeTimeout)
	if err != nil {
		if d.store != nil {
			_ = d.store.Fail(addr)
		}
		d.logger.Debug("dial failed", slog.String("addr", addr), slog.Any("error", err))
		return
	}
	d.wg.Add(1)
	go d.handleConn(conn, false)
}

func (d *Diffusion) handleConn(conn net.Conn, inbound bool) {
	defer d.wg.Done()

	remote, err := d.performHandshake(conn)
	if err != nil {
		d.logger.Debug("handshake rejected",
			slog.String("remote", conn.RemoteAddr().String()), slog.Any("error", err))
		_ = conn.Close()
		return
	}

	p := &peer{
		id:      remote.InstanceID,
		conn:    conn,
		out:     make(chan []byte, outboundQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(d.cfg.MsgsPerSecond), d.cfg.MsgBurst),
	}

	d.mu.Lock()
	if d.closed || len(d.peers) >= d.cfg.MaxPeers {
		d.mu.Unlock()
		_ = conn.Close()
		return
	}
	if _, dup := d.peers[p.id]; dup {
		d.mu.Unlock()
		d.logger.Debug("handshake rejected",
			slog.String("remote", conn.RemoteAddr().String()), slog.Any("error", ErrDuplicatePeer))
		_ = conn.Close()
		return
	}
	d.peers[p.id] = p
	d.mu.Unlock()

	addr := conn.RemoteAddr().String()
	d.registry.Add(PeerInfo{
		ID:          p.id,
		Addr:        addr,
		Inbound:     inbound,
		Version:     remote.Version,
		ConnectedAt: time.Now(),
	})
	if d.store != nil && !inbound {
		_ = d.store.Record(addr)
	}

	d.wg.Add(1)
	go d.writeLoop(p)
	d.readLoop(p)

	d.mu.Lock()
	delete(d.peers, p.id)
	d.mu.Unlock()
	d.registry.Remove(p.id)
	close(p.done)
	_ = conn.Close()
}

func (d *Diffusion) performHandshake(conn net.Conn) (handshake, error) {
	deadline := time.Now().Add(d.cfg.HandshakeTimeout)
	_ = conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	hello := handshake{
		Magic:      d.cfg.ProtocolMagic,
		Network:    d.cfg.NetworkName,
		Version:    d.cfg.LastKnownVersion,
		InstanceID: d.instanceID,
		Streaming:  d.cfg.StreamingWindow,
	}
	raw, err := json.Marshal(hello)
	if err != nil {
		return handshake{}, err
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		return handshake{}, fmt.Errorf("diffusion: send handshake: %w", err)
	}

	reader := bufio.NewReaderSize(conn, maxLineBytes)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return handshake{}, fmt.Errorf("diffusion: read handshake: %w", err)
	}
	var remote handshake
	if err := json.Unmarshal(line, &remote); err != nil {
		return handshake{}, fmt.Errorf("diffusion: decode handshake: %w", err)
	}
	if remote.Magic != d.cfg.ProtocolMagic || remote.Network != d.cfg.NetworkName {
		return handshake{}, ErrMagicMismatch
	}
	if remote.InstanceID == "" {
		return handshake{}, errors.New("diffusion: peer sent empty instance id")
	}
	if remote.InstanceID == d.instanceID {
		return handshake{}, ErrSelfConnection
	}
	return remote, nil
}

func (d *Diffusion) writeLoop(p *peer) {
	defer d.wg.Done()
	for {
		select {
		case raw := <-p.out:
			if _, err := p.conn.Write(raw); err != nil {
				return
			}
		case <-p.done:
			return
		case <-d.quit:
			return
		}
	}
}

func (d *Diffusion) readLoop(p *peer) {
	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		select {
		case <-d.quit:
			return
		default:
		}
		if !p.limiter.Allow() {
			// Spam from this peer; drop the message, keep the connection.
			continue
		}
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		msg.From = p.id
		select {
		case d.inbound <- msg:
		default:
			// Inbound queue full; the consumer is behind, shed load.
		}
	}
}

// Broadcast relays an envelope to every connected peer. Peers with a full
// outbound queue are skipped.
func (d *Diffusion) Broadcast(msgType string, payload any) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*peer, 0, len(d.peers))
	for _, p := range d.peers {
		targets = append(targets, p)
	}
	d.mu.Unlock()

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("diffusion: encode broadcast: %w", err)
	}
	raw, err := json.Marshal(Message{Type: msgType, Payload: rawPayload})
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	for _, p := range targets {
		select {
		case p.out <- raw:
		default:
		}
	}
	return nil
}

// Messages exposes the inbound envelope stream.
func (d *Diffusion) Messages() <-chan Message {
	return d.inbound
}

// InstanceID returns the process-unique identifier sent in handshakes.
func (d *Diffusion) InstanceID() string {
	return d.instanceID
}

// Health reports the status served by the health-check sidecar.
func (d *Diffusion) Health() Status {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	return Status{
		Listening: !closed,
		Peers:     d.registry.Count(),
		Address:   d.listener.Addr().String(),
	}
}

// Close tears down the listener, every peer connection, and the peerstore.
func (d *Diffusion) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.quit)
	peers := make([]*peer, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, p)
	}
	d.mu.Unlock()

	errs := []error{d.listener.Close()}
	for _, p := range peers {
		_ = p.conn.Close()
	}
	d.wg.Wait()
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}
