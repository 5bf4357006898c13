package callmanager

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/hfpag/internal/observability"
	"github.com/rs/zerolog"
)

// EventKind names a bridge event.
type EventKind int

const (
	EventManagerRegistered EventKind = iota + 1
)

func (k EventKind) String() string {
	switch k {
	case EventManagerRegistered:
		return "manager_registered"
	default:
		return "unknown"
	}
}

// Event is one item of the bridge's sequence.
type Event struct {
	Kind         EventKind
	ConnectionID string
}

type addedPeer struct {
	id     PeerID
	handle PeerHandle
}

// active is the attached connection and the goroutine reading it.
type active struct {
	conn   Connection
	cancel context.CancelFunc
}

// Bridge queues locally discovered peers and delivers them FIFO to the single
// attached call-management connection.
type Bridge struct {
	log zerolog.Logger

	mu      sync.Mutex
	current *active
	watcher *WatchForPeer
	added   []addedPeer
	events  []Event

	notify chan struct{}

	providerTaken atomic.Bool
	refs          atomic.Int64
	inactive      atomic.Bool
}

// NewBridge creates a bridge with no connection attached.
func NewBridge() *Bridge {
	return &Bridge{
		log:    observability.Component("callmanager"),
		notify: make(chan struct{}, 1),
	}
}

// Provider returns the bridge's provider handle the first time it is called
// and ErrNoProvider afterwards.
func (b *Bridge) Provider() (*Provider, error) {
	if !b.providerTaken.CompareAndSwap(false, true) {
		return nil, ErrNoProvider
	}
	b.refs.Store(1)
	return &Provider{b: b}, nil
}

// PeerAdded queues a peer and hands it to an outstanding watcher if there is
// one.
func (b *Bridge) PeerAdded(id PeerID, handle PeerHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added = append(b.added, addedPeer{id: id, handle: handle})
	observability.RecordCallManagerEvent("peer_added")
	b.log.Debug().Str("peer", string(id)).Int("queued", len(b.added)).Msg("callmanager.Bridge.PeerAdded")
	b.reconcileLocked()
}

// register adopts conn when no connection is attached and closes it with
// CloseUnavailable otherwise.
func (b *Bridge) register(conn Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.log.Info().Str("conn", conn.ID()).Msg("callmanager.Bridge.register rejected; manager already attached")
		observability.RecordCallManagerEvent("rejected_unavailable")
		conn.Close(CloseUnavailable)
		return
	}
	b.resetLocked()
	ctx, cancel := context.WithCancel(context.Background())
	b.current = &active{conn: conn, cancel: cancel}
	b.events = append(b.events, Event{Kind: EventManagerRegistered, ConnectionID: conn.ID()})
	observability.RecordCallManagerEvent(EventManagerRegistered.String())
	b.log.Info().Str("conn", conn.ID()).Msg("callmanager.Bridge.register attached")
	go b.serve(ctx, b.current)
	b.wakeLocked()
}

// serve advances one connection's request stream until it ends or the
// bridge lets go of it.
func (b *Bridge) serve(ctx context.Context, a *active) {
	for {
		req, err := a.conn.Recv(ctx)
		if !b.apply(a, req, err) {
			return
		}
	}
}

func (b *Bridge) apply(a *active, req Request, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != a {
		return false
	}
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
			b.log.Warn().Err(err).Str("conn", a.conn.ID()).Msg("callmanager.Bridge stream failed")
		} else {
			b.log.Info().Str("conn", a.conn.ID()).Msg("callmanager.Bridge stream ended")
		}
		observability.RecordCallManagerEvent("stream_ended")
		b.dropLocked(CloseDropped)
		return false
	}
	switch r := req.(type) {
	case WatchForPeer:
		if b.watcher != nil {
			b.log.Warn().Str("conn", a.conn.ID()).Msg("callmanager.Bridge concurrent WatchForPeer")
			observability.RecordCallManagerEvent("closed_bad_state")
			b.dropLocked(CloseBadState)
			return false
		}
		b.watcher = &r
		b.reconcileLocked()
	default:
		b.log.Warn().Str("conn", a.conn.ID()).Msgf("callmanager.Bridge ignoring request %T", req)
	}
	return true
}

// reconcileLocked pairs the outstanding watcher with the oldest queued peer.
func (b *Bridge) reconcileLocked() {
	if b.watcher == nil || len(b.added) == 0 {
		return
	}
	next := b.added[0]
	w := b.watcher
	b.added = b.added[1:]
	b.watcher = nil
	if err := w.Respond(next.id, next.handle); err != nil {
		b.log.Info().Err(err).Str("peer", string(next.id)).Msg("callmanager.Bridge watcher gone; dropping manager")
		observability.RecordCallManagerEvent("watcher_gone")
		b.dropLocked(CloseDropped)
		return
	}
	observability.RecordCallManagerEvent("peer_delivered")
	b.log.Debug().Str("peer", string(next.id)).Msg("callmanager.Bridge delivered peer")
}

// dropLocked closes the attached connection and resets to empty.
func (b *Bridge) dropLocked(reason CloseReason) {
	if b.current != nil {
		b.current.cancel()
		b.current.conn.Close(reason)
	}
	b.resetLocked()
	b.wakeLocked()
}

func (b *Bridge) resetLocked() {
	b.current = nil
	b.watcher = nil
	b.added = nil
	b.events = nil
}

func (b *Bridge) wakeLocked() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Connected reports whether a call-management connection is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

// Queued returns the number of peers waiting for a watcher.
func (b *Bridge) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.added)
}

// Next returns the next bridge event. It returns ErrExhausted, permanently,
// once no connection is attached and every provider was released.
func (b *Bridge) Next(ctx context.Context) (Event, error) {
	for {
		b.mu.Lock()
		if b.current == nil && b.inactive.Load() {
			b.mu.Unlock()
			return Event{}, ErrExhausted
		}
		if len(b.events) > 0 {
			ev := b.events[0]
			b.events = b.events[1:]
			b.mu.Unlock()
			return ev, nil
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Provider registers call-management connections with its bridge. Clones
// share the bridge's single connection slot; the bridge goes inactive when
// the last clone is released.
type Provider struct {
	b        *Bridge
	released atomic.Bool
}

// Register attaches conn to the bridge, or closes it with CloseUnavailable if
// a connection is already attached.
func (p *Provider) Register(conn Connection) {
	p.b.register(conn)
}

func (p *Provider) Clone() *Provider {
	p.b.refs.Add(1)
	return &Provider{b: p.b}
}

// Release drops this handle. Releasing twice is a no-op.
func (p *Provider) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	if p.b.refs.Add(-1) > 0 {
		return
	}
	p.b.inactive.Store(true)
	p.b.log.Info().Msg("callmanager.Bridge last provider released")
	p.b.mu.Lock()
	p.b.wakeLocked()
	p.b.mu.Unlock()
}
