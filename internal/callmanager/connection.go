package callmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/google/uuid"
)

var (
	ErrExhausted  = errors.New("callmanager: no connection and no provider left")
	ErrClientGone = errors.New("callmanager: client gone")
	ErrNoProvider = errors.New("callmanager: provider already handed out")
)

// PeerID identifies a connected HF by its Bluetooth address.
type PeerID string

// PeerHandle is the control surface for one peer handed to the call manager.
type PeerHandle interface {
	PeerID() PeerID
	UpdatePhoneStatus(ctx context.Context, ind indicators.AgIndicator, value uint8) error
}

// CloseReason is the signal a connection is closed with.
type CloseReason int

const (
	// CloseDropped means the bridge let go of the connection without a
	// protocol violation.
	CloseDropped CloseReason = iota
	CloseUnavailable
	CloseBadState
)

func (r CloseReason) String() string {
	switch r {
	case CloseUnavailable:
		return "unavailable"
	case CloseBadState:
		return "bad_state"
	default:
		return "dropped"
	}
}

// ClosedError is returned to a client whose connection the bridge closed.
type ClosedError struct {
	Reason CloseReason
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("callmanager: connection closed: %s", e.Reason)
}

// Request is a call-management request read from a connection.
type Request interface {
	isRequest()
}

// WatchForPeer is the hanging get. Respond fails with ErrClientGone when the
// client stopped waiting.
type WatchForPeer struct {
	Respond func(id PeerID, handle PeerHandle) error
}

func (WatchForPeer) isRequest() {}

// Connection is the bridge side of one call-management client. Recv returns
// io.EOF when the client ends the stream.
type Connection interface {
	ID() string
	Recv(ctx context.Context) (Request, error)
	Close(reason CloseReason)
}

// Watched is one delivered peer.
type Watched struct {
	Peer   PeerID
	Handle PeerHandle
}

// pipe is the in-memory transport shared by a Client and its Connection.
type pipe struct {
	id       string
	requests chan WatchForPeer

	closeOnce sync.Once
	closed    chan struct{}
	reason    CloseReason

	endOnce sync.Once
	ended   chan struct{}
}

// Pipe returns a connected Client and Connection pair.
func Pipe() (*Client, Connection) {
	p := &pipe{
		id:       uuid.NewString(),
		requests: make(chan WatchForPeer),
		closed:   make(chan struct{}),
		ended:    make(chan struct{}),
	}
	return &Client{p: p}, &pipeConn{p: p}
}

type pipeConn struct {
	p *pipe
}

func (c *pipeConn) ID() string {
	return c.p.id
}

func (c *pipeConn) Recv(ctx context.Context) (Request, error) {
	select {
	case req := <-c.p.requests:
		return req, nil
	case <-c.p.ended:
		return nil, io.EOF
	case <-c.p.closed:
		return nil, &ClosedError{Reason: c.p.reason}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Close(reason CloseReason) {
	c.p.closeOnce.Do(func() {
		c.p.reason = reason
		close(c.p.closed)
	})
}

// Client is the call-management side of a Pipe.
type Client struct {
	p *pipe
}

func (c *Client) ID() string {
	return c.p.id
}

// Done is closed when the bridge closes the connection.
func (c *Client) Done() <-chan struct{} {
	return c.p.closed
}

// Err returns the close error once Done is closed, nil before.
func (c *Client) Err() error {
	select {
	case <-c.p.closed:
		return &ClosedError{Reason: c.p.reason}
	default:
		return nil
	}
}

// Close ends the request stream.
func (c *Client) Close() {
	c.p.endOnce.Do(func() {
		close(c.p.ended)
	})
}

// WatchForPeer issues one hanging get and waits for its answer.
func (c *Client) WatchForPeer(ctx context.Context) (Watched, error) {
	slot := &answerSlot{reply: make(chan Watched, 1)}
	req := WatchForPeer{Respond: slot.respond}

	select {
	case c.p.requests <- req:
	case <-c.p.closed:
		return Watched{}, c.Err()
	case <-c.p.ended:
		return Watched{}, ErrClientGone
	case <-ctx.Done():
		return Watched{}, ctx.Err()
	}

	select {
	case w := <-slot.reply:
		return w, nil
	case <-c.p.closed:
		if w, ok := slot.abandon(); ok {
			return w, nil
		}
		return Watched{}, c.Err()
	case <-ctx.Done():
		if w, ok := slot.abandon(); ok {
			return w, nil
		}
		return Watched{}, ctx.Err()
	}
}

// answerSlot lets exactly one of respond and abandon win.
type answerSlot struct {
	mu        sync.Mutex
	abandoned bool
	reply     chan Watched
}

func (s *answerSlot) respond(id PeerID, handle PeerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return ErrClientGone
	}
	select {
	case s.reply <- Watched{Peer: id, Handle: handle}:
		return nil
	default:
		return fmt.Errorf("%w: already answered", ErrClientGone)
	}
}

// abandon stops accepting answers and returns one that raced in.
func (s *answerSlot) abandon() (Watched, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
	select {
	case w := <-s.reply:
		return w, true
	default:
		return Watched{}, false
	}
}
