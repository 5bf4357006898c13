// Package tcp accepts HF byte channels over TCP. It stands in for RFCOMM on
// development hosts without a Bluetooth adapter.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/danmuck/hfpag/internal/observability"
	"github.com/danmuck/hfpag/internal/transport"
)

// Listener serves one TCP listen address.
type Listener struct {
	Addr string

	bound chan net.Addr
}

func New(addr string) *Listener {
	return &Listener{Addr: addr, bound: make(chan net.Addr, 1)}
}

func (l *Listener) Name() string {
	return "tcp"
}

// Bound yields the listen address once Serve is accepting.
func (l *Listener) Bound() <-chan net.Addr {
	return l.bound
}

func (l *Listener) Serve(ctx context.Context, links chan<- transport.Link) error {
	logger := observability.Component("transport.tcp")
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.Addr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", l.Addr, err)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	select {
	case l.bound <- ln.Addr():
	default:
	}
	logger.Info().Str("addr", ln.Addr().String()).Msg("transport.tcp.Listener.Serve listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tcp: accept: %w", err)
		}
		peer := conn.RemoteAddr().String()
		logger.Info().Str("peer", peer).Msg("transport.tcp.Listener.Serve accepted")
		if !transport.Offer(ctx, links, transport.Link{Peer: peer, Channel: conn}) {
			return nil
		}
	}
}
