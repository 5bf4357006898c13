// Package transport defines how byte channels to HF devices reach the
// gateway. Each implementation delivers one Link per accepted channel.
package transport

import (
	"context"
	"errors"
	"io"
)

var ErrClosed = errors.New("transport: closed")

// Link is one accepted byte channel and the address of the device on the
// other end.
type Link struct {
	Peer    string
	Channel io.ReadWriteCloser
}

// Transport accepts links until ctx is done or it fails.
type Transport interface {
	Name() string
	Serve(ctx context.Context, links chan<- Link) error
}

// Offer hands link to links, closing its channel if ctx ends first.
func Offer(ctx context.Context, links chan<- Link, link Link) bool {
	select {
	case links <- link:
		return true
	case <-ctx.Done():
		_ = link.Channel.Close()
		return false
	}
}
