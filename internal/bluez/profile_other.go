//go:build !linux

package bluez

import (
	"context"

	"github.com/danmuck/hfpag/internal/transport"
)

type Transport struct {
	cfg Config
}

func New(cfg Config) *Transport {
	return &Transport{cfg: cfg.withDefaults()}
}

func (t *Transport) Name() string {
	return "bluez"
}

func (t *Transport) Serve(context.Context, chan<- transport.Link) error {
	return ErrUnsupportedPlatform
}
