// Package serial opens bound RFCOMM ttys as HF byte channels. A device with
// a Channel is bound with rfcomm(1) before it is opened and released when
// the transport stops.
package serial

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/hfpag/internal/observability"
	"github.com/danmuck/hfpag/internal/tools"
	"github.com/danmuck/hfpag/internal/transport"
	"github.com/goburrow/serial"
	"github.com/rs/zerolog/log"
)

// Device is one tty and the HF address bound to it.
type Device struct {
	Path     string
	Peer     string
	BaudRate int
	// Channel is the remote RFCOMM channel. Zero means the tty is already
	// bound.
	Channel uint8
}

// Config for the serial transport.
type Config struct {
	Devices []Device
	// ReadTimeout bounds one read so Close is observed promptly.
	ReadTimeout time.Duration
	// Reopen waits this long before reopening a device whose link ended.
	Reopen time.Duration
}

type opener func(*serial.Config) (serial.Port, error)

// Transport offers one link per configured device and reopens a device
// after its link is closed.
type Transport struct {
	cfg    Config
	open   opener
	runner tools.CommandRunner
}

func New(cfg Config) *Transport {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.Reopen <= 0 {
		cfg.Reopen = 2 * time.Second
	}
	return &Transport{cfg: cfg, open: serial.Open, runner: tools.ExecRunner{}}
}

func (t *Transport) Name() string {
	return "serial"
}

func (t *Transport) Serve(ctx context.Context, links chan<- transport.Link) error {
	if len(t.cfg.Devices) == 0 {
		<-ctx.Done()
		return nil
	}
	var wg sync.WaitGroup
	for _, dev := range t.cfg.Devices {
		wg.Add(1)
		go func(dev Device) {
			defer wg.Done()
			t.serveDevice(ctx, dev, links)
		}(dev)
	}
	wg.Wait()
	return nil
}

func (t *Transport) serveDevice(ctx context.Context, dev Device, links chan<- transport.Link) {
	logger := observability.Component("transport.serial").With().Str("device", dev.Path).Logger()
	if dev.Channel > 0 {
		if err := t.bind(ctx, dev); err != nil {
			logger.Error().Err(err).Msg("transport.serial.Transport bind failed")
			return
		}
		defer t.release(dev)
	}
	for ctx.Err() == nil {
		port, err := t.open(&serial.Config{
			Address:  dev.Path,
			BaudRate: baudOrDefault(dev.BaudRate),
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  t.cfg.ReadTimeout,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("transport.serial.Transport open failed")
		} else {
			ch := newChannel(port)
			peer := dev.Peer
			if peer == "" {
				peer = dev.Path
			}
			logger.Info().Str("peer", peer).Msg("transport.serial.Transport opened")
			if !transport.Offer(ctx, links, transport.Link{Peer: peer, Channel: ch}) {
				return
			}
			select {
			case <-ch.closed:
			case <-ctx.Done():
				_ = ch.Close()
				return
			}
		}
		select {
		case <-time.After(t.cfg.Reopen):
		case <-ctx.Done():
		}
	}
}

func (t *Transport) bind(ctx context.Context, dev Device) error {
	if dev.Peer == "" {
		return fmt.Errorf("serial: bind %s: channel %d needs a peer address", dev.Path, dev.Channel)
	}
	_, err := t.runner.Run(ctx, "rfcomm", "bind", dev.Path, dev.Peer, strconv.Itoa(int(dev.Channel)))
	return err
}

func (t *Transport) release(dev Device) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := t.runner.Run(ctx, "rfcomm", "release", dev.Path); err != nil {
		log.Warn().Err(err).Str("device", dev.Path).Msg("transport.serial.Transport release failed")
	}
}

func baudOrDefault(b int) int {
	if b <= 0 {
		return 115200
	}
	return b
}

// channel hides read timeouts from the frame reader. A timed out read is
// retried until data arrives or the channel is closed.
type channel struct {
	port   serial.Port
	once   sync.Once
	closed chan struct{}
}

func newChannel(port serial.Port) *channel {
	return &channel{port: port, closed: make(chan struct{})}
}

func (c *channel) Read(p []byte) (int, error) {
	for {
		n, err := c.port.Read(p)
		if errors.Is(err, serial.ErrTimeout) && n == 0 {
			select {
			case <-c.closed:
				return 0, transport.ErrClosed
			default:
				continue
			}
		}
		return n, err
	}
}

func (c *channel) Write(p []byte) (int, error) {
	n, err := c.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial: write: %w", err)
	}
	return n, nil
}

func (c *channel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.port.Close()
	})
	return err
}
