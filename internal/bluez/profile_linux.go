//go:build linux

package bluez

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/danmuck/hfpag/internal/observability"
	"github.com/danmuck/hfpag/internal/transport"
	dbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
)

var pathCounter atomic.Uint64

// Transport exports an org.bluez.Profile1 object for the AG role and offers
// every RFCOMM connection BlueZ delivers to it.
type Transport struct {
	cfg Config
}

func New(cfg Config) *Transport {
	return &Transport{cfg: cfg.withDefaults()}
}

func (t *Transport) Name() string {
	return "bluez"
}

func (t *Transport) Serve(ctx context.Context, links chan<- transport.Link) error {
	logger := observability.Component("bluez")
	bus, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("bluez: connect system bus: %w", err)
	}
	defer bus.Close()

	prof := &profile{ctx: ctx, links: links, log: logger}
	path := dbus.ObjectPath(fmt.Sprintf("%s/p%d", defaultObjectNS, pathCounter.Add(1)))
	if err := bus.Export(prof, path, profileIface); err != nil {
		return fmt.Errorf("bluez: export profile: %w", err)
	}
	defer func() { _ = bus.Export(nil, path, profileIface) }()

	opts := map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(t.cfg.Name),
		"Role":                  dbus.MakeVariant("server"),
		"Channel":               dbus.MakeVariant(t.cfg.Channel),
		"Version":               dbus.MakeVariant(ProfileVersion),
		"Features":              dbus.MakeVariant(t.cfg.Features),
		"RequireAuthentication": dbus.MakeVariant(true),
	}
	pm := bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, HfpAgUUID.String(), opts); call.Err != nil {
		return fmt.Errorf("bluez: RegisterProfile: %w", call.Err)
	}
	defer func() { _ = pm.Call(profileManagerIface+".UnregisterProfile", 0, path).Err }()

	logger.Info().
		Str("path", string(path)).
		Uint16("channel", t.cfg.Channel).
		Uint16("features", t.cfg.Features).
		Msg("bluez.Transport.Serve profile registered")

	<-ctx.Done()
	logger.Info().Msg("bluez.Transport.Serve shutdown")
	return nil
}

// profile implements org.bluez.Profile1.
type profile struct {
	ctx   context.Context
	links chan<- transport.Link
	log   zerolog.Logger
}

func (p *profile) Release() *dbus.Error {
	p.log.Info().Msg("bluez.profile.Release")
	return nil
}

func (p *profile) Cancel() *dbus.Error { return nil }

func (p *profile) RequestDisconnection(dev dbus.ObjectPath) *dbus.Error {
	p.log.Info().Str("peer", PeerFromPath(string(dev))).Msg("bluez.profile.RequestDisconnection")
	return nil
}

// NewConnection hands the RFCOMM socket to the gateway. The fd is closed
// when the gateway is shutting down.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	peer := PeerFromPath(string(dev))
	file := os.NewFile(uintptr(fd), "rfcomm:"+peer)
	if file == nil {
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"invalid fd"}}
	}
	p.log.Info().Str("peer", peer).Msg("bluez.profile.NewConnection")
	if !transport.Offer(p.ctx, p.links, transport.Link{Peer: peer, Channel: file}) {
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"shutting down"}}
	}
	return nil
}
