package gateway

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/hfpag/internal/bluez"
	"github.com/danmuck/hfpag/internal/callmanager"
	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/procedure"
	"github.com/danmuck/hfpag/internal/transport"
	"github.com/danmuck/hfpag/internal/transport/serial"
	"github.com/danmuck/hfpag/internal/transport/tcp"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("gateway: invalid heartbeat interval")
	ErrNoTransport              = errors.New("gateway: no transport configured")
	ErrPeerNotFound             = errors.New("gateway: peer not found")
	ErrDuplicatePeer            = errors.New("gateway: peer already connected")
)

// BlueZConfig enables the D-Bus profile transport.
type BlueZConfig struct {
	Enabled bool
	Name    string
	Channel uint16
}

// ServiceConfig configures the gateway runtime.
type ServiceConfig struct {
	Name              string
	AgFeatures        procedure.AgFeatures
	Indicators        indicators.IndicatorStatus
	Operator          string
	TCPListenAddr     string
	Serial            serial.Config
	BlueZ             BlueZConfig
	AdminListenAddr   string
	// AdminToken, when set, is required as a bearer token on mutating
	// admin routes.
	AdminToken        string
	CORSOrigins       []string
	HeartbeatInterval time.Duration
}

// DefaultServiceConfig listens on TCP only, for development.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name: "hfpag.local",
		AgFeatures: procedure.AgThreeWayCalling |
			procedure.AgEnhancedCallStatus |
			procedure.AgExtendedErrorCodes |
			procedure.AgCodecNegotiation |
			procedure.AgHfIndicators,
		Indicators:        indicators.IndicatorStatus{Service: 1, Signal: 5, BattChg: 5},
		TCPListenAddr:     "127.0.0.1:7070",
		AdminListenAddr:   "127.0.0.1:9070",
		HeartbeatInterval: 30 * time.Second,
	}
}

// Service owns the AG state, the connected peers and the call manager
// bridge.
type Service struct {
	cfg        ServiceConfig
	ag         *AgState
	bridge     *callmanager.Bridge
	provider   *callmanager.Provider
	transports []transport.Transport
	admin      *Admin

	mu    sync.RWMutex
	peers map[string]*Peer
}

func NewService() (*Service, error) {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	if cfg.HeartbeatInterval <= 0 {
		return nil, ErrInvalidHeartbeatInterval
	}
	bridge := callmanager.NewBridge()
	provider, err := bridge.Provider()
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:      cfg,
		ag:       NewAgState(cfg.AgFeatures, cfg.Indicators, cfg.Operator),
		bridge:   bridge,
		provider: provider,
		peers:    make(map[string]*Peer),
	}
	s.transports = buildTransports(cfg)
	s.admin = NewAdmin(s, provider.Clone(), cfg.CORSOrigins)
	return s, nil
}

func buildTransports(cfg ServiceConfig) []transport.Transport {
	var out []transport.Transport
	if addr := strings.TrimSpace(cfg.TCPListenAddr); addr != "" {
		out = append(out, tcp.New(addr))
	}
	if len(cfg.Serial.Devices) > 0 {
		out = append(out, serial.New(cfg.Serial))
	}
	if cfg.BlueZ.Enabled {
		out = append(out, bluez.New(bluez.Config{
			Name:     cfg.BlueZ.Name,
			Channel:  cfg.BlueZ.Channel,
			Features: bluez.SdpFeatures(uint32(cfg.AgFeatures)),
		}))
	}
	return out
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

func (s *Service) AgState() *AgState {
	return s.ag
}

func (s *Service) Bridge() *callmanager.Bridge {
	return s.bridge
}

func (s *Service) Admin() *Admin {
	return s.admin
}

// Serve runs transports, peers, the bridge event log and the admin server
// until ctx ends or a component fails.
func (s *Service) Serve(ctx context.Context) error {
	if len(s.transports) == 0 {
		return ErrNoTransport
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.admin.closeClients()
	defer s.provider.Release()

	links := make(chan transport.Link)
	errs := make(chan error, len(s.transports)+1)
	for _, tr := range s.transports {
		go func(tr transport.Transport) {
			if err := tr.Serve(ctx, links); err != nil {
				errs <- fmt.Errorf("gateway: transport %s: %w", tr.Name(), err)
			}
		}(tr)
	}
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		go func() {
			if err := s.admin.Serve(ctx, addr); err != nil {
				errs <- err
			}
		}()
	}
	go s.logBridgeEvents(ctx)

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	log.Info().Str("name", s.cfg.Name).Int("transports", len(s.transports)).Msg("gateway.Service.Serve ready")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway.Service.Serve shutdown")
			return nil
		case err := <-errs:
			return err
		case link := <-links:
			if _, err := s.Attach(ctx, link); err != nil {
				log.Warn().Err(err).Str("peer", link.Peer).Msg("gateway.Service.Serve link rejected")
			}
		case <-ticker.C:
			log.Info().
				Str("name", s.cfg.Name).
				Int("peers", s.PeerCount()).
				Bool("call_manager", s.bridge.Connected()).
				Int("queued_peers", s.bridge.Queued()).
				Msg("gateway.Service.heartbeat")
		}
	}
}

// Attach starts a peer on link and announces it to the call manager.
func (s *Service) Attach(ctx context.Context, link transport.Link) (*Peer, error) {
	s.mu.Lock()
	if _, ok := s.peers[link.Peer]; ok {
		s.mu.Unlock()
		_ = link.Channel.Close()
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePeer, link.Peer)
	}
	p, err := NewPeer(link.Peer, link.Channel, s.ag)
	if err != nil {
		s.mu.Unlock()
		_ = link.Channel.Close()
		return nil, err
	}
	s.peers[link.Peer] = p
	s.mu.Unlock()

	s.bridge.PeerAdded(p.PeerID(), p)
	go func() {
		err := p.Run(ctx)
		if err != nil {
			log.Warn().Err(err).Str("peer", link.Peer).Msg("gateway.Service peer ended")
		} else {
			log.Info().Str("peer", link.Peer).Msg("gateway.Service peer ended")
		}
		s.mu.Lock()
		if s.peers[link.Peer] == p {
			delete(s.peers, link.Peer)
		}
		s.mu.Unlock()
	}()
	return p, nil
}

func (s *Service) Peer(id string) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

func (s *Service) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Peers returns a snapshot of every peer ordered by id.
func (s *Service) Peers() []PeerSnapshot {
	s.mu.RLock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	out := make([]PeerSnapshot, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetPhoneStatus updates the AG indicator and pushes the change to every
// initialized peer. It returns the number of peers notified.
func (s *Service) SetPhoneStatus(ctx context.Context, ind indicators.AgIndicator, value uint8) (int, error) {
	changed, err := s.ag.SetStatus(ind, value)
	if err != nil || !changed {
		return 0, err
	}
	s.mu.RLock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	notified := 0
	for _, p := range peers {
		if !p.Snapshot().Initialized {
			continue
		}
		if err := p.UpdatePhoneStatus(ctx, ind, value); err != nil {
			log.Debug().Err(err).Str("peer", string(p.PeerID())).Msg("gateway.Service.SetPhoneStatus skipped")
			continue
		}
		notified++
	}
	return notified, nil
}

func (s *Service) logBridgeEvents(ctx context.Context) {
	for {
		ev, err := s.bridge.Next(ctx)
		if err != nil {
			if errors.Is(err, callmanager.ErrExhausted) {
				log.Info().Msg("gateway.Service call manager bridge exhausted")
			}
			return
		}
		log.Info().Str("event", ev.Kind.String()).Str("conn", ev.ConnectionID).Msg("gateway.Service call manager event")
	}
}
