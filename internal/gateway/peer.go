package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/hfpag/internal/callmanager"
	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/observability"
	"github.com/danmuck/hfpag/internal/procedure"
	"github.com/danmuck/hfpag/internal/protocol/at"
	"github.com/danmuck/hfpag/internal/slc"
	"github.com/rs/zerolog"
)

var (
	ErrPeerClosed = errors.New("gateway: peer closed")
	ErrPeerReset  = errors.New("gateway: slc initialization failed; channel dropped")
)

// cmeUnknown is the +CME ERROR code for an unspecified failure.
const cmeUnknown = 100

// PeerSnapshot is a read-only view of one peer for the admin surface.
type PeerSnapshot struct {
	ID             string                     `json:"id"`
	Phase          string                     `json:"phase"`
	Initialized    bool                       `json:"initialized"`
	HfFeatures     uint32                     `json:"hf_features"`
	AgFeatures     uint32                     `json:"ag_features"`
	ExtendedErrors bool                       `json:"extended_errors"`
	SelectedCodec  string                     `json:"selected_codec,omitempty"`
	InProgress     []string                   `json:"in_progress"`
	Indicators     indicators.IndicatorStatus `json:"indicators"`
	Reporting      bool                       `json:"reporting"`
	BatteryLevel   *uint8                     `json:"battery_level,omitempty"`
	EnhancedSafety *bool                      `json:"enhanced_safety,omitempty"`
}

type agCommand struct {
	update procedure.AgUpdate
	result chan error
}

// Peer drives one service level connection. All SLC calls happen on the Run
// goroutine; other goroutines reach it through UpdatePhoneStatus and
// SetupCodec.
type Peer struct {
	id   callmanager.PeerID
	conn *slc.Connection
	ag   *AgState
	log  zerolog.Logger

	commands chan agCommand
	done     chan struct{}

	mu       sync.RWMutex
	snapshot PeerSnapshot
}

var _ callmanager.PeerHandle = (*Peer)(nil)

// NewPeer attaches channel to a fresh SLC.
func NewPeer(id string, channel io.ReadWriteCloser, ag *AgState) (*Peer, error) {
	conn := slc.New(slc.Config{PeerID: id})
	if err := conn.Connect(channel); err != nil {
		return nil, err
	}
	p := &Peer{
		id:       callmanager.PeerID(id),
		conn:     conn,
		ag:       ag,
		log:      observability.Component("gateway.peer").With().Str("peer", id).Logger(),
		commands: make(chan agCommand),
		done:     make(chan struct{}),
	}
	p.publish()
	return p, nil
}

func (p *Peer) PeerID() callmanager.PeerID {
	return p.id
}

// Done is closed when Run returns.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) Snapshot() PeerSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snapshot
	s.InProgress = append([]string(nil), p.snapshot.InProgress...)
	return s
}

// UpdatePhoneStatus sends an indicator change to the HF. It is dropped by
// the procedure when the HF is not subscribed to ind.
func (p *Peer) UpdatePhoneStatus(ctx context.Context, ind indicators.AgIndicator, value uint8) error {
	return p.submit(ctx, procedure.PhoneStatusUpdate{Indicator: ind, Value: value})
}

// SetupCodec starts AG-initiated codec negotiation.
func (p *Peer) SetupCodec(ctx context.Context, codec procedure.CodecID) error {
	return p.submit(ctx, procedure.CodecSetup{Codec: codec})
}

func (p *Peer) submit(ctx context.Context, update procedure.AgUpdate) error {
	cmd := agCommand{update: update, result: make(chan error, 1)}
	select {
	case p.commands <- cmd:
	case <-p.done:
		return ErrPeerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the connection until the channel closes, initialization fails
// or ctx ends.
func (p *Peer) Run(ctx context.Context) error {
	defer close(p.done)
	defer p.publish()
	p.log.Info().Msg("gateway.Peer.Run start")

	for {
		select {
		case <-ctx.Done():
			_ = p.conn.Close()
			return nil

		case frame, ok := <-p.conn.Frames():
			marker, req, err := p.conn.Deliver(frame, ok)
			if errors.Is(err, slc.ErrClosed) {
				p.log.Info().Msg("gateway.Peer.Run channel closed")
				return nil
			}
			if err := p.settle(marker, req, err); err != nil {
				return err
			}

		case cmd := <-p.commands:
			marker, ok := procedure.MarkerForUpdate(cmd.update)
			if !ok {
				cmd.result <- fmt.Errorf("gateway: unsupported update %T", cmd.update)
				continue
			}
			req, err := p.conn.HandleAgUpdate(marker, cmd.update)
			cmd.result <- err
			if errors.Is(err, slc.ErrNotInitialized) {
				continue
			}
			if err := p.settle(marker, req, err); err != nil {
				return err
			}
		}
		p.publish()
	}
}

// settle answers asks and writes messages until the request chain ends.
func (p *Peer) settle(marker procedure.Marker, req procedure.Request, err error) error {
	for {
		if err != nil {
			return p.fail(marker, err)
		}
		var update procedure.AgUpdate
		switch r := req.(type) {
		case nil, procedure.None:
			return nil
		case procedure.SendMessages:
			if err := p.conn.Send(r.Messages); err != nil {
				return fmt.Errorf("gateway: peer %s: %w", p.id, err)
			}
			return nil
		case procedure.GetAgFeatures:
			update = r.Respond(p.ag.Features())
		case procedure.GetAgIndicatorStatus:
			update = r.Respond(p.ag.Status())
		case procedure.GetNetworkOperatorName:
			update = r.Respond(p.ag.Operator())
		case procedure.SendHfIndicator:
			p.log.Info().Str("indicator", r.Indicator.String()).Msg("gateway.Peer hf indicator")
			update = r.Respond()
		default:
			p.log.Warn().Msgf("gateway.Peer unhandled request %T", req)
			return nil
		}
		req, err = p.conn.HandleAgUpdate(marker, update)
	}
}

// fail reports err to the HF when it is owed a result code. It returns an
// error only when the peer can no longer continue.
func (p *Peer) fail(marker procedure.Marker, err error) error {
	p.log.Warn().Err(err).Str("marker", marker.String()).Msg("gateway.Peer procedure error")

	var pe *slc.ProcedureError
	notify := true
	if errors.As(err, &pe) {
		notify = pe.NotifyPeer
	} else if errors.Is(err, slc.ErrUnexpectedRequest) || errors.Is(err, slc.ErrNotInitialized) {
		notify = false
	}

	if !p.conn.Connected() {
		return fmt.Errorf("%w: %v", ErrPeerReset, err)
	}
	if !notify {
		return nil
	}
	resp := at.Error()
	if p.conn.State().ExtendedErrors {
		resp = at.CmeError(cmeUnknown)
	}
	if err := p.conn.Send([]at.Response{resp}); err != nil {
		return fmt.Errorf("gateway: peer %s: %w", p.id, err)
	}
	return nil
}

func (p *Peer) publish() {
	state := p.conn.State()
	s := PeerSnapshot{
		ID:             string(p.id),
		Phase:          string(p.conn.Phase()),
		Initialized:    state.Initialized,
		HfFeatures:     uint32(state.HfFeatures),
		AgFeatures:     uint32(state.AgFeatures),
		ExtendedErrors: state.ExtendedErrors,
		Indicators:     state.AgIndicatorStatus,
		Reporting:      state.AgIndicatorEvents.IsEnabled,
		BatteryLevel:   state.HfIndicators.BatteryLevel.Value,
		EnhancedSafety: state.HfIndicators.EnhancedSafety.Value,
	}
	if state.SelectedCodec != nil {
		s.SelectedCodec = state.SelectedCodec.String()
	}
	for _, m := range p.conn.InProgress() {
		s.InProgress = append(s.InProgress, m.String())
	}
	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()
}
