package slc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/hfpag/internal/observability"
	"github.com/danmuck/hfpag/internal/procedure"
	"github.com/danmuck/hfpag/internal/protocol/at"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// Config configures one service level connection.
type Config struct {
	// PeerID labels logs; it does not affect behavior.
	PeerID string
	Codec  at.Codec
}

func (c Config) withDefaults() Config {
	if c.Codec == nil {
		c.Codec = at.TextCodec{}
	}
	return c
}

// Connection is the service level connection with one HF. It turns frames
// from its byte channel into (marker, request) pairs.
type Connection struct {
	cfg Config
	log zerolog.Logger

	channel io.ReadWriteCloser
	frames  chan []byte
	stop    chan struct{}
	once    *sync.Once

	state      procedure.SlcState
	procedures *Registry
	phase      *fsm.FSM
	terminated bool
}

// New creates an unconnected Connection.
func New(cfg Config) *Connection {
	cfg = cfg.withDefaults()
	logger := observability.Component("slc").With().Str("peer", cfg.PeerID).Logger()
	return &Connection{
		cfg:        cfg,
		log:        logger,
		state:      procedure.NewSlcState(),
		procedures: NewRegistry(),
		phase:      newLifecycle(logger),
	}
}

// Connect attaches the byte channel and starts reading frames from it.
func (c *Connection) Connect(channel io.ReadWriteCloser) error {
	if c.channel != nil || c.Phase() != PhaseUnconnected {
		return ErrAlreadyConnected
	}
	if err := c.phase.Event(context.Background(), eventConnect); err != nil {
		return fmt.Errorf("slc: connect: %w", err)
	}
	c.channel = channel
	c.frames = make(chan []byte)
	c.stop = make(chan struct{})
	c.once = &sync.Once{}
	go readFrames(channel, c.frames, c.stop, c.log)
	c.log.Info().Msg("slc.Connection.Connect channel attached")
	return nil
}

// readFrames splits r into command frames until r fails or stop closes.
func readFrames(r io.Reader, out chan<- []byte, stop <-chan struct{}, logger zerolog.Logger) {
	defer close(out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, at.MaxFrameLen), 16*at.MaxFrameLen)
	sc.Split(at.NewCommandSplitter())
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		select {
		case out <- frame:
		case <-stop:
			return
		}
	}
	if err := sc.Err(); err != nil {
		logger.Debug().Err(err).Msg("slc.readFrames stopped")
	}
}

// Connected reports whether a byte channel is attached.
func (c *Connection) Connected() bool {
	return c.channel != nil
}

// Initialized reports whether SLC initialization has completed.
func (c *Connection) Initialized() bool {
	return c.state.Initialized
}

func (c *Connection) Phase() Phase {
	return Phase(c.phase.Current())
}

// IsTerminated reports whether the channel closed. Next must not be called
// afterwards.
func (c *Connection) IsTerminated() bool {
	return c.terminated
}

// State returns a copy of the negotiated state.
func (c *Connection) State() procedure.SlcState {
	return c.state
}

// InProgress lists the procedures currently alive.
func (c *Connection) InProgress() []procedure.Marker {
	return c.procedures.Markers()
}

// Frames exposes inbound frames for drivers that select over other sources.
// Each receive must be passed to Deliver. It is nil while unconnected.
func (c *Connection) Frames() <-chan []byte {
	return c.frames
}

// Next waits for the next frame and dispatches it. It returns ErrClosed once,
// when the channel closes; later calls return ErrPolledAfterTermination.
func (c *Connection) Next(ctx context.Context) (procedure.Marker, procedure.Request, error) {
	if c.terminated {
		return 0, nil, ErrPolledAfterTermination
	}
	if c.frames == nil {
		return 0, nil, ErrNotConnected
	}
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case frame, ok := <-c.frames:
		return c.Deliver(frame, ok)
	}
}

// Deliver dispatches one receive from Frames. ok=false means the channel
// closed.
func (c *Connection) Deliver(frame []byte, ok bool) (procedure.Marker, procedure.Request, error) {
	if c.terminated {
		return 0, nil, ErrPolledAfterTermination
	}
	if !ok {
		c.terminate()
		return 0, nil, ErrClosed
	}
	cmd, err := c.cfg.Codec.Decode(frame)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnparsable, err)
		c.log.Warn().Err(err).Str("frame", string(frame)).Msg("slc.Connection.Deliver decode failed")
		observability.RecordSlcError(errorKind(err))
		return 0, nil, err
	}
	return c.HandleCommand(cmd)
}

// HandleCommand classifies an HF command, dispatches it to its procedure and
// applies the SLC lifecycle rules to the outcome.
func (c *Connection) HandleCommand(cmd at.Command) (procedure.Marker, procedure.Request, error) {
	if c.channel == nil {
		return 0, nil, ErrNotConnected
	}
	marker := procedure.SlcInitialization
	if c.state.Initialized {
		m, err := procedure.Identify(cmd)
		if err != nil {
			return 0, nil, c.surface(err)
		}
		if m == procedure.SlcInitialization {
			return m, nil, c.surface(fmt.Errorf("%w: %s", ErrUnexpectedInitialization, cmd))
		}
		marker = m
	}

	proc, err := c.procedures.Acquire(marker)
	if err != nil {
		return marker, nil, c.surface(err)
	}
	observability.RecordSlcDispatch(marker.String(), "hf")
	c.log.Debug().Str("marker", marker.String()).Str("command", cmd.String()).Msg("slc.Connection.HandleCommand dispatch")
	req := proc.HFUpdate(cmd, &c.state)
	return c.settle(marker, req)
}

// HandleAgUpdate feeds a local update to the procedure for marker. Use
// procedure.MarkerForUpdate for AG-originated updates and the marker returned
// with an ask for its answer.
func (c *Connection) HandleAgUpdate(marker procedure.Marker, update procedure.AgUpdate) (procedure.Request, error) {
	if c.channel == nil {
		return nil, ErrNotConnected
	}
	if !c.state.Initialized && marker != procedure.SlcInitialization {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, marker)
	}
	if c.state.Initialized && marker == procedure.SlcInitialization {
		return nil, c.surface(fmt.Errorf("%w: ag update %T", ErrUnexpectedInitialization, update))
	}
	proc, err := c.procedures.Acquire(marker)
	if err != nil {
		return nil, c.surface(err)
	}
	observability.RecordSlcDispatch(marker.String(), "ag")
	req := proc.AGUpdate(update, &c.state)
	_, req, err = c.settle(marker, req)
	return req, err
}

// settle garbage-collects the procedure and enforces the initialization
// rules. Any error while marker is SLC initialization resets the connection.
func (c *Connection) settle(marker procedure.Marker, req procedure.Request) (procedure.Marker, procedure.Request, error) {
	var err error
	if f, ok := req.(procedure.Failure); ok {
		err = &ProcedureError{Marker: marker, Err: f.Err, NotifyPeer: f.NotifyPeer}
		req = nil
	}

	if c.procedures.Collect(marker) {
		if err == nil && req != nil && req.RequiresResponse() {
			err = fmt.Errorf("%w: %s returned %T", ErrUnexpectedRequest, marker, req)
			req = nil
		}
		if err == nil && marker == procedure.SlcInitialization {
			c.state.Initialized = true
			if perr := c.phase.Event(context.Background(), eventInitialize); perr != nil {
				c.log.Warn().Err(perr).Msg("slc.Connection.settle phase")
			}
			c.log.Info().
				Bool("codec_negotiation", c.state.CodecNegotiationSupported()).
				Bool("three_way_calling", c.state.ThreeWayCallingSupported()).
				Bool("hf_indicators", c.state.HfIndicatorsSupported()).
				Msg("slc.Connection initialized")
		}
	}

	if err == nil {
		return marker, req, nil
	}
	if marker == procedure.SlcInitialization {
		c.log.Warn().Err(err).Msg("slc.Connection fatal error during initialization; resetting")
		observability.RecordSlcReset()
		c.reset()
	}
	return marker, nil, c.surface(err)
}

func (c *Connection) surface(err error) error {
	observability.RecordSlcError(errorKind(err))
	c.log.Debug().Err(err).Msg("slc.Connection error")
	return err
}

// Send encodes and writes each message in full, in order.
func (c *Connection) Send(msgs []at.Response) error {
	if c.channel == nil {
		return ErrNotConnected
	}
	for _, msg := range msgs {
		b, err := c.cfg.Codec.Encode(msg)
		if err != nil {
			return fmt.Errorf("slc: encode %s: %w", msg, err)
		}
		if _, err := c.channel.Write(b); err != nil {
			return fmt.Errorf("slc: write %s: %w", msg, err)
		}
	}
	return nil
}

// Close abandons the channel. The connection ends disconnected.
func (c *Connection) Close() error {
	if c.channel == nil {
		return nil
	}
	err := c.abandon()
	c.terminate()
	return err
}

func (c *Connection) terminate() {
	c.terminated = true
	if c.channel != nil {
		_ = c.abandon()
	}
	c.channel = nil
	c.frames = nil
	if c.phase.Can(eventClose) {
		if err := c.phase.Event(context.Background(), eventClose); err != nil {
			c.log.Warn().Err(err).Msg("slc.Connection.terminate phase")
		}
	}
}

func (c *Connection) abandon() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		err = c.channel.Close()
	})
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// reset drops the channel and every negotiated value; the result is
// indistinguishable from New(cfg).
func (c *Connection) reset() {
	if c.channel != nil {
		_ = c.abandon()
	}
	*c = *New(c.cfg)
}
