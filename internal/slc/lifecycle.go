package slc

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// Phase is the connection lifecycle state.
type Phase string

const (
	PhaseUnconnected   Phase = "unconnected"
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitialized   Phase = "initialized"
	PhaseDisconnected  Phase = "disconnected"
)

const (
	eventConnect    = "connect"
	eventInitialize = "initialize"
	eventClose      = "close"
)

func newLifecycle(logger zerolog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		string(PhaseUnconnected),
		fsm.Events{
			{Name: eventConnect, Src: []string{string(PhaseUnconnected)}, Dst: string(PhaseUninitialized)},
			{Name: eventInitialize, Src: []string{string(PhaseUninitialized)}, Dst: string(PhaseInitialized)},
			{Name: eventClose, Src: []string{string(PhaseUninitialized), string(PhaseInitialized)}, Dst: string(PhaseDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("slc.Connection phase")
			},
		},
	)
}
