package procedure

import "github.com/danmuck/hfpag/internal/indicators"

// AgUpdate is an AG-side input to a procedure: either the answer to an ask
// or an AG-originated event.
type AgUpdate interface {
	isAgUpdate()
}

type AgFeaturesUpdate struct {
	Features AgFeatures
}

type IndicatorStatusUpdate struct {
	Status indicators.IndicatorStatus
}

type NetworkOperatorUpdate struct {
	Name string
}

type HfIndicatorAck struct{}

// PhoneStatusUpdate is an AG indicator change (call, signal, ...).
type PhoneStatusUpdate struct {
	Indicator indicators.AgIndicator
	Value     uint8
}

// CodecSetup starts AG-initiated codec negotiation for Codec.
type CodecSetup struct {
	Codec CodecID
}

func (AgFeaturesUpdate) isAgUpdate()      {}
func (IndicatorStatusUpdate) isAgUpdate() {}
func (NetworkOperatorUpdate) isAgUpdate() {}
func (HfIndicatorAck) isAgUpdate()        {}
func (PhoneStatusUpdate) isAgUpdate()     {}
func (CodecSetup) isAgUpdate()            {}
