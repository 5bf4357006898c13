package procedure

import (
	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/protocol/at"
)

// Request is what a procedure asks its driver to do next.
type Request interface {
	// RequiresResponse is true when the driver owes the procedure an AgUpdate.
	RequiresResponse() bool
}

// None asks for nothing.
type None struct{}

// SendMessages asks the driver to write Messages to the peer, in order.
type SendMessages struct {
	Messages []at.Response
}

// GetAgFeatures asks the AG for its supported feature bitmap.
type GetAgFeatures struct {
	Respond func(features AgFeatures) AgUpdate
}

// GetAgIndicatorStatus asks the AG for the current value of every indicator.
type GetAgIndicatorStatus struct {
	Respond func(status indicators.IndicatorStatus) AgUpdate
}

// GetNetworkOperatorName asks the AG for the registered operator name. An
// empty name means no operator.
type GetNetworkOperatorName struct {
	Respond func(name string) AgUpdate
}

// SendHfIndicator hands a validated HF indicator to the AG.
type SendHfIndicator struct {
	Indicator indicators.HfIndicator
	Respond   func() AgUpdate
}

// Failure reports a procedure error. NotifyPeer is true when the HF is owed
// an ERROR result code for the command that caused it.
type Failure struct {
	Err        error
	NotifyPeer bool
}

func (None) RequiresResponse() bool                   { return false }
func (SendMessages) RequiresResponse() bool           { return false }
func (GetAgFeatures) RequiresResponse() bool          { return true }
func (GetAgIndicatorStatus) RequiresResponse() bool   { return true }
func (GetNetworkOperatorName) RequiresResponse() bool { return true }
func (SendHfIndicator) RequiresResponse() bool        { return true }
func (Failure) RequiresResponse() bool                { return false }

func send(msgs ...at.Response) SendMessages {
	return SendMessages{Messages: msgs}
}

func fail(err error) Failure {
	return Failure{Err: err, NotifyPeer: true}
}
