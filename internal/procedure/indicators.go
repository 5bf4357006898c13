package procedure

import (
	"fmt"
	"strconv"

	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/protocol/at"
)

// hfIndicator handles AT+BIEV=<kind>,<value>: validate, hand the value to
// the AG, then acknowledge the HF.
type hfIndicator struct {
	awaitingAck bool
	done        bool
}

func (p *hfIndicator) Marker() Marker     { return HfIndicator }
func (p *hfIndicator) IsTerminated() bool { return p.done }

func (p *hfIndicator) HFUpdate(cmd at.Command, state *SlcState) Request {
	if p.awaitingAck || p.done || !cmd.Is("+BIEV", at.Set) {
		p.done = true
		return unexpectedCommand(p.Marker(), cmd)
	}
	req := p.begin(cmd, state)
	if _, failed := req.(Failure); failed {
		p.done = true
	} else {
		p.awaitingAck = true
	}
	return req
}

func (p *hfIndicator) begin(cmd at.Command, state *SlcState) Request {
	if !state.HfIndicatorsSupported() {
		return fail(fmt.Errorf("%w: hf indicators", ErrNotSupported))
	}
	if len(cmd.Args) != 2 {
		return fail(fmt.Errorf("%w: +BIEV %v", ErrInvalidArguments, cmd.Args))
	}
	vals, err := cmd.IntArgs()
	if err != nil {
		return fail(err)
	}
	ind, err := state.HfIndicators.Update(indicators.HfIndicatorKind(vals[0]), vals[1])
	if err != nil {
		return fail(err)
	}
	return SendHfIndicator{Indicator: ind, Respond: func() AgUpdate { return HfIndicatorAck{} }}
}

func (p *hfIndicator) AGUpdate(update AgUpdate, state *SlcState) Request {
	if _, ok := update.(HfIndicatorAck); !ok || !p.awaitingAck {
		p.done = true
		return unexpectedUpdate(p.Marker(), update)
	}
	p.awaitingAck = false
	p.done = true
	return send(at.Ok())
}

// indicatorsActivation handles AT+BIA, the positional per-indicator toggle.
type indicatorsActivation struct {
	done bool
}

func (p *indicatorsActivation) Marker() Marker     { return IndicatorsActivation }
func (p *indicatorsActivation) IsTerminated() bool { return p.done }

func (p *indicatorsActivation) HFUpdate(cmd at.Command, state *SlcState) Request {
	p.done = true
	if !cmd.Is("+BIA", at.Set) {
		return unexpectedCommand(p.Marker(), cmd)
	}
	flags := make([]*bool, 0, len(cmd.Args))
	for i, arg := range cmd.Args {
		switch arg {
		case "":
			flags = append(flags, nil)
		case "0", "1":
			v := arg == "1"
			flags = append(flags, &v)
		default:
			return fail(fmt.Errorf("%w: +BIA position %d=%q", ErrInvalidArguments, i+1, arg))
		}
	}
	state.AgIndicatorEvents.UpdateFromFlags(flags)
	return send(at.Ok())
}

func (p *indicatorsActivation) AGUpdate(update AgUpdate, _ *SlcState) Request {
	p.done = true
	return unexpectedUpdate(p.Marker(), update)
}

// indicatorReporting handles AT+CMER once the connection is up.
type indicatorReporting struct {
	done bool
}

func (p *indicatorReporting) Marker() Marker     { return IndicatorReporting }
func (p *indicatorReporting) IsTerminated() bool { return p.done }

func (p *indicatorReporting) HFUpdate(cmd at.Command, state *SlcState) Request {
	p.done = true
	if !cmd.Is("+CMER", at.Set) {
		return unexpectedCommand(p.Marker(), cmd)
	}
	if err := applyCmer(cmd, state); err != nil {
		return fail(err)
	}
	return send(at.Ok())
}

func (p *indicatorReporting) AGUpdate(update AgUpdate, _ *SlcState) Request {
	p.done = true
	return unexpectedUpdate(p.Marker(), update)
}

// phoneStatus pushes an AG indicator change to the HF as +CIEV, when the HF
// is subscribed to it.
type phoneStatus struct {
	done bool
}

func (p *phoneStatus) Marker() Marker     { return PhoneStatus }
func (p *phoneStatus) IsTerminated() bool { return p.done }

func (p *phoneStatus) HFUpdate(cmd at.Command, _ *SlcState) Request {
	p.done = true
	return unexpectedCommand(p.Marker(), cmd)
}

func (p *phoneStatus) AGUpdate(update AgUpdate, state *SlcState) Request {
	p.done = true
	u, ok := update.(PhoneStatusUpdate)
	if !ok {
		return unexpectedUpdate(p.Marker(), update)
	}
	if err := state.AgIndicatorStatus.Set(u.Indicator, u.Value); err != nil {
		return Failure{Err: err}
	}
	if !state.AgIndicatorEvents.IndicatorEnabled(u.Indicator) {
		return None{}
	}
	return send(at.Result("+CIEV", strconv.Itoa(u.Indicator.Index()), strconv.Itoa(int(u.Value))))
}
