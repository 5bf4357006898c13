package procedure

import (
	"errors"
	"fmt"

	"github.com/danmuck/hfpag/internal/protocol/at"
)

var ErrOperatorFormatUnset = errors.New("procedure: network operator name format not set")

// extendedErrors handles AT+CMEE=<0|1>.
type extendedErrors struct {
	done bool
}

func (p *extendedErrors) Marker() Marker     { return ExtendedErrors }
func (p *extendedErrors) IsTerminated() bool { return p.done }

func (p *extendedErrors) HFUpdate(cmd at.Command, state *SlcState) Request {
	p.done = true
	if !cmd.Is("+CMEE", at.Set) || len(cmd.Args) != 1 {
		return unexpectedCommand(p.Marker(), cmd)
	}
	switch cmd.Args[0] {
	case "0":
		state.ExtendedErrors = false
	case "1":
		state.ExtendedErrors = true
	default:
		return fail(fmt.Errorf("%w: +CMEE %q", ErrInvalidArguments, cmd.Args[0]))
	}
	return send(at.Ok())
}

func (p *extendedErrors) AGUpdate(update AgUpdate, _ *SlcState) Request {
	p.done = true
	return unexpectedUpdate(p.Marker(), update)
}

// operatorSelection handles AT+COPS=3,0 (select long alphanumeric format) and
// AT+COPS? (query the registered operator).
type operatorSelection struct {
	awaitingName bool
	done         bool
}

func (p *operatorSelection) Marker() Marker     { return QueryOperatorSelection }
func (p *operatorSelection) IsTerminated() bool { return p.done }

func (p *operatorSelection) HFUpdate(cmd at.Command, state *SlcState) Request {
	if p.awaitingName {
		p.done = true
		return unexpectedCommand(p.Marker(), cmd)
	}
	switch {
	case cmd.Is("+COPS", at.Set):
		p.done = true
		if len(cmd.Args) != 2 || cmd.Args[0] != "3" || cmd.Args[1] != "0" {
			return fail(fmt.Errorf("%w: +COPS %v", ErrInvalidArguments, cmd.Args))
		}
		format := LongAlphanumeric
		state.NetworkOperatorNameFormat = &format
		return send(at.Ok())
	case cmd.Is("+COPS", at.Read):
		if state.NetworkOperatorNameFormat == nil {
			p.done = true
			return fail(ErrOperatorFormatUnset)
		}
		p.awaitingName = true
		return GetNetworkOperatorName{Respond: func(name string) AgUpdate {
			return NetworkOperatorUpdate{Name: name}
		}}
	}
	p.done = true
	return unexpectedCommand(p.Marker(), cmd)
}

func (p *operatorSelection) AGUpdate(update AgUpdate, state *SlcState) Request {
	p.done = true
	u, ok := update.(NetworkOperatorUpdate)
	if !ok || !p.awaitingName {
		return unexpectedUpdate(p.Marker(), update)
	}
	p.awaitingName = false
	if u.Name == "" {
		return send(at.Result("+COPS", "0"), at.Ok())
	}
	format := fmt.Sprintf("%d", int(*state.NetworkOperatorNameFormat))
	return send(at.Result("+COPS", "0", format, at.Quote(u.Name)), at.Ok())
}
