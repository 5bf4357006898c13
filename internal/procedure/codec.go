package procedure

import (
	"fmt"
	"strconv"

	"github.com/danmuck/hfpag/internal/protocol/at"
)

// codecNegotiation runs the +BCS exchange, started either by the AG
// (CodecSetup) or by the HF (AT+BCC). AT+BAC outside SLC bring-up updates the
// HF codec list and ends immediately.
type codecNegotiation struct {
	pending *CodecID
	done    bool
}

func (p *codecNegotiation) Marker() Marker     { return CodecNegotiation }
func (p *codecNegotiation) IsTerminated() bool { return p.done }

func (p *codecNegotiation) HFUpdate(cmd at.Command, state *SlcState) Request {
	switch {
	case p.pending == nil && cmd.Is("+BAC", at.Set):
		p.done = true
		codecs, err := parseCodecs(cmd)
		if err != nil {
			return fail(err)
		}
		state.HfSupportedCodecs = codecs
		return send(at.Ok())

	case p.pending == nil && cmd.Is("+BCC", at.Exec):
		if !state.CodecNegotiationSupported() {
			p.done = true
			return fail(fmt.Errorf("%w: codec negotiation", ErrNotSupported))
		}
		codec := preferredCodec(state)
		p.pending = &codec
		return send(at.Ok(), bcs(codec))

	case p.pending != nil && cmd.Is("+BCS", at.Set):
		p.done = true
		id, err := cmd.IntArg(0)
		if err != nil {
			return fail(err)
		}
		if CodecID(id) != *p.pending {
			return fail(fmt.Errorf("%w: +BCS=%d expected %d", ErrInvalidArguments, id, *p.pending))
		}
		selected := *p.pending
		state.SelectedCodec = &selected
		return send(at.Ok())
	}
	p.done = true
	return unexpectedCommand(p.Marker(), cmd)
}

func (p *codecNegotiation) AGUpdate(update AgUpdate, state *SlcState) Request {
	u, ok := update.(CodecSetup)
	if !ok || p.pending != nil {
		p.done = true
		return unexpectedUpdate(p.Marker(), update)
	}
	if !state.CodecNegotiationSupported() {
		p.done = true
		return Failure{Err: fmt.Errorf("%w: codec negotiation", ErrNotSupported)}
	}
	if !state.HfSupportsCodec(u.Codec) {
		p.done = true
		return Failure{Err: fmt.Errorf("%w: hf does not support %s", ErrInvalidArguments, u.Codec)}
	}
	codec := u.Codec
	p.pending = &codec
	return send(bcs(codec))
}

func preferredCodec(state *SlcState) CodecID {
	if state.HfSupportsCodec(CodecMSBC) {
		return CodecMSBC
	}
	return CodecCVSD
}

func bcs(c CodecID) at.Response {
	return at.Result("+BCS", strconv.Itoa(int(c)))
}
