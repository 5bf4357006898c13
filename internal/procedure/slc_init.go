package procedure

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/protocol/at"
)

type slciStage int

const (
	slciAwaitBrsf slciStage = iota
	slciAwaitAgFeatures
	slciAwaitBac
	slciAwaitCindTest
	slciAwaitCindRead
	slciAwaitIndicatorStatus
	slciAwaitCmer
	slciAwaitChldTest
	slciAwaitBindSet
	slciAwaitBindTest
	slciAwaitBindRead
	slciDone
)

// ThreeWaySupport is the +CHLD list the AG advertises.
var ThreeWaySupport = []string{"0", "1", "1x", "2", "2x", "3", "4"}

// slcInit walks the mandatory and conditional steps of SLC bring-up. Which
// conditional steps run depends on the features exchanged by AT+BRSF.
type slcInit struct {
	stage slciStage
}

func (p *slcInit) Marker() Marker { return SlcInitialization }

func (p *slcInit) IsTerminated() bool { return p.stage == slciDone }

func (p *slcInit) HFUpdate(cmd at.Command, state *SlcState) Request {
	switch {
	case p.stage == slciAwaitBrsf && cmd.Is("+BRSF", at.Set):
		v, err := cmd.IntArg(0)
		if err != nil || v < 0 || v > math.MaxUint32 {
			return fail(fmt.Errorf("%w: +BRSF %v", ErrInvalidArguments, cmd.Args))
		}
		state.HfFeatures = HfFeatures(v)
		p.stage = slciAwaitAgFeatures
		return GetAgFeatures{Respond: func(f AgFeatures) AgUpdate {
			return AgFeaturesUpdate{Features: f}
		}}

	case p.stage == slciAwaitBac && cmd.Is("+BAC", at.Set):
		codecs, err := parseCodecs(cmd)
		if err != nil {
			return fail(err)
		}
		state.HfSupportedCodecs = codecs
		p.stage = slciAwaitCindTest
		return send(at.Ok())

	case p.stage == slciAwaitCindTest && cmd.Is("+CIND", at.Test):
		p.stage = slciAwaitCindRead
		return send(cindTestResponse(), at.Ok())

	case p.stage == slciAwaitCindRead && cmd.Is("+CIND", at.Read):
		p.stage = slciAwaitIndicatorStatus
		return GetAgIndicatorStatus{Respond: func(s indicators.IndicatorStatus) AgUpdate {
			return IndicatorStatusUpdate{Status: s}
		}}

	case p.stage == slciAwaitCmer && cmd.Is("+CMER", at.Set):
		if err := applyCmer(cmd, state); err != nil {
			return fail(err)
		}
		p.stage = p.afterCmer(state)
		return send(at.Ok())

	case p.stage == slciAwaitChldTest && cmd.Is("+CHLD", at.Test):
		if state.HfIndicatorsSupported() {
			p.stage = slciAwaitBindSet
		} else {
			p.stage = slciDone
		}
		return send(at.Result("+CHLD", "("+strings.Join(ThreeWaySupport, ",")+")"), at.Ok())

	case p.stage == slciAwaitBindSet && cmd.Is("+BIND", at.Set):
		kinds, err := cmd.IntArgs()
		if err != nil {
			return fail(err)
		}
		for _, k := range kinds {
			state.HfIndicators.Enable(indicators.HfIndicatorKind(k))
		}
		p.stage = slciAwaitBindTest
		return send(at.Ok())

	case p.stage == slciAwaitBindTest && cmd.Is("+BIND", at.Test):
		p.stage = slciAwaitBindRead
		return send(at.Result("+BIND", fmt.Sprintf("(%d,%d)", indicators.EnhancedSafety, indicators.BatteryLevel)), at.Ok())

	case p.stage == slciAwaitBindRead && cmd.Is("+BIND", at.Read):
		p.stage = slciDone
		return SendMessages{Messages: state.HfIndicators.BindResponse()}
	}
	return unexpectedCommand(p.Marker(), cmd)
}

func (p *slcInit) AGUpdate(update AgUpdate, state *SlcState) Request {
	switch u := update.(type) {
	case AgFeaturesUpdate:
		if p.stage != slciAwaitAgFeatures {
			break
		}
		state.AgFeatures = u.Features
		if state.CodecNegotiationSupported() {
			p.stage = slciAwaitBac
		} else {
			p.stage = slciAwaitCindTest
		}
		return send(at.Result("+BRSF", strconv.FormatUint(uint64(u.Features), 10)), at.Ok())
	case IndicatorStatusUpdate:
		if p.stage != slciAwaitIndicatorStatus {
			break
		}
		state.AgIndicatorStatus = u.Status
		p.stage = slciAwaitCmer
		return send(cindReadResponse(u.Status), at.Ok())
	}
	return unexpectedUpdate(p.Marker(), update)
}

func (p *slcInit) afterCmer(state *SlcState) slciStage {
	switch {
	case state.ThreeWayCallingSupported():
		return slciAwaitChldTest
	case state.HfIndicatorsSupported():
		return slciAwaitBindSet
	default:
		return slciDone
	}
}

// applyCmer handles AT+CMER=<mode>,<keyp>,<disp>,<ind>. Only mode 3 is
// defined for HFP.
func applyCmer(cmd at.Command, state *SlcState) error {
	if len(cmd.Args) < 4 {
		return fmt.Errorf("%w: +CMER %v", ErrInvalidArguments, cmd.Args)
	}
	mode, err := cmd.IntArg(0)
	if err != nil {
		return err
	}
	if mode != 3 {
		return fmt.Errorf("%w: +CMER mode %d", ErrInvalidArguments, mode)
	}
	ind, err := cmd.IntArg(3)
	if err != nil {
		return err
	}
	return state.AgIndicatorEvents.SetReportingStatus(int(ind))
}

func parseCodecs(cmd at.Command) ([]CodecID, error) {
	ids, err := cmd.IntArgs()
	if err != nil {
		return nil, err
	}
	out := make([]CodecID, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || id > 255 {
			return nil, fmt.Errorf("%w: codec %d", ErrInvalidArguments, id)
		}
		out = append(out, CodecID(id))
	}
	return out, nil
}

func cindTestResponse() at.Response {
	args := make([]string, 0, len(indicators.AllAgIndicators))
	for _, ind := range indicators.AllAgIndicators {
		rng := "(0,1)"
		if ind.MaxValue() > 1 {
			rng = fmt.Sprintf("(0-%d)", ind.MaxValue())
		}
		args = append(args, fmt.Sprintf("(%q,%s)", ind.String(), rng))
	}
	return at.Result("+CIND", args...)
}

func cindReadResponse(s indicators.IndicatorStatus) at.Response {
	values := s.Values()
	args := make([]string, 0, len(values))
	for _, v := range values {
		args = append(args, strconv.Itoa(int(v)))
	}
	return at.Result("+CIND", args...)
}
