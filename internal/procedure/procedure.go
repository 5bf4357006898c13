package procedure

import (
	"errors"
	"fmt"

	"github.com/danmuck/hfpag/internal/protocol/at"
)

var (
	ErrUnknownCommand    = errors.New("procedure: no procedure claims command")
	ErrUnknownMarker     = errors.New("procedure: unknown marker")
	ErrUnexpectedCommand = errors.New("procedure: unexpected command")
	ErrUnexpectedUpdate  = errors.New("procedure: unexpected ag update")
	ErrInvalidArguments  = errors.New("procedure: invalid arguments")
	ErrNotSupported      = errors.New("procedure: feature not negotiated")
	ErrAlreadyTerminated = errors.New("procedure: already terminated")
)

// Marker identifies a procedure kind. The set is closed.
type Marker int

const (
	SlcInitialization Marker = iota + 1
	HfIndicator
	IndicatorsActivation
	IndicatorReporting
	ExtendedErrors
	QueryOperatorSelection
	PhoneStatus
	CodecNegotiation
)

// Markers lists every procedure kind.
var Markers = []Marker{
	SlcInitialization,
	HfIndicator,
	IndicatorsActivation,
	IndicatorReporting,
	ExtendedErrors,
	QueryOperatorSelection,
	PhoneStatus,
	CodecNegotiation,
}

func (m Marker) String() string {
	switch m {
	case SlcInitialization:
		return "slc_initialization"
	case HfIndicator:
		return "hf_indicator"
	case IndicatorsActivation:
		return "indicators_activation"
	case IndicatorReporting:
		return "indicator_reporting"
	case ExtendedErrors:
		return "extended_errors"
	case QueryOperatorSelection:
		return "query_operator_selection"
	case PhoneStatus:
		return "phone_status"
	case CodecNegotiation:
		return "codec_negotiation"
	default:
		return fmt.Sprintf("marker(%d)", int(m))
	}
}

// Procedure is one in-progress exchange. HFUpdate consumes peer commands,
// AGUpdate consumes local updates; both may be called in any order the
// procedure accepts.
type Procedure interface {
	Marker() Marker
	HFUpdate(cmd at.Command, state *SlcState) Request
	AGUpdate(update AgUpdate, state *SlcState) Request
	IsTerminated() bool
}

// New returns a fresh procedure for m.
func New(m Marker) (Procedure, error) {
	switch m {
	case SlcInitialization:
		return &slcInit{}, nil
	case HfIndicator:
		return &hfIndicator{}, nil
	case IndicatorsActivation:
		return &indicatorsActivation{}, nil
	case IndicatorReporting:
		return &indicatorReporting{}, nil
	case ExtendedErrors:
		return &extendedErrors{}, nil
	case QueryOperatorSelection:
		return &operatorSelection{}, nil
	case PhoneStatus:
		return &phoneStatus{}, nil
	case CodecNegotiation:
		return &codecNegotiation{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMarker, int(m))
	}
}

// Identify classifies an HF command by content.
func Identify(cmd at.Command) (Marker, error) {
	switch cmd.Name {
	case "+BRSF", "+CIND", "+BIND":
		return SlcInitialization, nil
	case "+CHLD":
		if cmd.Type == at.Test {
			return SlcInitialization, nil
		}
	case "+BIEV":
		return HfIndicator, nil
	case "+BIA":
		return IndicatorsActivation, nil
	case "+CMER":
		return IndicatorReporting, nil
	case "+CMEE":
		return ExtendedErrors, nil
	case "+COPS":
		return QueryOperatorSelection, nil
	case "+BCC", "+BCS", "+BAC":
		return CodecNegotiation, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

// MarkerForUpdate returns the procedure that starts on an AG-originated
// update. Answers to asks are not classified; they go back to the procedure
// that asked.
func MarkerForUpdate(u AgUpdate) (Marker, bool) {
	switch u.(type) {
	case PhoneStatusUpdate:
		return PhoneStatus, true
	case CodecSetup:
		return CodecNegotiation, true
	default:
		return 0, false
	}
}

func unexpectedCommand(m Marker, cmd at.Command) Failure {
	return fail(fmt.Errorf("%w: %s got %s", ErrUnexpectedCommand, m, cmd))
}

func unexpectedUpdate(m Marker, u AgUpdate) Failure {
	return Failure{Err: fmt.Errorf("%w: %s got %T", ErrUnexpectedUpdate, m, u)}
}
