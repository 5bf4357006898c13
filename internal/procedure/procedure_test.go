package procedure

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/protocol/at"
	"github.com/danmuck/hfpag/internal/testutil/testlog"
)

func mustCmd(t *testing.T, line string) at.Command {
	t.Helper()
	cmd, err := at.ParseCommand([]byte(line))
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return cmd
}

func expectSend(t *testing.T, req Request, want ...string) {
	t.Helper()
	sm, ok := req.(SendMessages)
	if !ok {
		t.Fatalf("expected SendMessages, got %#v", req)
	}
	if len(sm.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), sm.Messages)
	}
	for i := range want {
		if got := sm.Messages[i].String(); got != want[i] {
			t.Fatalf("message %d: got %q want %q", i, got, want[i])
		}
	}
}

func expectFailure(t *testing.T, req Request, target error) Failure {
	t.Helper()
	f, ok := req.(Failure)
	if !ok {
		t.Fatalf("expected Failure, got %#v", req)
	}
	if target != nil && !errors.Is(f.Err, target) {
		t.Fatalf("expected %v, got %v", target, f.Err)
	}
	return f
}

func TestSlcInitMinimalFeatures(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()
	p, err := New(SlcInitialization)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	req := p.HFUpdate(mustCmd(t, "AT+BRSF=0"), &state)
	ask, ok := req.(GetAgFeatures)
	if !ok || !req.RequiresResponse() {
		t.Fatalf("expected GetAgFeatures, got %#v", req)
	}
	expectSend(t, p.AGUpdate(ask.Respond(AgExtendedErrorCodes), &state), "+BRSF: 256", "OK")

	expectSend(t, p.HFUpdate(mustCmd(t, "AT+CIND=?"), &state),
		`+CIND: ("service",(0,1)),("call",(0,1)),("callsetup",(0-3)),("callheld",(0-2)),("signal",(0-5)),("roam",(0,1)),("battchg",(0-5))`,
		"OK")

	statusAsk, ok := p.HFUpdate(mustCmd(t, "AT+CIND?"), &state).(GetAgIndicatorStatus)
	if !ok {
		t.Fatalf("expected GetAgIndicatorStatus")
	}
	status := indicators.IndicatorStatus{Service: 1, Signal: 4, BattChg: 3}
	expectSend(t, p.AGUpdate(statusAsk.Respond(status), &state), "+CIND: 1,0,0,0,4,0,3", "OK")

	if p.IsTerminated() {
		t.Fatalf("terminated before CMER")
	}
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+CMER=3,0,0,1"), &state), "OK")
	if !p.IsTerminated() {
		t.Fatalf("expected termination after CMER without optional features")
	}
	if !state.AgIndicatorEvents.IsEnabled {
		t.Fatalf("expected indicator reporting enabled")
	}
	if state.AgIndicatorStatus != status {
		t.Fatalf("status not stored: %+v", state.AgIndicatorStatus)
	}
}

func TestSlcInitAllOptionalSteps(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()
	p, _ := New(SlcInitialization)

	hf := HfThreeWayCalling | HfCodecNegotiation | HfHfIndicators
	ag := AgThreeWayCalling | AgCodecNegotiation | AgHfIndicators

	ask := p.HFUpdate(mustCmd(t, "AT+BRSF=386"), &state).(GetAgFeatures)
	if state.HfFeatures != hf {
		t.Fatalf("unexpected hf features: %d", state.HfFeatures)
	}
	p.AGUpdate(ask.Respond(ag), &state)
	if !state.CodecNegotiationSupported() || !state.ThreeWayCallingSupported() || !state.HfIndicatorsSupported() {
		t.Fatalf("expected every predicate true")
	}

	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BAC=1,2"), &state), "OK")
	if len(state.HfSupportedCodecs) != 2 || !state.HfSupportsCodec(CodecMSBC) {
		t.Fatalf("codecs not stored: %v", state.HfSupportedCodecs)
	}
	p.HFUpdate(mustCmd(t, "AT+CIND=?"), &state)
	statusAsk := p.HFUpdate(mustCmd(t, "AT+CIND?"), &state).(GetAgIndicatorStatus)
	p.AGUpdate(statusAsk.Respond(indicators.IndicatorStatus{}), &state)
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+CMER=3,0,0,1"), &state), "OK")
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+CHLD=?"), &state), "+CHLD: (0,1,1x,2,2x,3,4)", "OK")
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BIND=2"), &state), "OK")
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BIND=?"), &state), "+BIND: (1,2)", "OK")
	if p.IsTerminated() {
		t.Fatalf("terminated before BIND?")
	}
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BIND?"), &state), "+BIND: 1,0", "+BIND: 2,1", "OK")
	if !p.IsTerminated() {
		t.Fatalf("expected termination after BIND?")
	}
}

func TestSlcInitRejectsOutOfOrder(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()
	p, _ := New(SlcInitialization)
	f := expectFailure(t, p.HFUpdate(mustCmd(t, "AT+CIND?"), &state), ErrUnexpectedCommand)
	if !f.NotifyPeer {
		t.Fatalf("peer must be told about a bad command")
	}
	if f.RequiresResponse() {
		t.Fatalf("failures never require an ag response")
	}

	p, _ = New(SlcInitialization)
	expectFailure(t, p.AGUpdate(AgFeaturesUpdate{}, &state), ErrUnexpectedUpdate)

	p, _ = New(SlcInitialization)
	ask := p.HFUpdate(mustCmd(t, "AT+BRSF=0"), &state).(GetAgFeatures)
	p.AGUpdate(ask.Respond(0), &state)
	p.HFUpdate(mustCmd(t, "AT+CIND=?"), &state)
	statusAsk := p.HFUpdate(mustCmd(t, "AT+CIND?"), &state).(GetAgIndicatorStatus)
	p.AGUpdate(statusAsk.Respond(indicators.IndicatorStatus{}), &state)
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+CMER=3,0,0,2"), &state), indicators.ErrUnsupportedReportingStatus)
}

func TestHfIndicatorProcedure(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()
	state.AgFeatures = AgHfIndicators
	state.HfFeatures = HfHfIndicators

	p, _ := New(HfIndicator)
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+BIEV=2,50"), &state), indicators.ErrIndicatorDisabled)
	if !p.IsTerminated() {
		t.Fatalf("failed procedure must terminate")
	}

	state.HfIndicators.Enable(indicators.BatteryLevel)
	p, _ = New(HfIndicator)
	req := p.HFUpdate(mustCmd(t, "AT+BIEV=2,83"), &state)
	ask, ok := req.(SendHfIndicator)
	if !ok {
		t.Fatalf("expected SendHfIndicator, got %#v", req)
	}
	if ask.Indicator != (indicators.HfIndicator{Kind: indicators.BatteryLevel, Value: 83}) {
		t.Fatalf("unexpected indicator: %+v", ask.Indicator)
	}
	if p.IsTerminated() {
		t.Fatalf("terminated while an ask is outstanding")
	}
	expectSend(t, p.AGUpdate(ask.Respond(), &state), "OK")
	if !p.IsTerminated() {
		t.Fatalf("expected termination after ack")
	}

	p, _ = New(HfIndicator)
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+BIEV=2,1243"), &state), indicators.ErrIndicatorValue)

	state.AgFeatures = 0
	p, _ = New(HfIndicator)
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+BIEV=2,10"), &state), ErrNotSupported)
}

func TestIndicatorsActivationProcedure(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()
	p, _ := New(IndicatorsActivation)
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BIA=0,,,,0,,1,1,1"), &state), "OK")
	ev := state.AgIndicatorEvents
	if ev.Service || ev.Signal || !ev.Roam || !ev.BattChg {
		t.Fatalf("unexpected flags: %+v", ev)
	}

	p, _ = New(IndicatorsActivation)
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+BIA=2"), &state), ErrInvalidArguments)
}

func TestIndicatorsActivationIgnoresFarPositions(t *testing.T) {
	testlog.Start(t)
	for _, commas := range []int{256, 260, 262} {
		line := "AT+BIA=" + strings.Repeat(",", commas) + "0"
		cmd, err := (at.TextCodec{}).Decode([]byte(line))
		if err != nil {
			t.Fatalf("decode %d commas: %v", commas, err)
		}
		state := NewSlcState()
		before := state.AgIndicatorEvents
		p, _ := New(IndicatorsActivation)
		expectSend(t, p.HFUpdate(cmd, &state), "OK")
		if state.AgIndicatorEvents != before {
			t.Fatalf("position %d changed flags: %+v", commas+1, state.AgIndicatorEvents)
		}
	}
}

func TestSlcInitRejectsOversizedFeatures(t *testing.T) {
	testlog.Start(t)
	for _, line := range []string{"AT+BRSF=4294967296", "AT+BRSF=4294967553", "AT+BRSF=-1"} {
		state := NewSlcState()
		p, _ := New(SlcInitialization)
		expectFailure(t, p.HFUpdate(mustCmd(t, line), &state), ErrInvalidArguments)
		if state.HfFeatures != 0 {
			t.Fatalf("%s stored features %d", line, state.HfFeatures)
		}
	}

	state := NewSlcState()
	p, _ := New(SlcInitialization)
	if _, ok := p.HFUpdate(mustCmd(t, "AT+BRSF=4294967295"), &state).(GetAgFeatures); !ok {
		t.Fatalf("largest 32-bit feature set must be accepted")
	}
}

func TestExtendedErrorsAndReporting(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()
	p, _ := New(ExtendedErrors)
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+CMEE=1"), &state), "OK")
	if !state.ExtendedErrors {
		t.Fatalf("expected extended errors on")
	}

	p, _ = New(IndicatorReporting)
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+CMER=3,0,0,5"), &state), indicators.ErrUnsupportedReportingStatus)
	p, _ = New(IndicatorReporting)
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+CMER=3,0,0,1"), &state), "OK")
	if !state.AgIndicatorEvents.IsEnabled {
		t.Fatalf("expected reporting enabled")
	}
}

func TestOperatorSelection(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()

	p, _ := New(QueryOperatorSelection)
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+COPS?"), &state), ErrOperatorFormatUnset)

	p, _ = New(QueryOperatorSelection)
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+COPS=3,0"), &state), "OK")
	if state.NetworkOperatorNameFormat == nil || *state.NetworkOperatorNameFormat != LongAlphanumeric {
		t.Fatalf("format not stored")
	}

	p, _ = New(QueryOperatorSelection)
	ask, ok := p.HFUpdate(mustCmd(t, "AT+COPS?"), &state).(GetNetworkOperatorName)
	if !ok {
		t.Fatalf("expected GetNetworkOperatorName")
	}
	expectSend(t, p.AGUpdate(ask.Respond("Mobile Co"), &state), `+COPS: 0,0,"Mobile Co"`, "OK")
	if !p.IsTerminated() {
		t.Fatalf("expected termination")
	}

	p, _ = New(QueryOperatorSelection)
	ask = p.HFUpdate(mustCmd(t, "AT+COPS?"), &state).(GetNetworkOperatorName)
	expectSend(t, p.AGUpdate(ask.Respond(""), &state), "+COPS: 0", "OK")
}

func TestPhoneStatusGatedByReporting(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()

	p, _ := New(PhoneStatus)
	if _, ok := p.AGUpdate(PhoneStatusUpdate{Indicator: indicators.Call, Value: 1}, &state).(None); !ok {
		t.Fatalf("expected no report while reporting disabled")
	}
	if state.AgIndicatorStatus.Call != 1 {
		t.Fatalf("status must update even when not reported")
	}

	state.AgIndicatorEvents.IsEnabled = true
	state.AgIndicatorEvents.Signal = false
	p, _ = New(PhoneStatus)
	if _, ok := p.AGUpdate(PhoneStatusUpdate{Indicator: indicators.Signal, Value: 2}, &state).(None); !ok {
		t.Fatalf("expected no report for disabled signal flag")
	}
	p, _ = New(PhoneStatus)
	expectSend(t, p.AGUpdate(PhoneStatusUpdate{Indicator: indicators.CallSetup, Value: 2}, &state), "+CIEV: 3,2")
	if !p.IsTerminated() {
		t.Fatalf("expected termination")
	}

	p, _ = New(PhoneStatus)
	f := expectFailure(t, p.AGUpdate(PhoneStatusUpdate{Indicator: indicators.Call, Value: 4}, &state), indicators.ErrAgIndicatorRange)
	if f.NotifyPeer {
		t.Fatalf("ag-side failure must not notify the peer")
	}
}

func TestCodecNegotiation(t *testing.T) {
	testlog.Start(t)
	state := NewSlcState()
	state.AgFeatures = AgCodecNegotiation
	state.HfFeatures = HfCodecNegotiation
	state.HfSupportedCodecs = []CodecID{CodecCVSD, CodecMSBC}

	p, _ := New(CodecNegotiation)
	expectSend(t, p.AGUpdate(CodecSetup{Codec: CodecMSBC}, &state), "+BCS: 2")
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BCS=2"), &state), "OK")
	if state.SelectedCodec == nil || *state.SelectedCodec != CodecMSBC {
		t.Fatalf("codec not selected")
	}

	p, _ = New(CodecNegotiation)
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BCC"), &state), "OK", "+BCS: 2")
	expectFailure(t, p.HFUpdate(mustCmd(t, "AT+BCS=1"), &state), ErrInvalidArguments)

	p, _ = New(CodecNegotiation)
	expectFailure(t, p.AGUpdate(CodecSetup{Codec: CodecLC3}, &state), ErrInvalidArguments)

	p, _ = New(CodecNegotiation)
	expectSend(t, p.HFUpdate(mustCmd(t, "AT+BAC=1"), &state), "OK")
	if state.HfSupportsCodec(CodecMSBC) {
		t.Fatalf("codec list not replaced")
	}
}

func TestIdentify(t *testing.T) {
	testlog.Start(t)
	cases := map[string]Marker{
		"AT+BRSF=1":       SlcInitialization,
		"AT+CHLD=?":       SlcInitialization,
		"AT+BIEV=2,1":     HfIndicator,
		"AT+BIA=1":        IndicatorsActivation,
		"AT+CMER=3,0,0,1": IndicatorReporting,
		"AT+CMEE=1":       ExtendedErrors,
		"AT+COPS?":        QueryOperatorSelection,
		"AT+BCS=1":        CodecNegotiation,
	}
	for line, want := range cases {
		got, err := Identify(mustCmd(t, line))
		if err != nil || got != want {
			t.Fatalf("identify %q: got %v err=%v want %v", line, got, err, want)
		}
	}
	if _, err := Identify(mustCmd(t, "AT+CHLD=1")); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if _, err := New(Marker(99)); !errors.Is(err, ErrUnknownMarker) {
		t.Fatalf("expected ErrUnknownMarker, got %v", err)
	}
	for _, m := range Markers {
		p, err := New(m)
		if err != nil || p.Marker() != m {
			t.Fatalf("constructor mismatch for %s", m)
		}
	}
}
