package indicators

import (
	"errors"
	"testing"

	"github.com/danmuck/hfpag/internal/protocol/at"
	"github.com/danmuck/hfpag/internal/testutil/testlog"
)

func TestBatteryLevelUpdate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name    string
		enabled bool
		raw     int64
		wantErr error
	}{
		{name: "enabled in range", enabled: true, raw: 83},
		{name: "enabled lower bound", enabled: true, raw: 0},
		{name: "enabled upper bound", enabled: true, raw: 100},
		{name: "enabled negative", enabled: true, raw: -18, wantErr: ErrIndicatorValue},
		{name: "enabled too large", enabled: true, raw: 1243, wantErr: ErrIndicatorValue},
		{name: "disabled", enabled: false, raw: 32, wantErr: ErrIndicatorDisabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var h HfIndicators
			if tc.enabled {
				h.Enable(BatteryLevel)
			}
			got, err := h.Update(BatteryLevel, tc.raw)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if h.BatteryLevel.Value != nil {
					t.Fatalf("rejected write mutated state: %d", *h.BatteryLevel.Value)
				}
				return
			}
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if got != (HfIndicator{Kind: BatteryLevel, Value: int(tc.raw)}) {
				t.Fatalf("unexpected indicator: %+v", got)
			}
			if h.BatteryLevel.Value == nil || int64(*h.BatteryLevel.Value) != tc.raw {
				t.Fatalf("value not stored: %+v", h.BatteryLevel)
			}
		})
	}
}

func TestEnhancedSafetyUpdate(t *testing.T) {
	testlog.Start(t)
	var h HfIndicators
	if _, err := h.Update(EnhancedSafety, 0); !errors.Is(err, ErrIndicatorDisabled) {
		t.Fatalf("expected ErrIndicatorDisabled, got %v", err)
	}

	h.Enable(EnhancedSafety)
	got, err := h.Update(EnhancedSafety, 0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Kind != EnhancedSafety || got.SafetyEnabled() {
		t.Fatalf("expected enhanced safety false, got %+v", got)
	}
	got, err = h.Update(EnhancedSafety, 1)
	if err != nil || !got.SafetyEnabled() {
		t.Fatalf("expected enhanced safety true, got %+v err=%v", got, err)
	}
	for _, raw := range []int64{-1, 2, 7} {
		if _, err := h.Update(EnhancedSafety, raw); !errors.Is(err, ErrIndicatorValue) {
			t.Fatalf("raw=%d expected ErrIndicatorValue, got %v", raw, err)
		}
	}
	if h.EnhancedSafety.Value == nil || !*h.EnhancedSafety.Value {
		t.Fatalf("rejected writes must keep last good value")
	}
}

func TestEnableIgnoresUnknownAndIsIdempotent(t *testing.T) {
	testlog.Start(t)
	var h HfIndicators
	h.Enable(HfIndicatorKind(9), BatteryLevel, BatteryLevel)
	if !h.BatteryLevel.Enabled || h.EnhancedSafety.Enabled {
		t.Fatalf("unexpected enable state: %+v", h)
	}
	if _, err := h.Update(HfIndicatorKind(9), 1); !errors.Is(err, ErrUnknownHfKind) {
		t.Fatalf("expected ErrUnknownHfKind, got %v", err)
	}
}

func TestBindResponseOrder(t *testing.T) {
	testlog.Start(t)
	var h HfIndicators
	h.Enable(BatteryLevel)
	got := h.BindResponse()
	want := []string{"+BIND: 1,0", "+BIND: 2,1", "OK"}
	if len(got) != len(want) {
		t.Fatalf("unexpected response length: %d", len(got))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("entry %d: got %q want %q", i, got[i].String(), want[i])
		}
	}
	if got[2].Kind != at.KindOk {
		t.Fatalf("last entry must be the success marker")
	}
}
