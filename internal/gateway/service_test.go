package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/testutil/testlog"
	"github.com/danmuck/hfpag/internal/transport"
)

func testService(t *testing.T) *Service {
	t.Helper()
	cfg := DefaultServiceConfig()
	cfg.AgFeatures = testAgState().Features()
	cfg.Indicators = indicators.IndicatorStatus{Service: 1, Signal: 4, BattChg: 3}
	cfg.Operator = "Carrier"
	s, err := NewServiceWithConfig(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return s
}

func serveHTTP(s *Service, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Admin().HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func attachHF(t *testing.T, s *Service, ctx context.Context, id string) (*Peer, *hf) {
	t.Helper()
	agSide, hfSide := net.Pipe()
	t.Cleanup(func() { _ = hfSide.Close() })
	p, err := s.Attach(ctx, transport.Link{Peer: id, Channel: agSide})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	return p, newHF(t, hfSide)
}

func TestServiceConfigValidation(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.HeartbeatInterval = 0
	if _, err := NewServiceWithConfig(cfg); !errors.Is(err, ErrInvalidHeartbeatInterval) {
		t.Fatalf("expected ErrInvalidHeartbeatInterval, got %v", err)
	}

	cfg = DefaultServiceConfig()
	cfg.TCPListenAddr = ""
	s, err := NewServiceWithConfig(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if err := s.Serve(context.Background()); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}

func TestAttachRejectsDuplicatePeer(t *testing.T) {
	testlog.Start(t)
	s := testService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attachHF(t, s, ctx, "AA")
	agSide, hfSide := net.Pipe()
	defer hfSide.Close()
	if _, err := s.Attach(ctx, transport.Link{Peer: "AA", Channel: agSide}); !errors.Is(err, ErrDuplicatePeer) {
		t.Fatalf("expected ErrDuplicatePeer, got %v", err)
	}
	if s.PeerCount() != 1 {
		t.Fatalf("peers=%d", s.PeerCount())
	}
	if s.Bridge().Queued() != 1 {
		t.Fatalf("queued=%d", s.Bridge().Queued())
	}
}

func TestAdminHealthAndPeers(t *testing.T) {
	testlog.Start(t)
	s := testService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, h := attachHF(t, s, ctx, "00:11:22:33:44:55")
	bringUp(h)
	waitInitialized(t, p)

	if rr := serveHTTP(s, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("health status=%d", rr.Code)
	}

	rr := serveHTTP(s, http.MethodGet, "/peers", "")
	var peers struct {
		Peers []PeerSnapshot `json:"peers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &peers); err != nil {
		t.Fatalf("decode peers: %v body=%s", err, rr.Body.String())
	}
	if len(peers.Peers) != 1 || !peers.Peers[0].Initialized {
		t.Fatalf("unexpected peers %+v", peers.Peers)
	}

	rr = serveHTTP(s, http.MethodGet, "/peers/00:11:22:33:44:55/indicators", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"reporting":true`) {
		t.Fatalf("indicators status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := serveHTTP(s, http.MethodGet, "/peers/missing/indicators", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing peer status=%d", rr.Code)
	}
}

func TestAdminPhoneStatusBroadcast(t *testing.T) {
	testlog.Start(t)
	s := testService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, h := attachHF(t, s, ctx, "AA")
	bringUp(h)
	waitInitialized(t, p)

	got := make(chan string, 1)
	go func() { got <- h.line() }()
	rr := serveHTTP(s, http.MethodPost, "/phone-status", `{"indicator":"call","value":1}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"notified":1`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if line := <-got; line != "+CIEV: 2,1" {
		t.Fatalf("got %q", line)
	}

	if rr := serveHTTP(s, http.MethodPost, "/phone-status", `{"indicator":"call","value":7}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("out of range status=%d", rr.Code)
	}
	if rr := serveHTTP(s, http.MethodPost, "/phone-status", `{"indicator":"bogus","value":1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown indicator status=%d", rr.Code)
	}
}

func TestAdminCallManagerLifecycle(t *testing.T) {
	testlog.Start(t)
	s := testService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rr := serveHTTP(s, http.MethodPost, "/call-manager/connections", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status=%d", rr.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil || created.ID == "" {
		t.Fatalf("decode: %v body=%s", err, rr.Body.String())
	}

	if rr := serveHTTP(s, http.MethodPost, "/call-manager/connections", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("second register status=%d", rr.Code)
	}

	attachHF(t, s, ctx, "AA")
	attachHF(t, s, ctx, "BB")
	for _, want := range []string{"AA", "BB"} {
		rr := serveHTTP(s, http.MethodGet, "/call-manager/connections/"+created.ID+"/watch", "")
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"peer":"`+want+`"`) {
			t.Fatalf("watch status=%d body=%s want %s", rr.Code, rr.Body.String(), want)
		}
	}

	if rr := serveHTTP(s, http.MethodDelete, "/call-manager/connections/"+created.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := serveHTTP(s, http.MethodGet, "/call-manager/connections/"+created.ID+"/watch", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("watch after delete status=%d", rr.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Bridge().Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("bridge kept the deleted connection")
		}
		time.Sleep(time.Millisecond)
	}
	if rr := serveHTTP(s, http.MethodPost, "/call-manager/connections", ""); rr.Code != http.StatusCreated {
		t.Fatalf("re-register status=%d", rr.Code)
	}
}

func TestAdminConcurrentWatchIsConflict(t *testing.T) {
	testlog.Start(t)
	s := testService(t)

	rr := serveHTTP(s, http.MethodPost, "/call-manager/connections", "")
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &created)

	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			codes <- serveHTTP(s, http.MethodGet, "/call-manager/connections/"+created.ID+"/watch", "").Code
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case code := <-codes:
			if code != http.StatusConflict && code != http.StatusNotFound {
				t.Fatalf("status=%d", code)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("watch did not return")
		}
	}
	if s.Bridge().Connected() {
		t.Fatalf("bridge should drop the connection")
	}
}

func TestAdminTokenGuardsMutatingRoutes(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.AdminToken = "secret"
	s, err := NewServiceWithConfig(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	if rr := serveHTTP(s, http.MethodGet, "/phone-status", ""); rr.Code != http.StatusOK {
		t.Fatalf("read status=%d", rr.Code)
	}
	if rr := serveHTTP(s, http.MethodPost, "/operator", `{"name":"X"}`); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d", rr.Code)
	}
	if rr := serveHTTP(s, http.MethodPost, "/call-manager/connections", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated register status=%d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/operator", bytes.NewBufferString(`{"name":"X"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	s.Admin().HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated status=%d", rr.Code)
	}
	if s.AgState().Operator() != "X" {
		t.Fatalf("operator=%q", s.AgState().Operator())
	}
}
