package control

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ausocean/motiond/internal/camera"
	"github.com/ausocean/motiond/internal/supervisor"
	"github.com/ausocean/motiond/revid/config"
	"github.com/ausocean/utils/logging"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{})   {}
func (testLogger) Info(string, ...interface{})    {}
func (testLogger) Warning(string, ...interface{}) {}
func (testLogger) Error(string, ...interface{})   {}
func (testLogger) Fatal(string, ...interface{})   {}
func (testLogger) SetLevel(int8)                  {}

var _ logging.Logger = testLogger{}

func newTestServer() *Server {
	cfg := config.Config{RingSize: 4, FrameRate: 15, Threshold: 100}
	pipelines := map[string]*camera.Pipeline{
		"cam0": camera.New("cam0", cfg, testLogger{}, nil, nil, 64, 64, 0, 0),
	}
	sup := supervisor.New(testLogger{}, pipelines)
	return NewServer(":0", sup, testLogger{})
}

func TestRouteUnknownCameraIsNotFound(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/camera/nope/status", nil)
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 404 {
		t.Fatalf("expected 404 for an unmanaged camera, got %d", rec.Code)
	}
}

func TestRouteUnknownEndpointIsNotFound(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/camera/cam0/bogus", nil)
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 404 {
		t.Fatalf("expected 404 for an unknown endpoint, got %d", rec.Code)
	}
}

func TestStatusEndpointReportsNotRunning(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/camera/cam0/status", nil)
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}
	if got.ID != "cam0" || got.Running {
		t.Fatalf("unexpected status body: %+v", got)
	}
}

func TestStatusEndpointRejectsWrongMethod(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("POST", "/camera/cam0/status", nil)
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 405 {
		t.Fatalf("expected 405 for POST to a GET-only endpoint, got %d", rec.Code)
	}
}

func TestActionEndpointRejectsUnknownAction(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("POST", "/camera/cam0/action?name=not-a-real-action", nil)
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 400 {
		t.Fatalf("expected 400 for an unknown action, got %d", rec.Code)
	}
}

func TestActionEndpointAcceptsKnownAction(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("POST", "/camera/cam0/action?name=snapshot", nil)
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 204 {
		t.Fatalf("expected 204 for a recognised action, got %d", rec.Code)
	}
}

func TestConfigEndpointAppliesPartialUpdate(t *testing.T) {
	s := newTestServer()
	body := `{"threshold": 250, "setup_mode": true}`
	req := httptest.NewRequest("POST", "/camera/cam0/config", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 204 {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestConfigEndpointRejectsMalformedBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("POST", "/camera/cam0/config", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 400 {
		t.Fatalf("expected 400 for a malformed config body, got %d", rec.Code)
	}
}

func TestTrackEndpointReportsInitialPhase(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/camera/cam0/track", nil)
	rec := httptest.NewRecorder()
	s.route(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got camera.EventState
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}
	if got.Phase != "IDLE" || got.EventNr != 1 {
		t.Fatalf("unexpected initial event state: %+v", got)
	}
}
