package supervisor

import (
	"testing"

	"github.com/ausocean/motiond/internal/camera"
	avcapture "github.com/ausocean/motiond/internal/capture"
	"github.com/ausocean/motiond/internal/frame"
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

// fakeCapture is an already-open device that reports a steady stream of
// unchanged mid-grey frames; Open is never called on it by the pipeline
// loop (that happens once, before New, in cmd/motiond's wiring).
type fakeCapture struct{}

func (fakeCapture) Open(config.Config) (int, int, int, int, error) { return 64, 64, 0, 0, nil }
func (fakeCapture) Next(slot *frame.Image) (avcapture.Outcome, error) {
	return avcapture.OK, nil
}
func (fakeCapture) Close() error { return nil }

var _ avcapture.Capture = fakeCapture{}

func newPipelines(ids ...string) map[string]*camera.Pipeline {
	cfg := config.Config{RingSize: 4, FrameRate: 15, WatchdogTimeout: 30}
	out := make(map[string]*camera.Pipeline, len(ids))
	for _, id := range ids {
		out[id] = camera.New(id, cfg, testLogger{}, fakeCapture{}, nil, 64, 64, 0, 0)
	}
	return out
}

func TestPipelineLooksUpById(t *testing.T) {
	s := New(testLogger{}, newPipelines("cam0", "cam1"))
	if s.Pipeline("cam0") == nil {
		t.Fatalf("expected cam0 to resolve to a pipeline")
	}
	if s.Pipeline("unknown") != nil {
		t.Fatalf("expected an unmanaged id to resolve to nil")
	}
}

func TestPipelinesReturnsEveryManagedPipeline(t *testing.T) {
	s := New(testLogger{}, newPipelines("cam0", "cam1", "cam2"))
	got := s.Pipelines()
	if len(got) != 3 {
		t.Fatalf("expected 3 pipelines, got %d", len(got))
	}
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	s := New(testLogger{}, newPipelines("cam0"))
	s.Stop() // Must not panic or block.
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(testLogger{}, newPipelines("cam0", "cam1"))
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error starting supervisor: %v", err)
	}
	for _, p := range s.Pipelines() {
		if !p.Running() {
			t.Fatalf("expected every pipeline to be running after Start")
		}
	}
	s.Stop()
	for _, p := range s.Pipelines() {
		if p.Running() {
			t.Fatalf("expected every pipeline to be stopped after Stop")
		}
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(testLogger{}, newPipelines("cam0"))
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error on first Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error on second Start: %v", err)
	}
	s.Stop()
}
