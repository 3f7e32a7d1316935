/*
DESCRIPTION
  control.go implements the ControlSurface contract : a
  minimal net/http surface exposing per-camera status, connection
  health, action dispatch, live config updates, event tracking, and an
  MJPEG motion stream against a *supervisor.Supervisor. Full web
  control (templated HTML, multiplexed viewing of many cameras at
  once) is out of scope ; this is the contract's reference
  implementation, sufficient to drive and observe a fleet of cameras
  from a script or a simple client.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package control implements the ControlSurface collaborator contract:
// status, connection, action, config, track, and stream endpoints over
// a fleet of camera pipelines.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ausocean/motiond/internal/camera"
	"github.com/ausocean/motiond/internal/supervisor"
	"github.com/ausocean/utils/logging"
)

// Status is the JSON body returned by the status endpoint.
type Status struct {
	ID        string `json:"id"`
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
}

// ConfigUpdate is the JSON body accepted by the config endpoint: only
// the subset of fields stage 12 of the pipeline loop actually re-reads
// ("Ordering guarantees").
type ConfigUpdate struct {
	PictureOutput    *string `json:"picture_output,omitempty"`
	Threshold        *uint   `json:"threshold,omitempty"`
	ThresholdMaximum *uint   `json:"threshold_maximum,omitempty"`
	NoiseLevel       *uint   `json:"noise_level,omitempty"`
	SmartMaskSpeed   *uint   `json:"smart_mask_speed,omitempty"`
	SetupMode        *bool   `json:"setup_mode,omitempty"`
}

// Server implements the ControlSurface contract over a fleet of
// pipelines managed by a supervisor.Supervisor.
type Server struct {
	sup *supervisor.Supervisor
	log logging.Logger
	mux *http.ServeMux
	srv *http.Server
}

// NewServer builds a Server and registers its routes. addr is passed
// straight to http.Server.Addr (e.g. ":8088").
func NewServer(addr string, sup *supervisor.Supervisor, log logging.Logger) *Server {
	s := &Server{sup: sup, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("/camera/", s.route)
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// ListenAndServe starts the HTTP server; it blocks until the server
// stops, mirroring http.Server's own contract.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// route dispatches /camera/{id}/{endpoint} requests to the matching
// handler, per endpoint table.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/camera/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id, endpoint := parts[0], parts[1]
	p := s.sup.Pipeline(id)
	if p == nil {
		http.Error(w, fmt.Sprintf("no such camera %q", id), http.StatusNotFound)
		return
	}

	switch endpoint {
	case "status":
		s.handleStatus(w, r, id, p)
	case "connection":
		s.handleConnection(w, r, id, p)
	case "action":
		s.handleAction(w, r, id, p)
	case "config":
		s.handleConfig(w, r, id, p)
	case "track":
		s.handleTrack(w, r, id, p)
	case "stream":
		s.handleStream(w, r, id, p)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id string, p *camera.Pipeline) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, Status{ID: id, Running: p.Running(), Connected: !p.LostConnection()})
}

// handleConnection reports whether the camera's capture collaborator
// currently believes it has a live device, separate from Running
// (which only reports whether the loop goroutine is alive).
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request, id string, p *camera.Pipeline) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, struct {
		ID        string `json:"id"`
		Connected bool   `json:"connected"`
	}{ID: id, Connected: !p.LostConnection()})
}

// handleAction dispatches the supervisor command set :
// snapshot, eventstop, restart, pause, resume, finish.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, id string, p *camera.Pipeline) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	action := r.URL.Query().Get("name")
	switch action {
	case "snapshot":
		p.RequestSnapshot()
	case "eventstop":
		p.RequestEventStop()
	case "restart":
		p.RequestRestart()
	case "pause":
		p.SetPause(true)
	case "resume":
		p.SetPause(false)
	case "finish":
		p.RequestFinish()
	default:
		http.Error(w, fmt.Sprintf("unknown action %q", action), http.StatusBadRequest)
		return
	}
	s.log.Info("control action applied", "id", id, "action", action)
	w.WriteHeader(http.StatusNoContent)
}

// handleConfig queues a config update for application at the pipeline's
// next stage-12 boundary (ordering guarantees: changes are
// never observed mid-frame).
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request, id string, p *camera.Pipeline) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var upd ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "malformed config body: "+err.Error(), http.StatusBadRequest)
		return
	}

	cfg := p.Config()
	if upd.PictureOutput != nil {
		cfg.PictureOutput = *upd.PictureOutput
	}
	if upd.Threshold != nil {
		cfg.Threshold = *upd.Threshold
	}
	if upd.ThresholdMaximum != nil {
		cfg.ThresholdMaximum = *upd.ThresholdMaximum
	}
	if upd.NoiseLevel != nil {
		cfg.NoiseLevel = *upd.NoiseLevel
	}
	if upd.SmartMaskSpeed != nil {
		cfg.SmartMaskSpeed = *upd.SmartMaskSpeed
	}
	if upd.SetupMode != nil {
		cfg.SetupMode = *upd.SetupMode
	}
	p.UpdateConfig(cfg)
	s.log.Info("control config queued", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleTrack exposes a lightweight polling endpoint for the current
// event state (phase, event number), used by clients that want to
// follow an event without a persistent stream connection.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request, id string, p *camera.Pipeline) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, p.EventSnapshot())
}

const mjpegBoundary = "motiondframe"

// handleStream serves an MJPEG multipart stream of the camera's most
// recently published frame, polling at a fixed cadence rather than
// pushing, since Pipeline.StreamJPEG is a simple last-value getter, not
// a subscription ("Shared resources").
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id string, p *camera.Pipeline) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	p.AttachStreamConsumer()
	defer p.DetachStreamConsumer()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			buf := p.StreamJPEG()
			if buf == nil {
				continue
			}
			fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(buf))
			if _, err := w.Write(buf); err != nil {
				return
			}
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
