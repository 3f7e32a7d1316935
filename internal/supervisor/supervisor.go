/*
DESCRIPTION
  supervisor.go manages a fleet of camera pipelines: starting and
  stopping them together, petting no watchdog itself but decrementing
  each pipeline's once a second and escalating a stuck pipeline from a
  graceful finish request to a hard stop, and translating process
  signals into the per-pipeline control-surface actions 
  describes.

  Grounded on cmd/rv/main.go's run loop (poll-sleep-react structure,
  single log/signal wiring for the whole process), generalized from one
  revid.Revid instance to N camera.Pipeline instances.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package supervisor runs a fleet of camera.Pipelines under one
// watchdog and one process signal handler.
package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ausocean/motiond/internal/camera"
	"github.com/ausocean/utils/logging"
)

// watchdogPeriod is how often DecrementWatchdog is called on every
// pipeline.
const watchdogPeriod = time.Second

// Supervisor owns a fixed set of camera pipelines for the lifetime of
// the process; cameras are not added or removed at runtime
// (reconfiguration restarts the daemon instead).
type Supervisor struct {
	log       logging.Logger
	pipelines map[string]*camera.Pipeline

	mu       sync.Mutex
	order    []string // Stable iteration order, set at New.
	stopCh   chan struct{}
	wg       sync.WaitGroup
	sigCh    chan os.Signal
	watching bool
}

// New constructs a Supervisor over pipelines, keyed by camera id.
func New(log logging.Logger, pipelines map[string]*camera.Pipeline) *Supervisor {
	s := &Supervisor{log: log, pipelines: pipelines}
	for id := range pipelines {
		s.order = append(s.order, id)
	}
	return s
}

// Start launches every pipeline, then the watchdog and signal-handling
// goroutines.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watching {
		return nil
	}
	for _, id := range s.order {
		if err := s.pipelines[id].Start(); err != nil {
			return err
		}
	}
	s.stopCh = make(chan struct{})
	s.sigCh = make(chan os.Signal, 8)
	signal.Notify(s.sigCh,
		syscall.SIGALRM, syscall.SIGUSR1, syscall.SIGHUP,
		syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM,
		syscall.SIGCHLD, syscall.SIGPIPE,
	)
	s.watching = true

	s.wg.Add(2)
	go s.watchdogLoop()
	go s.signalLoop()
	return nil
}

// Stop signals every goroutine started by Start to exit, stops every
// pipeline, and waits for all of it to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.watching {
		s.mu.Unlock()
		return
	}
	s.watching = false
	close(s.stopCh)
	signal.Stop(s.sigCh)
	s.mu.Unlock()

	s.wg.Wait()

	var wg sync.WaitGroup
	for _, id := range s.order {
		p := s.pipelines[id]
		wg.Add(1)
		go func() { defer wg.Done(); p.Stop() }()
	}
	wg.Wait()
}

// Pipeline returns the pipeline for id, or nil if no such camera is
// managed by this supervisor; used by internal/control to route
// per-camera actions.
func (s *Supervisor) Pipeline(id string) *camera.Pipeline { return s.pipelines[id] }

// Pipelines returns every managed pipeline in stable order.
func (s *Supervisor) Pipelines() []*camera.Pipeline {
	out := make([]*camera.Pipeline, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pipelines[id])
	}
	return out
}

// watchdogLoop decrements every pipeline's watchdog once a second,
// requesting a graceful finish once it reaches zero and, if a pipeline
// still hasn't stopped killTimeout seconds after that, logging an error
// and forcing Pipeline.Stop on a separate goroutine.
func (s *Supervisor) watchdogLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(watchdogPeriod)
	defer ticker.Stop()

	stuck := map[string]int{}
	var killingMu sync.Mutex
	killing := map[string]bool{}
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, id := range s.order {
				p := s.pipelines[id]
				remaining := p.DecrementWatchdog()
				switch {
				case remaining == 0:
					s.log.Warning("pipeline watchdog expired, requesting finish", "id", id)
					p.RequestFinish()
					stuck[id] = 0
				case remaining < 0:
					if _, tracking := stuck[id]; tracking {
						stuck[id]--
						killingMu.Lock()
						already := killing[id]
						killingMu.Unlock()
						if -stuck[id] >= int(killTimeout(p)) && !already {
							s.log.Error("pipeline did not finish within kill timeout, forcing stop", "id", id)
							killingMu.Lock()
							killing[id] = true
							killingMu.Unlock()
							// p.Stop() blocks until the stuck goroutine
							// exits, which may be never ('s
							// watchdog-kill scenario); run it off the
							// ticker goroutine so other pipelines' watchdogs
							// keep being serviced while this one hangs.
							go func(id string, p *camera.Pipeline) {
								p.Stop()
								killingMu.Lock()
								delete(killing, id)
								killingMu.Unlock()
							}(id, p)
							delete(stuck, id)
						}
					}
				default:
					delete(stuck, id)
				}
			}
		}
	}
}

// killTimeout reads a pipeline's configured WatchdogKillTimeout through
// Pipeline.Config, falling back to 15 seconds when it is unset.
func killTimeout(p *camera.Pipeline) int {
	if t := p.Config().WatchdogKillTimeout; t > 0 {
		return int(t)
	}
	return 15
}

// signalLoop translates process signals into per-pipeline control
// actions, per signal table.
func (s *Supervisor) signalLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case sig := <-s.sigCh:
			switch sig {
			case syscall.SIGALRM:
				s.log.Info("SIGALRM received, requesting snapshot on all cameras")
				s.forEach(func(p *camera.Pipeline) { p.RequestSnapshot() })
			case syscall.SIGUSR1:
				s.log.Info("SIGUSR1 received, stopping current event on all cameras")
				s.forEach(func(p *camera.Pipeline) { p.RequestEventStop() })
			case syscall.SIGHUP:
				s.log.Info("SIGHUP received, requesting restart on all cameras")
				s.forEach(func(p *camera.Pipeline) { p.RequestRestart() })
			case syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM:
				s.log.Info("termination signal received, shutting down", "signal", sig.String())
				go s.Stop()
				return
			case syscall.SIGCHLD, syscall.SIGPIPE:
				// Ignored: child-process reaping and broken-pipe writes are
				// handled by their respective collaborators (device exec.Cmd,
				// recorder senders), not at the supervisor level.
			}
		}
	}
}

func (s *Supervisor) forEach(fn func(*camera.Pipeline)) {
	for _, id := range s.order {
		fn(s.pipelines[id])
	}
}
