/*
DESCRIPTION
  motiond is a netsender client running a fleet of motion-detection
  camera pipelines, controllable both from its own HTTP control surface
   and, like cmd/rv, from the cloud via netsender variables
  and software-defined pins.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package motiond is a netsender client running a fleet of
// camera.Pipelines behind a supervisor.Supervisor and a control.Server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/motiond/device"
	"github.com/ausocean/motiond/device/file"
	"github.com/ausocean/motiond/device/geovision"
	"github.com/ausocean/motiond/device/raspistill"
	"github.com/ausocean/motiond/device/raspivid"
	"github.com/ausocean/motiond/device/webcam"
	"github.com/ausocean/motiond/internal/camera"
	"github.com/ausocean/motiond/internal/capture"
	"github.com/ausocean/motiond/internal/control"
	"github.com/ausocean/motiond/internal/frame"
	"github.com/ausocean/motiond/internal/record"
	"github.com/ausocean/motiond/internal/supervisor"
	"github.com/ausocean/motiond/revid/config"
	"github.com/ausocean/client/pi/netlogger"
	"github.com/ausocean/client/pi/netsender"
	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.1.0"

// Logging configuration, following cmd/rv's lumberjack/netlogger setup.
const (
	logPath      = "/var/log/motiond/motiond.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

const pkg = "motiond: "

// Fleet modes, reported by netsender.Sender.Mode.
const (
	modeNormal    = "Normal"
	modePaused    = "Paused"
	modeLoop      = "Loop"
	modeShutdown  = "Shutdown"
	modeCompleted = "Completed"
)

const netSendRetryTime = 5 * time.Second
const defaultSleepTime = 60 // Seconds, used when netsender's mp param is unset.

// cameraSpec is one entry of the fleet config file. Only the fields a
// deployment is likely to need to set per camera are exposed here;
// everything else takes config.Config's zero value.
type cameraSpec struct {
	ID         string `json:"id"`
	DeviceKind string `json:"device"` // "webcam", "file", "raspivid", "raspistill", "rtsp"
	InputPath  string `json:"input_path,omitempty"`
	Loop       bool   `json:"loop,omitempty"`

	Width     uint `json:"width,omitempty"`
	Height    uint `json:"height,omitempty"`
	FrameRate uint `json:"frame_rate,omitempty"`

	RingSize               uint   `json:"ring_size,omitempty"`
	EventGap               uint   `json:"event_gap,omitempty"`
	MinimumMotionFrames    uint   `json:"minimum_motion_frames,omitempty"`
	PostCapture            uint   `json:"post_capture,omitempty"`
	LightswitchPercent     uint   `json:"lightswitch_percent,omitempty"`
	LightswitchFrames      uint   `json:"lightswitch_frames,omitempty"`
	AcceptStaticObjectTime uint   `json:"accept_static_object_time,omitempty"`
	SmartMaskSpeed         uint   `json:"smart_mask_speed,omitempty"`
	NoiseLevel             uint   `json:"noise_level,omitempty"`
	Threshold              uint   `json:"threshold,omitempty"`
	ThresholdMaximum       uint   `json:"threshold_maximum,omitempty"`
	ThresholdTuneDivisor   uint   `json:"threshold_tune_divisor,omitempty"`
	RoundRobinSwitchfilter bool   `json:"round_robin_switchfilter,omitempty"`
	DespeckleFilter        string `json:"despeckle_filter,omitempty"`
	EmulateMotion          bool   `json:"emulate_motion,omitempty"`
	PictureOutput          string `json:"picture_output,omitempty"`
	SnapshotInterval       uint   `json:"snapshot_interval,omitempty"`
	TimelapseMode          string `json:"timelapse_mode,omitempty"`
	WatchdogTimeout        uint   `json:"watchdog_timeout,omitempty"`
	WatchdogKillTimeout    uint   `json:"watchdog_kill_timeout,omitempty"`
	MissingFramesTimeout   uint   `json:"missing_frames_timeout,omitempty"`
	SetupMode              bool   `json:"setup_mode,omitempty"`

	PrivacyMaskFile string `json:"privacy_mask_file,omitempty"`
	MaskFile        string `json:"mask_file,omitempty"`

	OutputPath string `json:"output_path,omitempty"`
}

// fleetSpec is the top-level shape of the -config file: one entry per
// managed camera plus the address the control surface listens on.
type fleetSpec struct {
	ControlAddr string       `json:"control_addr"`
	Cameras     []cameraSpec `json:"cameras"`
}

func main() {
	showVersion := flag.Bool("version", false, "show version")
	configPath := flag.String("config", "/etc/motiond/motiond.json", "path to the fleet config file")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	netLog := netlogger.New()
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, netLog), logSuppress)
	log.Info("starting motiond", "version", version)

	spec, err := loadFleetSpec(*configPath)
	if err != nil {
		log.Fatal(pkg+"could not load fleet config", "error", err.Error())
	}

	pipelines := make(map[string]*camera.Pipeline, len(spec.Cameras))
	for _, cs := range spec.Cameras {
		p, err := buildPipeline(cs, log)
		if err != nil {
			log.Fatal(pkg+"could not build camera pipeline", "id", cs.ID, "error", err.Error())
		}
		pipelines[cs.ID] = p
	}

	sup := supervisor.New(log, pipelines)

	log.Debug("initialising netsender client")
	ns, err := netsender.New(
		log,
		nil,
		readPin(sup, log),
		nil,
		netsender.WithVarTypes(createVarMap()),
	)
	if err != nil {
		log.Fatal(pkg + "could not initialise netsender client: " + err.Error())
	}

	ctrl := control.NewServer(spec.ControlAddr, sup, log)
	go func() {
		log.Info("control surface listening", "addr", spec.ControlAddr)
		if err := ctrl.ListenAndServe(); err != nil {
			log.Error(pkg+"control surface stopped", "error", err.Error())
		}
	}()

	if err := sup.Start(); err != nil {
		log.Fatal(pkg+"could not start supervisor", "error", err.Error())
	}

	log.Debug("beginning main loop")
	run(sup, ns, log, netLog)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ctrl.Shutdown(shutdownCtx)
	sup.Stop()
}

// buildPipeline constructs one camera's Capture, Recorder, and Pipeline
// collaborators from a cameraSpec, mirroring revid/pipeline.go's
// Input-to-device-constructor mapping.
func buildPipeline(cs cameraSpec, log logging.Logger) (*camera.Pipeline, error) {
	cfg := config.Config{
		Logger:                 log,
		CameraID:               cs.ID,
		Width:                  cs.Width,
		Height:                 cs.Height,
		FrameRate:              cs.FrameRate,
		RingSize:               orDefault(cs.RingSize, 30),
		EventGap:               orDefault(cs.EventGap, 3),
		MinimumMotionFrames:    orDefault(cs.MinimumMotionFrames, 1),
		PostCapture:            orDefault(cs.PostCapture, 3),
		LightswitchPercent:     cs.LightswitchPercent,
		LightswitchFrames:      orDefault(cs.LightswitchFrames, 3),
		AcceptStaticObjectTime: orDefault(cs.AcceptStaticObjectTime, 10),
		SmartMaskSpeed:         orDefault(cs.SmartMaskSpeed, 10),
		NoiseLevel:             orDefault(cs.NoiseLevel, 32),
		Threshold:              orDefault(cs.Threshold, 1500),
		ThresholdMaximum:       orDefault(cs.ThresholdMaximum, 64000),
		ThresholdTuneDivisor:   orDefault(cs.ThresholdTuneDivisor, 4),
		RoundRobinSwitchfilter: cs.RoundRobinSwitchfilter,
		DespeckleFilter:        cs.DespeckleFilter,
		EmulateMotion:          cs.EmulateMotion,
		PictureOutput:          cs.PictureOutput,
		SnapshotInterval:       cs.SnapshotInterval,
		TimelapseMode:          cs.TimelapseMode,
		WatchdogTimeout:        orDefault(cs.WatchdogTimeout, 15),
		WatchdogKillTimeout:    orDefault(cs.WatchdogKillTimeout, 30),
		MissingFramesTimeout:   orDefault(cs.MissingFramesTimeout, 10),
		SetupMode:              cs.SetupMode,
		PrivacyMaskFile:        cs.PrivacyMaskFile,
		MaskFile:               cs.MaskFile,
		InputPath:              cs.InputPath,
		Loop:                   cs.Loop,
		OutputPath:             cs.OutputPath,
	}

	dev, err := newDevice(cs, log, &cfg)
	if err != nil {
		return nil, err
	}

	adapter := capture.NewAdapter(dev, log)
	w, h, hw, hh, err := adapter.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening device for camera %s: %w", cs.ID, err)
	}

	outputPath := cs.OutputPath
	if outputPath == "" {
		outputPath = "/var/lib/motiond/%$-%v-%q.mts"
	}
	namer := func(evt record.Event, img *frame.Image, ts frame.Timestamp) string {
		var box frame.Box
		diffs, labels := 0, 0
		if img != nil {
			box = img.Location
			diffs = img.Diffs
			labels = img.TotalLabels
		}
		return record.ExpandFilename(outputPath, 0, shotOf(img), diffs, 0, box,
			int(cfg.Threshold), labels, cs.ID, evt.String(), int(cfg.Width), int(cfg.Height),
			0, cs.ID, ts.Monotonic, nil)
	}

	rec, err := record.NewRevidRecorder(cfg, log, namer)
	if err != nil {
		return nil, fmt.Errorf("building recorder for camera %s: %w", cs.ID, err)
	}

	return camera.New(cs.ID, cfg, log, adapter, rec, w, h, hw, hh), nil
}

// newDevice maps a cameraSpec's device kind to a concrete device.AVDevice
// and the matching config.Config.Input enum value, following
// revid/pipeline.go's Input-to-constructor switch.
func newDevice(cs cameraSpec, log logging.Logger, cfg *config.Config) (device.AVDevice, error) {
	switch cs.DeviceKind {
	case "webcam":
		cfg.Input = config.InputV4L
		return webcam.New(log), nil
	case "file":
		cfg.Input = config.InputFile
		if cs.InputPath != "" {
			return file.NewWith(log, cs.InputPath, cs.Loop), nil
		}
		return file.New(log), nil
	case "raspivid":
		cfg.Input = config.InputRaspivid
		return raspivid.New(log), nil
	case "raspistill":
		cfg.Input = config.InputRaspistill
		return raspistill.New(log), nil
	case "rtsp":
		cfg.Input = config.InputRTSP
		return geovision.New(log), nil
	default:
		return nil, fmt.Errorf("unknown device kind %q", cs.DeviceKind)
	}
}

// shotOf returns img's shot counter, or 0 for a nil image (such as the
// one an ENDMOTION notification carries).
func shotOf(img *frame.Image) int {
	if img == nil {
		return 0
	}
	return img.Shot
}

func orDefault(v, def uint) uint {
	if v == 0 {
		return def
	}
	return v
}

func loadFleetSpec(path string) (fleetSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return fleetSpec{}, err
	}
	defer f.Close()

	var spec fleetSpec
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		return fleetSpec{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if spec.ControlAddr == "" {
		spec.ControlAddr = ":8088"
	}
	if len(spec.Cameras) == 0 {
		return fleetSpec{}, fmt.Errorf("%s defines no cameras", path)
	}
	return spec, nil
}

// run polls netsender the way cmd/rv does, forwarding logs to the cloud
// and translating the reported mode into supervisor-wide actions. Unlike
// rv's single Start/Stop/Burst, motiond's unit of control is the fleet:
// Normal runs every pipeline, Paused/Completed/Shutdown stops all of
// them.
func run(sup *supervisor.Supervisor, ns *netsender.Sender, l logging.Logger, nl *netlogger.Logger) {
	var vs int
	for {
		l.Debug("running netsender")
		err := ns.Run()
		if err != nil {
			l.Warning(pkg+"run failed, retrying", "error", err.Error())
			time.Sleep(netSendRetryTime)
			continue
		}

		l.Debug("sending logs")
		if err := nl.Send(ns); err != nil {
			l.Warning(pkg+"logs could not be sent", "error", err.Error())
		}

		newVs := ns.VarSum()
		if vs == newVs {
			sleep(ns, l)
			continue
		}
		vs = newVs
		l.Info("varsum changed", "vs", vs)

		vars, err := ns.Vars()
		if err != nil {
			l.Error(pkg+"netsender failed to get vars", "error", err.Error())
			time.Sleep(netSendRetryTime)
			continue
		}
		l.Debug("got new vars", "vars", vars)

		switch ns.Mode() {
		case modePaused, modeCompleted, modeShutdown:
			l.Debug("mode is Paused, Completed or Shutdown, stopping fleet")
			sup.Stop()
			if ns.Mode() == modeShutdown {
				return
			}
		case modeNormal, modeLoop:
			l.Debug("mode is Normal or Loop, starting fleet")
			if err := sup.Start(); err != nil {
				l.Error(pkg+"could not start supervisor", "error", err.Error())
				ns.SetMode(modePaused)
			}
		}

		sleep(ns, l)
	}
}

func createVarMap() map[string]string {
	m := make(map[string]string, len(config.Variables))
	for _, v := range config.Variables {
		m[v.Name] = v.Type
	}
	return m
}

func sleep(ns *netsender.Sender, l logging.Logger) {
	t, err := strconv.Atoi(ns.Param("mp"))
	if err != nil {
		t = defaultSleepTime
	}
	time.Sleep(time.Duration(t) * time.Second)
}

// readPin reports per-camera pipeline health on demand, the fleet
// analogue of cmd/rv's bitrate/sharpness/contrast pins: pin names are
// "W<cameraID>" and report 1 if that camera's pipeline is running, 0 if
// it is not, or -1 if the camera isn't managed by this supervisor.
func readPin(sup *supervisor.Supervisor, l logging.Logger) func(pin *netsender.Pin) error {
	return func(pin *netsender.Pin) error {
		id := pin.Name
		if len(id) > 1 && id[0] == 'W' {
			id = id[1:]
		}
		p := sup.Pipeline(id)
		if p == nil {
			pin.Value = -1
			return nil
		}
		if p.Running() {
			pin.Value = 1
		} else {
			pin.Value = 0
		}
		return nil
	}
}
