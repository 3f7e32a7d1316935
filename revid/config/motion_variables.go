/*
DESCRIPTION
  motion_variables.go extends Variables with the motion-detection,
  event, and supervision fields a camera pipeline and its supervisor
  read, following the same Name/Type/Update/Validate descriptor
  pattern as variables.go so they can be set through the same control
  surface path (`/config/set?param=value`) as every other revid
  parameter.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

// Motion/event config map Keys.
const (
	KeyRingSize               = "RingSize"
	KeyEventGap               = "EventGap"
	KeyMinimumMotionFrames    = "MinimumMotionFrames"
	KeyPostCapture            = "PostCapture"
	KeyLightswitchPercent     = "LightswitchPercent"
	KeyLightswitchFrames      = "LightswitchFrames"
	KeyAcceptStaticObjectTime = "AcceptStaticObjectTime"
	KeySmartMaskSpeed2        = "SmartMaskSpeed"
	KeyNoiseLevel             = "NoiseLevel"
	KeyThreshold              = "Threshold"
	KeyThresholdMaximum       = "ThresholdMaximum"
	KeyThresholdTuneDivisor   = "ThresholdTuneDivisor"
	KeyRoundRobinSwitchfilter = "RoundRobinSwitchfilter"
	KeyDespeckleFilter        = "DespeckleFilter"
	KeyEmulateMotion          = "EmulateMotion"
	KeyPictureOutput          = "PictureOutput"
	KeySnapshotInterval       = "SnapshotInterval"
	KeyTimelapseMode          = "TimelapseMode"
	KeyWatchdogTimeout        = "WatchdogTimeout"
	KeyWatchdogKillTimeout    = "WatchdogKillTimeout"
	KeyMissingFramesTimeout   = "MissingFramesTimeout"
	KeySetupMode              = "SetupMode"
	KeyCameraID               = "CameraID"
	KeyPrivacyMaskFile        = "PrivacyMaskFile"
	KeyMaskFile               = "MaskFile"
)

// Motion-detection defaults, taken from the stated constants where
// given, otherwise from original_source/'s equivalent defaults (see
// DESIGN.md).
const (
	defaultRingSize               = 10
	defaultEventGap               = 60
	defaultMinimumMotionFrames    = 1
	defaultPostCapture            = 0
	defaultLightswitchPercent     = 0
	defaultLightswitchFrames      = 1
	defaultAcceptStaticObjectTime = 10
	defaultSmartMaskSpeed2        = 10
	defaultThreshold              = 1500
	defaultThresholdMaximum       = 0 // 0 means "no upper bound".
	defaultThresholdTuneDivisor   = 4
	defaultPictureOutput          = "centre"
	defaultTimelapseMode          = "manual"
	defaultWatchdogTimeout        = 90
	defaultWatchdogKillTimeout    = 15
	defaultMissingFramesTimeout   = 30
)

func init() {
	Variables = append(Variables, []struct {
		Name     string
		Type     string
		Update   func(*Config, string)
		Validate func(*Config)
	}{
		{
			Name:   KeyRingSize,
			Type:   typeUint,
			Update: func(c *Config, v string) { c.RingSize = parseUint(KeyRingSize, v, c) },
			Validate: func(c *Config) {
				if c.RingSize == 0 {
					c.LogInvalidField(KeyRingSize, defaultRingSize)
					c.RingSize = defaultRingSize
				}
			},
		},
		{
			Name:   KeyEventGap,
			Type:   typeUint,
			Update: func(c *Config, v string) { c.EventGap = parseUint(KeyEventGap, v, c) },
			Validate: func(c *Config) {
				if c.EventGap == 0 {
					c.LogInvalidField(KeyEventGap, defaultEventGap)
					c.EventGap = defaultEventGap
				}
			},
		},
		{
			Name: KeyMinimumMotionFrames,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.MinimumMotionFrames = parseUint(KeyMinimumMotionFrames, v, c)
			},
			Validate: func(c *Config) {
				if c.MinimumMotionFrames == 0 {
					c.LogInvalidField(KeyMinimumMotionFrames, defaultMinimumMotionFrames)
					c.MinimumMotionFrames = defaultMinimumMotionFrames
				}
			},
		},
		{
			Name:   KeyPostCapture,
			Type:   typeUint,
			Update: func(c *Config, v string) { c.PostCapture = parseUint(KeyPostCapture, v, c) },
		},
		{
			Name: KeyLightswitchPercent,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.LightswitchPercent = parseUint(KeyLightswitchPercent, v, c)
			},
		},
		{
			Name: KeyLightswitchFrames,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.LightswitchFrames = parseUint(KeyLightswitchFrames, v, c)
			},
			Validate: func(c *Config) {
				if c.LightswitchFrames == 0 {
					c.LogInvalidField(KeyLightswitchFrames, defaultLightswitchFrames)
					c.LightswitchFrames = defaultLightswitchFrames
				}
			},
		},
		{
			Name: KeyAcceptStaticObjectTime,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.AcceptStaticObjectTime = parseUint(KeyAcceptStaticObjectTime, v, c)
			},
			Validate: func(c *Config) {
				if c.AcceptStaticObjectTime == 0 {
					c.LogInvalidField(KeyAcceptStaticObjectTime, defaultAcceptStaticObjectTime)
					c.AcceptStaticObjectTime = defaultAcceptStaticObjectTime
				}
			},
		},
		{
			Name: KeySmartMaskSpeed2,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.SmartMaskSpeed = parseUint(KeySmartMaskSpeed2, v, c)
			},
			Validate: func(c *Config) {
				if c.SmartMaskSpeed == 0 {
					c.LogInvalidField(KeySmartMaskSpeed2, defaultSmartMaskSpeed2)
					c.SmartMaskSpeed = defaultSmartMaskSpeed2
				}
			},
		},
		{
			Name:   KeyNoiseLevel,
			Type:   typeUint,
			Update: func(c *Config, v string) { c.NoiseLevel = parseUint(KeyNoiseLevel, v, c) },
		},
		{
			Name:   KeyThreshold,
			Type:   typeUint,
			Update: func(c *Config, v string) { c.Threshold = parseUint(KeyThreshold, v, c) },
			Validate: func(c *Config) {
				if c.Threshold == 0 {
					c.LogInvalidField(KeyThreshold, defaultThreshold)
					c.Threshold = defaultThreshold
				}
			},
		},
		{
			Name: KeyThresholdMaximum,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.ThresholdMaximum = parseUint(KeyThresholdMaximum, v, c)
			},
		},
		{
			Name: KeyThresholdTuneDivisor,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.ThresholdTuneDivisor = parseUint(KeyThresholdTuneDivisor, v, c)
			},
			Validate: func(c *Config) {
				if c.ThresholdTuneDivisor == 0 {
					c.LogInvalidField(KeyThresholdTuneDivisor, defaultThresholdTuneDivisor)
					c.ThresholdTuneDivisor = defaultThresholdTuneDivisor
				}
			},
		},
		{
			Name: KeyRoundRobinSwitchfilter,
			Type: typeBool,
			Update: func(c *Config, v string) {
				c.RoundRobinSwitchfilter = parseBool(KeyRoundRobinSwitchfilter, v, c)
			},
		},
		{
			Name:   KeyDespeckleFilter,
			Type:   typeString,
			Update: func(c *Config, v string) { c.DespeckleFilter = v },
		},
		{
			Name:   KeyEmulateMotion,
			Type:   typeBool,
			Update: func(c *Config, v string) { c.EmulateMotion = parseBool(KeyEmulateMotion, v, c) },
		},
		{
			Name:   KeyPictureOutput,
			Type:   "enum:first,best,centre",
			Update: func(c *Config, v string) { c.PictureOutput = v },
			Validate: func(c *Config) {
				if c.PictureOutput == "" {
					c.LogInvalidField(KeyPictureOutput, defaultPictureOutput)
					c.PictureOutput = defaultPictureOutput
				}
			},
		},
		{
			Name: KeySnapshotInterval,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.SnapshotInterval = parseUint(KeySnapshotInterval, v, c)
			},
		},
		{
			Name:   KeyTimelapseMode,
			Type:   "enum:manual,hourly,daily,weekly-sunday,weekly-monday,monthly",
			Update: func(c *Config, v string) { c.TimelapseMode = v },
			Validate: func(c *Config) {
				if c.TimelapseMode == "" {
					c.LogInvalidField(KeyTimelapseMode, defaultTimelapseMode)
					c.TimelapseMode = defaultTimelapseMode
				}
			},
		},
		{
			Name:   KeyWatchdogTimeout,
			Type:   typeUint,
			Update: func(c *Config, v string) { c.WatchdogTimeout = parseUint(KeyWatchdogTimeout, v, c) },
			Validate: func(c *Config) {
				if c.WatchdogTimeout == 0 {
					c.LogInvalidField(KeyWatchdogTimeout, defaultWatchdogTimeout)
					c.WatchdogTimeout = defaultWatchdogTimeout
				}
			},
		},
		{
			Name: KeyWatchdogKillTimeout,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.WatchdogKillTimeout = parseUint(KeyWatchdogKillTimeout, v, c)
			},
			Validate: func(c *Config) {
				if c.WatchdogKillTimeout == 0 {
					c.LogInvalidField(KeyWatchdogKillTimeout, defaultWatchdogKillTimeout)
					c.WatchdogKillTimeout = defaultWatchdogKillTimeout
				}
			},
		},
		{
			Name: KeyMissingFramesTimeout,
			Type: typeUint,
			Update: func(c *Config, v string) {
				c.MissingFramesTimeout = parseUint(KeyMissingFramesTimeout, v, c)
			},
			Validate: func(c *Config) {
				if c.MissingFramesTimeout == 0 {
					c.LogInvalidField(KeyMissingFramesTimeout, defaultMissingFramesTimeout)
					c.MissingFramesTimeout = defaultMissingFramesTimeout
				}
			},
		},
		{
			Name:   KeySetupMode,
			Type:   typeBool,
			Update: func(c *Config, v string) { c.SetupMode = parseBool(KeySetupMode, v, c) },
		},
		{
			Name:   KeyCameraID,
			Type:   typeString,
			Update: func(c *Config, v string) { c.CameraID = v },
		},
		{
			Name:   KeyPrivacyMaskFile,
			Type:   typeString,
			Update: func(c *Config, v string) { c.PrivacyMaskFile = v },
		},
		{
			Name:   KeyMaskFile,
			Type:   typeString,
			Update: func(c *Config, v string) { c.MaskFile = v },
		},
	}...)
}
