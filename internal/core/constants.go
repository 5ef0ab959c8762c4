// Package core provides shared constants, configuration and logging for pumpcache.
package core

import (
	"time"
)

// Device invocation defaults. Commands are executed as
// `openaps use pump <command> [args...]`.
const (
	DefaultDeviceCommand = "openaps"
	EnvPrefix            = "PUMPCACHE"
)

// DefaultDeviceArgs are the arguments placed before every device command.
var DefaultDeviceArgs = []string{"use", "pump"}

// Device command names.
const (
	CmdReadCarbRatios         = "read_carb_ratios"
	CmdReadClock              = "read_clock"
	CmdFilterGlucoseDate      = "filter_glucose_date"
	CmdReadGlucoseData        = "read_glucose_data"
	CmdReadHistoryData        = "read_history_data"
	CmdReadSettings           = "read_settings"
	CmdReadInsulinSensitivies = "read_insulin_sensitivies"
)

// Date formats
const (
	// DeviceDatetimeFmt is the naive ISO-8601 layout the pump reports and accepts.
	DeviceDatetimeFmt = "2006-01-02T15:04:05"
	CLIDatetimeFmt    = "2006-01-02 15:04:05"
	CLITimeFmt        = "15:04:05"
)

// Cache defaults
const (
	ScheduleTTL      = 24 * time.Hour
	TTLCapacity      = 128
	HistoryTolerance = 5 * time.Minute
	GlucoseWindow    = 15 * time.Minute
)

// DefaultScatterSeconds staggers the expiry of long-lived caches so they do not
// all refetch from the pump in the same polling cycle.
var DefaultScatterSeconds = []int{-49, -42, -35, -28, -21, -14, -7}

// Version is the current CLI version.
const Version = "0.3.0"
