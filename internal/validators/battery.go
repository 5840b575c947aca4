package validators

import (
	"sync/atomic"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/dispatch"
)

const (
	BatteryName = "battery"

	DefaultLowBatteryThreshold = 15
)

// BatteryMonitor reports the battery level in percent, or -1 when unknown.
type BatteryMonitor interface {
	Level() int
}

// StaticBattery is a BatteryMonitor whose level is pushed by the host.
type StaticBattery struct {
	level atomic.Int32
}

// NewStaticBattery starts at level.
func NewStaticBattery(level int) *StaticBattery {
	b := &StaticBattery{}
	b.Set(level)
	return b
}

// Set records a new level, clamped to 0..100. Negative values mean unknown.
func (b *StaticBattery) Set(level int) {
	if level < 0 {
		b.level.Store(-1)
		return
	}
	b.level.Store(int32(clamp(level)))
}

func (b *StaticBattery) Level() int { return int(b.level.Load()) }

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// Battery queues while the battery is low and battery saver is on.
type Battery struct {
	monitor   BatteryMonitor
	settings  SettingsSource
	threshold int
	logger    logging.Logger
}

// NewBattery creates the validator. threshold is clamped to 0..100.
func NewBattery(monitor BatteryMonitor, s SettingsSource, threshold int) *Battery {
	return &Battery{
		monitor:   monitor,
		settings:  s,
		threshold: clamp(threshold),
		logger:    logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "battery_validator"}),
	}
}

func (v *Battery) Name() string { return BatteryName }

// Enabled follows the battery saver setting.
func (v *Battery) Enabled() bool { return v.settings.Settings().BatterySaver }

// Threshold returns the low battery level.
func (v *Battery) Threshold() int { return v.threshold }

// IsLowBattery reports whether the level is below the threshold. An unknown
// level counts as low.
func (v *Battery) IsLowBattery() bool {
	return v.monitor.Level() < v.threshold
}

func (v *Battery) ShouldQueue(d *dispatch.Dispatch) bool {
	low := v.Enabled() && v.IsLowBattery()
	if low {
		v.logger.Info("Battery is low", logging.Int("level", v.monitor.Level()))
	}
	return low
}

func (v *Battery) ShouldDrop(d *dispatch.Dispatch) bool { return false }
