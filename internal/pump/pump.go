// Package pump answers point queries about the pump through cached device commands.
package pump

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/colthorp/pumpcache-go/internal/cache"
	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/colthorp/pumpcache-go/internal/device"
	"github.com/rs/zerolog"
)

// Public cache names. Each names the cache backing the operation of the same name.
const (
	CacheCarbRatio          = "carb_ratio_at_time"
	CacheGlucose            = "glucose_level_at_datetime"
	CacheHistory            = "history_in_range"
	CacheInsulinActionCurve = "insulin_action_curve"
	CacheInsulinSensitivity = "insulin_sensitivity_at_time"
)

// Keys for caches holding a single value.
const (
	keyCarbRatios    = "carb_ratios"
	keySettings      = "insulin_action_curve"
	keySensitivities = "insulin_sensitivities"
)

// Options tunes a Pump. Zero fields take the core defaults.
type Options struct {
	Location         *time.Location
	ScheduleTTL      time.Duration
	TTLCapacity      int
	HistoryTolerance time.Duration
	GlucoseWindow    time.Duration
	Now              func() time.Time // cache expiry clock
}

// OptionsFromConfig builds Options from loaded configuration.
func OptionsFromConfig(cfg *core.Config) Options {
	return Options{
		Location:         core.GetTZ(cfg.Timezone),
		ScheduleTTL:      cfg.Cache.ScheduleTTL,
		TTLCapacity:      cfg.Cache.TTLCapacity,
		HistoryTolerance: cfg.Cache.HistoryTolerance,
		GlucoseWindow:    cfg.Cache.GlucoseWindow,
	}
}

func (o *Options) applyDefaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.ScheduleTTL <= 0 {
		o.ScheduleTTL = core.ScheduleTTL
	}
	if o.TTLCapacity <= 0 {
		o.TTLCapacity = core.TTLCapacity
	}
	if o.HistoryTolerance <= 0 {
		o.HistoryTolerance = core.HistoryTolerance
	}
	if o.GlucoseWindow <= 0 {
		o.GlucoseWindow = core.GlucoseWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Pump is the query facade over a device gateway.
type Pump struct {
	gateway    device.Gateway
	registry   *cache.Registry
	reconciler *Reconciler
	loc        *time.Location
	window     time.Duration
	logger     zerolog.Logger

	carbRatios    *cache.Cache[string, []ScheduleEntry]
	glucose       *cache.Cache[string, *GlucoseReading]
	history       *cache.Cache[string, []HistoryEntry]
	actionCurve   *cache.Cache[string, float64]
	sensitivities *cache.Cache[string, []ScheduleEntry]
}

// New creates a Pump and registers its caches with registry. Long-lived caches
// take their TTL from scatter in construction order: carb ratios, insulin action
// curve, insulin sensitivities.
func New(gateway device.Gateway, scatter *cache.Scatter, registry *cache.Registry, opts Options, logger zerolog.Logger) (*Pump, error) {
	opts.applyDefaults()
	if scatter == nil {
		scatter = cache.NewScatter(nil)
	}
	if registry == nil {
		registry = cache.NewRegistry()
	}

	p := &Pump{
		gateway:  gateway,
		registry: registry,
		loc:      opts.Location,
		window:   opts.GlucoseWindow,
		logger:   logger.With().Str("component", "pump").Logger(),
	}
	p.reconciler = NewReconciler(p.historyPage, opts.HistoryTolerance, opts.Location, logger)

	common := []cache.Option{
		cache.WithRegistry(registry),
		cache.WithClock(opts.Now),
		cache.WithLogger(logger),
	}

	var err error
	if p.carbRatios, err = cache.NewTTL[string, []ScheduleEntry](CacheCarbRatio, opts.TTLCapacity, scatter.TTL(opts.ScheduleTTL), common...); err != nil {
		return nil, err
	}
	if p.glucose, err = cache.NewLRU[string, *GlucoseReading](CacheGlucose, 1, common...); err != nil {
		return nil, err
	}
	if p.history, err = cache.NewLRU[string, []HistoryEntry](CacheHistory, 1, common...); err != nil {
		return nil, err
	}
	if p.actionCurve, err = cache.NewTTL[string, float64](CacheInsulinActionCurve, opts.TTLCapacity, scatter.TTL(opts.ScheduleTTL), common...); err != nil {
		return nil, err
	}
	if p.sensitivities, err = cache.NewTTL[string, []ScheduleEntry](CacheInsulinSensitivity, opts.TTLCapacity, scatter.TTL(opts.ScheduleTTL), common...); err != nil {
		return nil, err
	}

	return p, nil
}

// Location returns the zone used for zone-less device timestamps.
func (p *Pump) Location() *time.Location {
	return p.loc
}

// CarbRatioAt returns the carb ratio active at t's time of day on the pump clock.
func (p *Pump) CarbRatioAt(ctx context.Context, t time.Time) (float64, error) {
	schedule, err := p.carbRatios.GetOrCompute(keyCarbRatios, func() ([]ScheduleEntry, error) {
		out, err := p.gateway.Invoke(ctx, core.CmdReadCarbRatios)
		if err != nil {
			return nil, err
		}
		obj, err := decodeObject(core.CmdReadCarbRatios, out)
		if err != nil {
			return nil, err
		}
		return scheduleField(core.CmdReadCarbRatios, obj, "schedule", "ratio")
	})
	if err != nil {
		return 0, err
	}

	ratio, err := ValueAt(schedule, core.MinutesOfDay(t))
	var nf *NotFoundError
	if errors.As(err, &nf) {
		nf.What = "carb ratio"
	}
	return ratio, err
}

// Clock returns the current date and time from the pump's clock. It is never cached.
func (p *Pump) Clock(ctx context.Context) (time.Time, error) {
	out, err := p.gateway.Invoke(ctx, core.CmdReadClock)
	if err != nil {
		return time.Time{}, err
	}
	var iso string
	if err := decode(core.CmdReadClock, out, &iso); err != nil {
		return time.Time{}, err
	}
	t, err := core.ParseDeviceTime(iso, p.loc)
	if err != nil {
		return time.Time{}, &ParseError{Command: core.CmdReadClock, Cause: err}
	}
	return t, nil
}

// LatestGlucose returns the most recent glucose record in the window ending at d,
// or nil when none was recorded. d is truncated to the minute. The caller owns
// the returned reading.
func (p *Pump) LatestGlucose(ctx context.Context, d time.Time) (*GlucoseReading, error) {
	to := core.TruncateToMinute(d.In(p.loc))
	from := to.Add(-p.window)
	key := cache.Key("glucose", cache.TimeKey(from), cache.TimeKey(to))

	reading, err := p.glucose.GetOrCompute(key, func() (*GlucoseReading, error) {
		return p.latestGlucose(ctx, from, to)
	})
	if err != nil {
		return nil, err
	}
	return reading.clone(), nil
}

// GlucoseAt returns the most recent glucose level (mg/dL) in the window ending at d.
// ok is false when no reading was recorded in that window.
func (p *Pump) GlucoseAt(ctx context.Context, d time.Time) (value float64, ok bool, err error) {
	reading, err := p.LatestGlucose(ctx, d)
	if err != nil || reading == nil || !reading.HasValue {
		return 0, false, err
	}
	return reading.Value, true, nil
}

// HistoryInRange returns history entries between from and to inclusive, newest first.
// Both bounds are truncated to the minute. The caller owns the returned entries.
func (p *Pump) HistoryInRange(ctx context.Context, from, to time.Time) ([]HistoryEntry, error) {
	from = core.TruncateToMinute(from.In(p.loc))
	to = core.TruncateToMinute(to.In(p.loc))
	key := cache.Key("history", cache.TimeKey(from), cache.TimeKey(to))

	entries, err := p.history.GetOrCompute(key, func() ([]HistoryEntry, error) {
		return p.reconciler.EntriesInRange(ctx, from, to)
	})
	if err != nil {
		return nil, err
	}
	return cloneHistory(entries), nil
}

func (p *Pump) historyPage(ctx context.Context, page int) ([]map[string]interface{}, error) {
	out, err := p.gateway.Invoke(ctx, core.CmdReadHistoryData, strconv.Itoa(page))
	if err != nil {
		return nil, err
	}
	return decodeRecords(core.CmdReadHistoryData, out)
}

// InsulinActionCurve returns the insulin action curve duration in hours.
func (p *Pump) InsulinActionCurve(ctx context.Context) (float64, error) {
	return p.actionCurve.GetOrCompute(keySettings, func() (float64, error) {
		out, err := p.gateway.Invoke(ctx, core.CmdReadSettings)
		if err != nil {
			return 0, err
		}
		settings, err := decodeObject(core.CmdReadSettings, out)
		if err != nil {
			return 0, err
		}
		return floatField(core.CmdReadSettings, settings, "insulin_action_curve")
	})
}

// InsulinSensitivityAt returns the insulin sensitivity at t.
//
// Only the first schedule entry is consulted regardless of t.
func (p *Pump) InsulinSensitivityAt(ctx context.Context, t time.Time) (float64, error) {
	schedule, err := p.sensitivities.GetOrCompute(keySensitivities, func() ([]ScheduleEntry, error) {
		out, err := p.gateway.Invoke(ctx, core.CmdReadInsulinSensitivies)
		if err != nil {
			return nil, err
		}
		obj, err := decodeObject(core.CmdReadInsulinSensitivies, out)
		if err != nil {
			return nil, err
		}
		return scheduleField(core.CmdReadInsulinSensitivies, obj, "sensitivities", "sensitivity")
	})
	if err != nil {
		return 0, err
	}
	if len(schedule) == 0 {
		return 0, &NotFoundError{What: "insulin sensitivity", At: core.MinutesOfDay(t)}
	}
	return schedule[0].Value, nil
}

// CacheInfo returns the statistics of every cache registered with the pump's registry.
func (p *Pump) CacheInfo() map[string]cache.Info {
	return p.registry.Snapshot()
}

// ClearCaches empties every registered cache.
func (p *Pump) ClearCaches() {
	p.registry.ClearAll()
	p.logger.Debug().Msg("caches cleared")
}

// Cache returns the cache backing the public operation name.
func (p *Pump) Cache(name string) (cache.Introspector, error) {
	c, ok := p.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown cache '%s'", name)
	}
	return c, nil
}
