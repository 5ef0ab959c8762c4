package pump

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/spf13/cast"
)

// Glucose record kinds that carry a reading.
const (
	KindGlucoseSensorData = "GlucoseSensorData"
	KindCalBGForGH        = "CalBGForGH"
)

// GlucoseReading is the most recent sensor or calibration record in a window.
type GlucoseReading struct {
	Kind     string                 `json:"kind"`
	Time     time.Time              `json:"time"`
	Value    float64                `json:"value"`
	HasValue bool                   `json:"has_value"`
	Record   map[string]interface{} `json:"record"`
}

func (r *GlucoseReading) clone() *GlucoseReading {
	if r == nil {
		return nil
	}
	c := *r
	c.Record = cloneRecord(r.Record)
	return &c
}

func isGlucoseKind(name interface{}) bool {
	s, ok := name.(string)
	return ok && (s == KindGlucoseSensorData || s == KindCalBGForGH)
}

// latestGlucose returns the newest recognized glucose record on the page that
// covers [from, to], or nil when that record lies outside the range.
func (p *Pump) latestGlucose(ctx context.Context, from, to time.Time) (*GlucoseReading, error) {
	out, err := p.gateway.Invoke(ctx, core.CmdFilterGlucoseDate,
		core.FormatDeviceTime(from.In(p.loc)), core.FormatDeviceTime(to.In(p.loc)))
	if err != nil {
		return nil, err
	}
	pages, err := decodeObject(core.CmdFilterGlucoseDate, out)
	if err != nil {
		return nil, err
	}
	end, err := intField(core.CmdFilterGlucoseDate, pages, "end")
	if err != nil {
		return nil, err
	}

	out, err = p.gateway.Invoke(ctx, core.CmdReadGlucoseData, strconv.Itoa(end))
	if err != nil {
		return nil, err
	}
	history, err := decodeRecords(core.CmdReadGlucoseData, out)
	if err != nil {
		return nil, err
	}

	var latest record
	for i := len(history) - 1; i >= 0; i-- {
		if isGlucoseKind(history[i]["name"]) {
			latest = history[i]
			break
		}
	}
	if latest == nil {
		p.logger.Debug().Int("page", end).Msg("no glucose records on page")
		return nil, nil
	}

	date, ok := latest["date"].(string)
	if !ok {
		return nil, &ParseError{Command: core.CmdReadGlucoseData, Field: "date", Cause: fmt.Errorf("missing")}
	}
	at, err := core.ParseDeviceTime(date, p.loc)
	if err != nil {
		return nil, &ParseError{Command: core.CmdReadGlucoseData, Field: "date", Cause: err}
	}
	if at.Before(from) || at.After(to) {
		return nil, nil
	}

	reading := &GlucoseReading{
		Kind:   latest["name"].(string),
		Time:   at,
		Record: latest,
	}
	for _, field := range []string{"sgv", "amount"} {
		if v, ok := latest[field]; ok && v != nil {
			if reading.Value, err = cast.ToFloat64E(v); err != nil {
				return nil, &ParseError{Command: core.CmdReadGlucoseData, Field: field, Cause: err}
			}
			reading.HasValue = true
			break
		}
	}
	return reading, nil
}
