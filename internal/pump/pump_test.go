package pump

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/colthorp/pumpcache-go/internal/cache"
	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/colthorp/pumpcache-go/internal/device"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestPump(t *testing.T, gw device.Gateway) (*Pump, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2015, 6, 12, 15, 42, 0, 0, time.UTC)}
	p, err := New(gw, cache.NewScatter(nil), cache.NewRegistry(), Options{
		Location: time.UTC,
		Now:      clock.Now,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, clock
}

func clockTime(hour, minute, second int) time.Time {
	return time.Date(2015, 6, 12, hour, minute, second, 0, time.UTC)
}

func seedCarbRatios(gw *device.MemoryGateway) {
	gw.SeedJSON(core.CmdReadCarbRatios, map[string]interface{}{
		"units": "grams",
		"schedule": []map[string]interface{}{
			{"offset": 0, "ratio": 10, "start": "00:00:00"},
			{"offset": 360, "ratio": 12, "start": "06:00:00"},
			{"offset": 1080, "ratio": 15, "start": "18:00:00"},
		},
	})
}

func TestCarbRatioAt(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedCarbRatios(gw)
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	tests := []struct {
		at   time.Time
		want float64
	}{
		{clockTime(0, 0, 0), 10},
		{clockTime(5, 59, 59), 10},
		{clockTime(6, 0, 0), 12},
		{clockTime(7, 30, 0), 12},
		{clockTime(23, 59, 0), 15},
	}

	for _, tt := range tests {
		t.Run(tt.at.Format(core.CLITimeFmt), func(t *testing.T) {
			got, err := p.CarbRatioAt(ctx, tt.at)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if n := gw.Count(core.CmdReadCarbRatios); n != 1 {
		t.Errorf("Expected schedule to be fetched once, got %d", n)
	}
}

func TestCarbRatioNotFound(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.SeedJSON(core.CmdReadCarbRatios, map[string]interface{}{
		"schedule": []map[string]interface{}{{"offset": 60, "ratio": 10}},
	})
	p, _ := newTestPump(t, gw)

	_, err := p.CarbRatioAt(context.Background(), clockTime(0, 30, 0))
	if !IsNotFound(err) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	if !strings.Contains(err.Error(), "carb ratio") {
		t.Errorf("Expected carb ratio in message, got %q", err.Error())
	}
}

func TestClearCachesForcesRefetch(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedCarbRatios(gw)
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	p.CarbRatioAt(ctx, clockTime(7, 0, 0))
	p.CarbRatioAt(ctx, clockTime(8, 0, 0))
	p.ClearCaches()
	p.CarbRatioAt(ctx, clockTime(9, 0, 0))

	if n := gw.Count(core.CmdReadCarbRatios); n != 2 {
		t.Errorf("Expected refetch after clear, got %d fetches", n)
	}
}

func TestScheduleCachesExpire(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedCarbRatios(gw)
	p, clock := newTestPump(t, gw)
	ctx := context.Background()

	// Carb ratios draw the first offset, -49s
	p.CarbRatioAt(ctx, clockTime(7, 0, 0))
	clock.Advance(24*time.Hour - 50*time.Second)
	p.CarbRatioAt(ctx, clockTime(7, 0, 0))
	if n := gw.Count(core.CmdReadCarbRatios); n != 1 {
		t.Errorf("Expected hit within TTL, got %d fetches", n)
	}

	clock.Advance(time.Second)
	p.CarbRatioAt(ctx, clockTime(7, 0, 0))
	if n := gw.Count(core.CmdReadCarbRatios); n != 2 {
		t.Errorf("Expected refetch after TTL, got %d fetches", n)
	}
}

func TestLongLivedCachesAreScattered(t *testing.T) {
	p, _ := newTestPump(t, device.NewMemoryGateway())
	info := p.CacheInfo()

	want := map[string]time.Duration{
		CacheCarbRatio:          23*time.Hour + 59*time.Minute + 11*time.Second,
		CacheInsulinActionCurve: 23*time.Hour + 59*time.Minute + 18*time.Second,
		CacheInsulinSensitivity: 23*time.Hour + 59*time.Minute + 25*time.Second,
	}
	for name, ttl := range want {
		if info[name].TTL != ttl {
			t.Errorf("%s: expected TTL %v, got %v", name, ttl, info[name].TTL)
		}
	}
}

func TestCacheInfoListsPublicCaches(t *testing.T) {
	p, _ := newTestPump(t, device.NewMemoryGateway())

	got := make([]string, 0)
	for name := range p.CacheInfo() {
		got = append(got, name)
	}
	want := []string{CacheCarbRatio, CacheGlucose, CacheHistory, CacheInsulinActionCurve, CacheInsulinSensitivity}
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("CacheInfo names mismatch (-want +got):\n%s", diff)
	}

	if info := p.CacheInfo()[CacheGlucose]; info.Policy != cache.PolicyLRU || info.Capacity != 1 {
		t.Errorf("Expected glucose cache to be LRU-1, got %+v", info)
	}
	if info := p.CacheInfo()[CacheCarbRatio]; info.Policy != cache.PolicyTTL || info.Capacity != 128 {
		t.Errorf("Expected carb ratio cache to be TTL-128, got %+v", info)
	}
}

func TestCacheByPublicName(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedCarbRatios(gw)
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	p.CarbRatioAt(ctx, clockTime(7, 0, 0))
	p.CarbRatioAt(ctx, clockTime(7, 0, 0))

	c, err := p.Cache(CacheCarbRatio)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info := c.Info(); info.Hits != 1 || info.Misses != 1 {
		t.Errorf("Expected public cache to report 1 hit and 1 miss, got %+v", info)
	}

	c.Clear()
	p.CarbRatioAt(ctx, clockTime(7, 0, 0))
	if n := gw.Count(core.CmdReadCarbRatios); n != 2 {
		t.Errorf("Expected clearing by public name to force a refetch, got %d fetches", n)
	}

	if _, err := p.Cache("carb_ratio_schedule"); err == nil {
		t.Error("Expected unknown cache name to fail")
	}
}

func seedGlucose(gw *device.MemoryGateway, from, to string, page string, records []map[string]interface{}) {
	gw.SeedJSON(core.CmdFilterGlucoseDate, map[string]interface{}{"start": 0, "end": page}, from, to)
	gw.SeedJSON(core.CmdReadGlucoseData, records, page)
}

func TestGlucoseAt(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedGlucose(gw, "2015-06-12T15:27:00", "2015-06-12T15:42:00", "3", []map[string]interface{}{
		{"name": "GlucoseSensorData", "date": "2015-06-12T15:30:00", "sgv": 110},
		{"name": "GlucoseSensorData", "date": "2015-06-12T15:35:00", "sgv": 120},
		{"name": "SensorWeakSignal", "date": "2015-06-12T15:40:00"},
	})
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	value, ok, err := p.GlucoseAt(ctx, clockTime(15, 42, 30))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ok || value != 120 {
		t.Errorf("Expected 120, got %v (ok=%v)", value, ok)
	}

	// Same minute, different seconds
	if _, _, err := p.GlucoseAt(ctx, clockTime(15, 42, 5)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := gw.Count(core.CmdFilterGlucoseDate); n != 1 {
		t.Errorf("Expected sub-minute queries to share a cache entry, got %d fetches", n)
	}
	if info := p.CacheInfo()[CacheGlucose]; info.Hits != 1 {
		t.Errorf("Expected 1 glucose cache hit, got %d", info.Hits)
	}
}

func TestGlucoseAtOutsideWindow(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedGlucose(gw, "2015-06-12T15:27:00", "2015-06-12T15:42:00", "3", []map[string]interface{}{
		{"name": "GlucoseSensorData", "date": "2015-06-12T15:26:00", "sgv": 120},
	})
	p, _ := newTestPump(t, gw)

	value, ok, err := p.GlucoseAt(context.Background(), clockTime(15, 42, 0))
	if err != nil {
		t.Fatalf("Expected no error for a reading outside the window, got %v", err)
	}
	if ok {
		t.Errorf("Expected no reading, got %v", value)
	}
}

func TestGlucoseAtFallsBackToAmount(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedGlucose(gw, "2015-06-12T15:27:00", "2015-06-12T15:42:00", "7", []map[string]interface{}{
		{"name": "GlucoseSensorData", "date": "2015-06-12T15:30:00", "sgv": 110},
		{"name": "CalBGForGH", "date": "2015-06-12T15:38:00", "amount": 98},
	})
	p, _ := newTestPump(t, gw)

	reading, err := p.LatestGlucose(context.Background(), clockTime(15, 42, 0))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reading == nil || reading.Kind != KindCalBGForGH || reading.Value != 98 {
		t.Errorf("Expected CalBGForGH reading of 98, got %+v", reading)
	}
}

func TestGlucoseAtNoRecognizedRecords(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedGlucose(gw, "2015-06-12T15:27:00", "2015-06-12T15:42:00", "3", []map[string]interface{}{
		{"name": "SensorWeakSignal", "date": "2015-06-12T15:40:00"},
	})
	p, _ := newTestPump(t, gw)

	_, ok, err := p.GlucoseAt(context.Background(), clockTime(15, 42, 0))
	if err != nil || ok {
		t.Errorf("Expected no reading and no error, got ok=%v err=%v", ok, err)
	}
}

func TestGlucoseAtMissingEnd(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.SeedJSON(core.CmdFilterGlucoseDate, map[string]interface{}{"start": 0},
		"2015-06-12T15:27:00", "2015-06-12T15:42:00")
	p, _ := newTestPump(t, gw)

	_, _, err := p.GlucoseAt(context.Background(), clockTime(15, 42, 0))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "end" {
		t.Errorf("Expected ParseError on end, got %v", err)
	}
}

func TestHistoryInRangeTruncatesToMinute(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.SeedJSON(core.CmdReadHistoryData, []map[string]interface{}{
		{"_type": "Bolus", "timestamp": "2015-06-12T15:30:00", "amount": 1.5},
		{"_type": "TempBasal", "timestamp": "2015-06-12T15:10:00", "rate": 0.8},
		{"_type": "Bolus", "timestamp": "2015-06-12T14:50:00", "amount": 2},
	}, "0")
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	entries, err := p.HistoryInRange(ctx, clockTime(15, 0, 10), clockTime(15, 30, 45))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Record["_type"] != "Bolus" || entries[1].Record["_type"] != "TempBasal" {
		t.Errorf("Expected newest-first order, got %v", entries)
	}

	if _, err := p.HistoryInRange(ctx, clockTime(15, 0, 50), clockTime(15, 30, 5)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := gw.Count(core.CmdReadHistoryData); n != 1 {
		t.Errorf("Expected sub-minute queries to share a cache entry, got %d fetches", n)
	}

	// LRU-1: a different range replaces the cached one
	if _, err := p.HistoryInRange(ctx, clockTime(15, 5, 0), clockTime(15, 30, 0)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := p.HistoryInRange(ctx, clockTime(15, 0, 0), clockTime(15, 30, 0)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := gw.Count(core.CmdReadHistoryData); n != 3 {
		t.Errorf("Expected LRU-1 to keep only the latest range, got %d fetches", n)
	}
}

func TestHistoryInRangeResultsDoNotAliasCache(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.SeedJSON(core.CmdReadHistoryData, []map[string]interface{}{
		{"_type": "Bolus", "timestamp": "2015-06-12T15:30:00", "amount": 1.5,
			"wizard": map[string]interface{}{"carbs": 30}},
		{"_type": "Bolus", "timestamp": "2015-06-12T14:50:00", "amount": 2},
	}, "0")
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	first, err := p.HistoryInRange(ctx, clockTime(15, 0, 0), clockTime(15, 30, 0))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	first[0].Record["_type"] = "Changed"
	first[0].Record["wizard"].(map[string]interface{})["carbs"] = 0
	first[0].Timestamp = time.Time{}

	second, err := p.HistoryInRange(ctx, clockTime(15, 0, 0), clockTime(15, 30, 0))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := gw.Count(core.CmdReadHistoryData); n != 1 {
		t.Fatalf("Expected second call to be served from cache, got %d fetches", n)
	}
	if second[0].Record["_type"] != "Bolus" {
		t.Errorf("Expected Bolus, got %v", second[0].Record["_type"])
	}
	if carbs := second[0].Record["wizard"].(map[string]interface{})["carbs"]; carbs != float64(30) {
		t.Errorf("Expected nested record to be unchanged, got carbs=%v", carbs)
	}
	if !second[0].Timestamp.Equal(clockTime(15, 30, 0)) {
		t.Errorf("Expected 15:30 timestamp, got %v", second[0].Timestamp)
	}
}

func TestLatestGlucoseResultDoesNotAliasCache(t *testing.T) {
	gw := device.NewMemoryGateway()
	seedGlucose(gw, "2015-06-12T15:27:00", "2015-06-12T15:42:00", "3", []map[string]interface{}{
		{"name": "GlucoseSensorData", "date": "2015-06-12T15:35:00", "sgv": 120},
	})
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	first, err := p.LatestGlucose(ctx, clockTime(15, 42, 0))
	if err != nil || first == nil {
		t.Fatalf("Expected a reading, got %v (err=%v)", first, err)
	}
	first.Value = 0
	first.Record["sgv"] = 0

	second, err := p.LatestGlucose(ctx, clockTime(15, 42, 0))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := gw.Count(core.CmdFilterGlucoseDate); n != 1 {
		t.Fatalf("Expected second call to be served from cache, got %d fetches", n)
	}
	if second.Value != 120 || second.Record["sgv"] != float64(120) {
		t.Errorf("Expected cached reading of 120, got value=%v sgv=%v", second.Value, second.Record["sgv"])
	}
}

func TestHistoryInRangeBadPage(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.Seed(core.CmdReadHistoryData, []byte(`{"not": "a list"}`), "0")
	p, _ := newTestPump(t, gw)

	_, err := p.HistoryInRange(context.Background(), clockTime(15, 0, 0), clockTime(15, 30, 0))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Command != core.CmdReadHistoryData {
		t.Errorf("Expected ParseError from %s, got %v", core.CmdReadHistoryData, err)
	}
}

func TestInsulinActionCurve(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.SeedJSON(core.CmdReadSettings, map[string]interface{}{"insulin_action_curve": 4, "max_bolus": 10})
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := p.InsulinActionCurve(ctx)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != 4 {
			t.Errorf("Expected 4, got %v", got)
		}
	}
	if n := gw.Count(core.CmdReadSettings); n != 1 {
		t.Errorf("Expected settings to be fetched once, got %d", n)
	}
}

func TestInsulinSensitivityAlwaysFirstEntry(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.SeedJSON(core.CmdReadInsulinSensitivies, map[string]interface{}{
		"units": "mg/dL",
		"sensitivities": []map[string]interface{}{
			{"offset": 0, "sensitivity": 40},
			{"offset": 720, "sensitivity": 60},
		},
	})
	p, _ := newTestPump(t, gw)

	for _, at := range []time.Time{clockTime(1, 0, 0), clockTime(13, 0, 0)} {
		got, err := p.InsulinSensitivityAt(context.Background(), at)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != 40 {
			t.Errorf("At %s: expected first entry 40, got %v", at.Format(core.CLITimeFmt), got)
		}
	}
}

func TestInsulinSensitivityEmpty(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.SeedJSON(core.CmdReadInsulinSensitivies, map[string]interface{}{"sensitivities": []interface{}{}})
	p, _ := newTestPump(t, gw)

	if _, err := p.InsulinSensitivityAt(context.Background(), clockTime(1, 0, 0)); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestClockIsNotCached(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.Seed(core.CmdReadClock, []byte(`"2015-06-12T15:42:07"`))
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := p.Clock(ctx)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !got.Equal(clockTime(15, 42, 7)) {
			t.Errorf("Expected 15:42:07, got %v", got)
		}
	}
	if n := gw.Count(core.CmdReadClock); n != 2 {
		t.Errorf("Expected clock to be read every time, got %d", n)
	}
}

func TestDeviceErrorsPropagateAndAreNotCached(t *testing.T) {
	gw := device.NewMemoryGateway()
	gw.Fail(core.CmdReadSettings, errors.New("pump asleep"))
	p, _ := newTestPump(t, gw)
	ctx := context.Background()

	_, err := p.InsulinActionCurve(ctx)
	var devErr *device.Error
	if !errors.As(err, &devErr) {
		t.Fatalf("Expected device.Error, got %v", err)
	}

	gw.SeedJSON(core.CmdReadSettings, map[string]interface{}{"insulin_action_curve": 3})
	got, err := p.InsulinActionCurve(ctx)
	if err != nil {
		t.Fatalf("Expected retry after error to succeed, got %v", err)
	}
	if got != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		output string
		field  string
	}{
		{"invalid json", `not json`, ""},
		{"missing schedule", `{"units": "grams"}`, "schedule"},
		{"missing ratio", `{"schedule": [{"offset": 0}]}`, "ratio"},
		{"bad ratio", `{"schedule": [{"offset": 0, "ratio": "ten"}]}`, "ratio"},
		{"schedule not a list", `{"schedule": 12}`, "schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := device.NewMemoryGateway()
			gw.Seed(core.CmdReadCarbRatios, []byte(tt.output))
			p, _ := newTestPump(t, gw)

			_, err := p.CarbRatioAt(context.Background(), clockTime(7, 0, 0))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected ParseError, got %v", err)
			}
			if pe.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, pe.Field)
			}
		})
	}
}
