package pump

import (
	"context"
	"encoding/json"
	"time"

	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/rs/zerolog"
)

// HistoryEntry is one pump history record with its reconciled timestamp.
// Timestamp is the record's own time, or the previous good timestamp when the
// record's is missing or unparsable.
type HistoryEntry struct {
	Timestamp time.Time
	Record    map[string]interface{}
}

// MarshalJSON emits the record with "timestamp" replaced by the reconciled time.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Record)+1)
	for k, v := range e.Record {
		out[k] = v
	}
	out["timestamp"] = e.Timestamp.Format(time.RFC3339)
	return json.Marshal(out)
}

func cloneHistory(entries []HistoryEntry) []HistoryEntry {
	if entries == nil {
		return nil
	}
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntry{Timestamp: e.Timestamp, Record: cloneRecord(e.Record)}
	}
	return out
}

// PageFetcher returns history page n. Page 0 is the most recent; later pages go back in time.
type PageFetcher func(ctx context.Context, page int) ([]map[string]interface{}, error)

// Reconciler walks paginated, newest-first history and collects the entries in a
// time range. Entries may be out of order by up to Tolerance.
type Reconciler struct {
	fetch     PageFetcher
	tolerance time.Duration
	loc       *time.Location
	logger    zerolog.Logger
}

// NewReconciler creates a Reconciler. Zone-less timestamps are read in loc.
func NewReconciler(fetch PageFetcher, tolerance time.Duration, loc *time.Location, logger zerolog.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{
		fetch:     fetch,
		tolerance: tolerance,
		loc:       loc,
		logger:    logger.With().Str("component", "reconciler").Logger(),
	}
}

// EntriesInRange returns entries with from <= timestamp <= to, in fetch order.
//
// Pages are fetched lazily starting at 0. Fetching stops once the last seen
// timestamp plus the tolerance falls before from, so an entry that is slightly
// older than one behind it does not end the walk early. A page with no entries
// fails with *EmptyPageError.
func (r *Reconciler) EntriesInRange(ctx context.Context, from, to time.Time) ([]HistoryEntry, error) {
	var (
		queue    []map[string]interface{}
		page     int
		lastSeen = to
		results  = make([]HistoryEntry, 0)
	)

	for !from.After(lastSeen.Add(r.tolerance)) {
		if len(queue) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			records, err := r.fetch(ctx, page)
			if err != nil {
				return nil, err
			}
			r.logger.Debug().Int("page", page).Int("entries", len(records)).Msg("fetched history page")
			if len(records) == 0 {
				return nil, &EmptyPageError{Page: page}
			}
			queue = append(queue, records...)
			page++
		}

		rec := queue[0]
		queue = queue[1:]

		if ts, ok := rec["timestamp"].(string); ok {
			if t, err := core.ParseDeviceTime(ts, r.loc); err == nil {
				lastSeen = t
			}
		}

		if !lastSeen.Before(from) && !lastSeen.After(to) {
			results = append(results, HistoryEntry{Timestamp: lastSeen, Record: rec})
		}
	}

	return results, nil
}
