// Package output provides output formatting utilities for pumpcache.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/colthorp/pumpcache-go/internal/cache"
	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/colthorp/pumpcache-go/internal/pump"
)

// WriteJSON writes item as indented JSON followed by a newline.
func WriteJSON(w io.Writer, item interface{}) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// FormatNumber renders v without a trailing ".0" for whole numbers.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteValue writes a single numeric result.
func WriteValue(w io.Writer, v float64) error {
	_, err := fmt.Fprintln(w, FormatNumber(v))
	return err
}

// WriteGlucose writes the reading value and time, or "none" when there is no reading.
func WriteGlucose(w io.Writer, reading *pump.GlucoseReading) error {
	if reading == nil || !reading.HasValue {
		_, err := fmt.Fprintln(w, "none")
		return err
	}
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\n", FormatNumber(reading.Value), reading.Time.Format(core.CLIDatetimeFmt), reading.Kind)
	return err
}

// WriteTime writes t in the CLI datetime layout.
func WriteTime(w io.Writer, t time.Time) error {
	_, err := fmt.Fprintln(w, t.Format(core.CLIDatetimeFmt))
	return err
}

// WriteHistory writes one line per entry: reconciled time, record type and the raw record.
func WriteHistory(w io.Writer, entries []pump.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		kind, _ := e.Record["_type"].(string)
		if kind == "" {
			kind = "-"
		}
		record, err := json.Marshal(e.Record)
		if err != nil {
			return fmt.Errorf("error encoding history entry: %w", err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Format(core.CLIDatetimeFmt), kind, record)
	}
	return tw.Flush()
}

// WriteCacheInfo writes a table of cache statistics sorted by name.
func WriteCacheInfo(w io.Writer, infos map[string]cache.Info) error {
	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOLICY\tHITS\tMISSES\tSIZE\tCAPACITY\tTTL")
	for _, name := range names {
		info := infos[name]
		ttl := "-"
		if info.TTL > 0 {
			ttl = info.TTL.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			name, info.Policy, info.Hits, info.Misses, info.Size, info.Capacity, ttl)
	}
	return tw.Flush()
}
