package pump

// ScheduleEntry is one step of a daily schedule. Offset is minutes since midnight.
type ScheduleEntry struct {
	Offset float64 `json:"offset"`
	Value  float64 `json:"value"`
}

// ValueAt returns the value of the last entry whose offset is at or before
// minutes. Entries must be sorted ascending by offset.
func ValueAt(entries []ScheduleEntry, minutes float64) (float64, error) {
	var value float64
	found := false
	for _, e := range entries {
		if minutes < e.Offset {
			break
		}
		value = e.Value
		found = true
	}
	if !found {
		return 0, &NotFoundError{What: "schedule entry", At: minutes}
	}
	return value, nil
}
