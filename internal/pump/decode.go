package pump

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

type record = map[string]interface{}

func decode(command string, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &ParseError{Command: command, Cause: err}
	}
	return nil
}

func decodeObject(command string, data []byte) (record, error) {
	var obj record
	if err := decode(command, data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &ParseError{Command: command, Cause: fmt.Errorf("expected object, got null")}
	}
	return obj, nil
}

func decodeRecords(command string, data []byte) ([]record, error) {
	var records []record
	if err := decode(command, data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func lookup(command string, obj record, field string) (interface{}, error) {
	v, ok := obj[field]
	if !ok || v == nil {
		return nil, &ParseError{Command: command, Field: field, Cause: fmt.Errorf("missing")}
	}
	return v, nil
}

func floatField(command string, obj record, field string) (float64, error) {
	v, err := lookup(command, obj, field)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, &ParseError{Command: command, Field: field, Cause: err}
	}
	return f, nil
}

func intField(command string, obj record, field string) (int, error) {
	v, err := lookup(command, obj, field)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, &ParseError{Command: command, Field: field, Cause: err}
	}
	return n, nil
}

func recordsField(command string, obj record, field string) ([]record, error) {
	v, err := lookup(command, obj, field)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, &ParseError{Command: command, Field: field, Cause: fmt.Errorf("expected array, got %T", v)}
	}
	out := make([]record, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, &ParseError{Command: command, Field: fmt.Sprintf("%s[%d]", field, i), Cause: fmt.Errorf("expected object, got %T", item)}
		}
		out = append(out, m)
	}
	return out, nil
}

// scheduleField decodes obj[field] into schedule entries, taking each value from valueKey.
// Entries without an offset start at midnight.
func scheduleField(command string, obj record, field, valueKey string) ([]ScheduleEntry, error) {
	items, err := recordsField(command, obj, field)
	if err != nil {
		return nil, err
	}
	entries := make([]ScheduleEntry, 0, len(items))
	for _, item := range items {
		var e ScheduleEntry
		if _, ok := item["offset"]; ok {
			if e.Offset, err = floatField(command, item, "offset"); err != nil {
				return nil, err
			}
		}
		if e.Value, err = floatField(command, item, valueKey); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// cloneRecord deep-copies a decoded JSON object so cached records stay immutable.
func cloneRecord(rec record) record {
	if rec == nil {
		return nil
	}
	out := make(record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		return cloneRecord(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
