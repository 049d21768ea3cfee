package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Well-known record fields.
const (
	FieldID          = "id"
	FieldLastUpdated = "lastUpdated"
)

// Record is a JSON object describing one entity.
type Record map[string]any

// timeLayouts are tried in order when a timestamp field holds a string.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Decode parses a JSON object into a Record.
// An empty payload or a JSON null decodes to an empty Record.
func Decode(data []byte) (Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Record{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if r == nil {
		return Record{}, nil
	}
	return r, nil
}

// Encode serializes the record as canonical JSON.
func (r Record) Encode() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return MarshalCanonical(map[string]any(r))
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]any:
		return map[string]any(Record(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}

// ID returns the normalized record id, or "" when absent.
func (r Record) ID() string {
	v, ok := r[FieldID]
	if !ok || v == nil {
		return ""
	}
	return Key(v)
}

// String returns a string field, or "" when absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Time parses a timestamp field. Strings are parsed with the common ISO 8601
// layouts; numbers are interpreted as Unix epoch milliseconds.
func (r Record) Time(field string) (time.Time, bool) {
	return ParseTime(r[field])
}

// LastUpdated returns the record's recency timestamp, or the zero time.
func (r Record) LastUpdated() time.Time {
	t, _ := r.Time(FieldLastUpdated)
	return t
}

// Records returns the object elements of an array field.
// Non-object elements are skipped.
func (r Record) Records(field string) []Record {
	arr, ok := r[field].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(arr))
	for _, elem := range arr {
		switch val := elem.(type) {
		case Record:
			out = append(out, val)
		case map[string]any:
			out = append(out, Record(val))
		}
	}
	return out
}

// SetRecords stores records as an array field.
func (r Record) SetRecords(field string, items []Record) {
	arr := make([]any, len(items))
	for i, item := range items {
		arr[i] = map[string]any(item)
	}
	r[field] = arr
}

// ParseTime interprets a JSON value as a timestamp.
func ParseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return time.UnixMilli(n).UTC(), true
		}
		if f, err := val.Float64(); err == nil {
			return time.UnixMilli(int64(f)).UTC(), true
		}
		return time.Time{}, false
	case float64:
		return time.UnixMilli(int64(val)).UTC(), true
	case int64:
		return time.UnixMilli(val).UTC(), true
	case int:
		return time.UnixMilli(int64(val)).UTC(), true
	case time.Time:
		return val.UTC(), true
	default:
		return time.Time{}, false
	}
}

// Key normalizes an id value so that 1, "1" style ids from different
// sources compare by their textual form.
func Key(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case nil:
		return ""
	default:
		data, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
