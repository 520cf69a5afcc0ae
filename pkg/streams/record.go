package streams

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/zoomphone-tap/pkg/pagination"
	"github.com/tidwall/gjson"
)

// WholeBody is the records path of a response that is itself one record.
const WholeBody = "@this"

// ErrInvalidBody is returned when a response body is not valid JSON.
var ErrInvalidBody = errors.New("invalid response body")

// Record is one extracted API object. Numbers are kept as json.Number so
// large identifiers and decimal amounts survive unchanged.
type Record map[string]any

// String returns the field as a string, or "" when it is absent or null.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Timestamp parses the field as an RFC 3339 timestamp.
func (r Record) Timestamp(key string) (time.Time, bool) {
	s := r.String(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := pagination.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Key joins the primary key values of the record.
func (r Record) Key(fields []string) string {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte('|')
		}
		buf.WriteString(r.String(f))
	}
	return buf.String()
}

// ExtractRecords unwraps the records found at path in body. A missing or
// null array yields no records.
func ExtractRecords(body []byte, path string) ([]Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidBody
	}
	if path == "" {
		path = WholeBody
	}

	result := gjson.GetBytes(body, path)
	switch {
	case !result.Exists() || result.Type == gjson.Null:
		return nil, nil
	case result.IsObject():
		rec, err := decodeRecord(result.Raw)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	case !result.IsArray():
		return nil, fmt.Errorf("%w: %s is %s, want array or object", ErrInvalidBody, path, result.Type)
	}

	var (
		records []Record
		decErr  error
	)
	result.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			decErr = fmt.Errorf("%w: %s holds %s, want object", ErrInvalidBody, path, item.Type)
			return false
		}
		rec, err := decodeRecord(item.Raw)
		if err != nil {
			decErr = err
			return false
		}
		records = append(records, rec)
		return true
	})
	if decErr != nil {
		return nil, decErr
	}
	return records, nil
}

func decodeRecord(raw string) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
