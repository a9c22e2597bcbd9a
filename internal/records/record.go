// Package records decodes raw upstream records and normalizes the handful of
// fields the gateway relies on. Upstream field names for the same concept vary
// by endpoint, so every lookup goes through an alias table.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one raw upstream object. Numbers decode as json.Number so large
// identifiers survive unchanged.
type Record map[string]any

// Entity selects an alias table.
type Entity int

// Entity kinds with distinct identifier aliases.
const (
	Folder Entity = iota
	Item
)

func (e Entity) String() string {
	switch e {
	case Folder:
		return "folder"
	case Item:
		return "item"
	default:
		return fmt.Sprintf("entity(%d)", int(e))
	}
}

// idAliases lists identifier keys in lookup priority order.
var idAliases = map[Entity][]string{
	Folder: {"id", "folder_id", "album_id", "share_id"},
	Item:   {"id", "unit_id", "item_id", "photo_id"},
}

// IDAliases returns the identifier keys for e in priority order.
func IDAliases(e Entity) []string {
	return append([]string(nil), idAliases[e]...)
}

// Decode parses a JSON object into a Record. A JSON null or non-object
// yields a nil Record and no error.
func Decode(raw json.RawMessage) (Record, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, err
	}

	rec, _ := v.(map[string]any)

	return rec, nil
}

func decodeAny(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("records: decoding: %w", err)
	}

	return v, nil
}

// AsRecord returns v as a Record when it is a JSON object.
func AsRecord(v any) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, t != nil
	case map[string]any:
		return t, t != nil
	default:
		return nil, false
	}
}

// Sub returns the nested object at key, or nil.
func (r Record) Sub(key string) Record {
	sub, _ := AsRecord(r[key])
	return sub
}

// First returns the first present, non-null value among keys.
func (r Record) First(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}

	return nil, false
}

// ID returns the normalized identifier of r under e's alias table.
func (r Record) ID(e Entity) (string, bool) {
	v, ok := r.First(idAliases[e]...)
	if !ok {
		return "", false
	}

	s, ok := Scalar(v)
	if !ok || s == "" {
		return "", false
	}

	return NormalizeID(s), true
}

// Scalar renders a JSON scalar as a string. Objects and arrays report false.
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Number converts a JSON scalar to a finite float.
func Number(v any) (float64, bool) {
	var f float64

	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}

		f = parsed
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}

		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

// NormalizeID trims s and rewrites integral numeric strings to canonical
// integer form, so "0042", "42" and "42.0" compare equal.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}

	return s
}

// IDParam converts an identifier to the form the upstream expects in
// parameters: an integer when numeric, otherwise the string.
func IDParam(id string) any {
	norm := NormalizeID(id)

	if n, err := strconv.ParseInt(norm, 10, 64); err == nil {
		return n
	}

	return norm
}

// ExtractList reads {list, total|total_count} from a response payload. When
// no usable total is present the list length is used.
func ExtractList(data json.RawMessage) ([]Record, int, error) {
	rec, err := Decode(data)
	if err != nil {
		return nil, 0, err
	}

	list := listOf(rec)
	total := len(list)

	if v, ok := rec.First("total", "total_count"); ok {
		if n, ok := Number(v); ok {
			total = int(n)
		}
	}

	return list, total, nil
}

// ExtractSingle reads a single record from a getinfo-style payload: the
// first entry of list, else the info object.
func ExtractSingle(data json.RawMessage) (Record, error) {
	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if list := listOf(rec); len(list) > 0 {
		return list[0], nil
	}

	return rec.Sub("info"), nil
}

func listOf(rec Record) []Record {
	raw, ok := rec["list"].([]any)
	if !ok {
		return nil
	}

	out := make([]Record, 0, len(raw))

	for _, entry := range raw {
		if r, ok := AsRecord(entry); ok {
			out = append(out, r)
		}
	}

	return out
}
