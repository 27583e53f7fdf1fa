package sqlexec

import (
	"bytes"
	"encoding/json"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// wrapperKeys are envelope fields some executor deployments put rows under.
var wrapperKeys = []string{"data", "rows", "result", "results", "records"}

// object is a decoded JSON object whose values are still raw and whose keys
// keep their document order.
type object = orderedmap.OrderedMap[string, json.RawMessage]

// DecodeBody turns an executor response body into a Result. Bodies that are
// not JSON, or JSON of an unexpected shape, come back as KindText carrying
// the raw body.
func DecodeBody(body []byte) Result {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Empty(nil)
	}
	if !json.Valid(trimmed) {
		return Result{Kind: KindText, Raw: string(body)}
	}

	res, ok := classify(trimmed)
	if !ok {
		return Result{Kind: KindText, Raw: string(body)}
	}
	return res
}

func classify(raw json.RawMessage) (Result, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Result{}, false
	}

	switch raw[0] {
	case 'n':
		return Empty(nil), true
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Result{}, false
		}
		return classifyArray(items)
	case '{':
		obj, err := decodeObject(raw)
		if err != nil {
			return Result{}, false
		}
		for _, key := range wrapperKeys {
			if inner, ok := obj.Get(key); ok && isContainer(inner) {
				return classify(inner)
			}
		}
		row, columns, err := rowFromObject(obj)
		if err != nil {
			return Result{}, false
		}
		return FromRows(columns, []Row{row}), true
	default:
		v, err := decodePlain(raw)
		if err != nil {
			return Result{}, false
		}
		return Result{Kind: KindScalar, Value: v}, true
	}
}

func classifyArray(items []json.RawMessage) (Result, bool) {
	if len(items) == 0 {
		return Empty(nil), true
	}

	var columns []string
	seen := make(map[string]bool)
	rows := make([]Row, 0, len(items))

	for _, item := range items {
		item = bytes.TrimSpace(item)
		switch {
		case len(item) == 0, item[0] == '[', item[0] == 'n':
			return Result{}, false
		case item[0] == '{':
			obj, err := decodeObject(item)
			if err != nil {
				return Result{}, false
			}
			row, keys, err := rowFromObject(obj)
			if err != nil {
				return Result{}, false
			}
			for _, k := range keys {
				if !seen[k] {
					seen[k] = true
					columns = append(columns, k)
				}
			}
			rows = append(rows, row)
		default:
			v, err := decodePlain(item)
			if err != nil {
				return Result{}, false
			}
			if !seen["value"] {
				seen["value"] = true
				columns = append(columns, "value")
			}
			rows = append(rows, Row{"value": v})
		}
	}

	return FromRows(columns, rows), true
}

// isContainer reports whether raw is an array, an object or null.
func isContainer(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '[' || raw[0] == '{' || raw[0] == 'n')
}

func decodeObject(raw json.RawMessage) (*object, error) {
	obj := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// rowFromObject decodes every value of obj and returns the row with its keys
// in document order.
func rowFromObject(obj *object) (Row, []string, error) {
	row := make(Row, obj.Len())
	keys := make([]string, 0, obj.Len())
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		v, err := decodePlain(pair.Value)
		if err != nil {
			return nil, nil, err
		}
		row[pair.Key] = v
		keys = append(keys, pair.Key)
	}
	return row, keys, nil
}

// decodePlain decodes a value into ordinary Go values. Nested objects become
// maps; numbers become int64 when integral and float64 otherwise.
func decodePlain(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeValue(v), nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		return normalizeNumber(val)
	case map[string]any:
		for k, el := range val {
			val[k] = normalizeValue(el)
		}
		return val
	case []any:
		for i, el := range val {
			val[i] = normalizeValue(el)
		}
		return val
	default:
		return val
	}
}

func normalizeNumber(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return s
}
