package client

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// FieldError is one normalized validation message.
// Field is empty when the backend reported a message without a location.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return f.Field + ": " + f.Message
}

// Location segments that name the request part rather than the field
var locationRoots = map[string]bool{
	"body":   true,
	"query":  true,
	"path":   true,
	"header": true,
	"cookie": true,
	"form":   true,
}

// ParseDetail normalizes the "detail" member of an error body.
// It accepts a plain message, a list of {loc, msg} items, or a nested object.
func ParseDetail(raw json.RawMessage) []FieldError {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil || msg == "" {
			return nil
		}
		return []FieldError{{Message: msg}}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return []FieldError{{Message: string(raw)}}
		}
		fields := make([]FieldError, 0, len(items))
		for _, item := range items {
			fields = append(fields, parseListItem(item))
		}
		return fields
	case '{':
		var obj map[string]any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return []FieldError{{Message: string(raw)}}
		}
		var fields []FieldError
		flatten("", obj, &fields)
		return fields
	default:
		return []FieldError{{Message: string(raw)}}
	}
}

type listItem struct {
	Loc []any   `json:"loc"`
	Msg *string `json:"msg"`
}

func parseListItem(raw json.RawMessage) FieldError {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return FieldError{Message: msg}
	}

	var item listItem
	if err := json.Unmarshal(raw, &item); err != nil || item.Msg == nil {
		return FieldError{Message: compact(raw)}
	}

	field := ""
	for i := len(item.Loc) - 1; i >= 0; i-- {
		seg, ok := item.Loc[i].(string)
		if ok && !locationRoots[seg] {
			field = seg
			break
		}
	}
	return FieldError{Field: field, Message: *item.Msg}
}

func flatten(prefix string, obj map[string]any, out *[]FieldError) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := obj[k].(type) {
		case map[string]any:
			flatten(path, v, out)
		case string:
			*out = append(*out, FieldError{Field: path, Message: v})
		case []any:
			*out = append(*out, FieldError{Field: path, Message: joinList(v)})
		default:
			data, _ := json.Marshal(v)
			*out = append(*out, FieldError{Field: path, Message: string(data)})
		}
	}
}

func joinList(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			parts = append(parts, s)
			continue
		}
		data, _ := json.Marshal(item)
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "; ")
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// FormatFields renders normalized messages as a single line
func FormatFields(fields []FieldError) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := f.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
