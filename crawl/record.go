package crawl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindRaw // nested array or object, kept verbatim
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "raw"
	}
}

// Value is one loosely-typed field of an extracted record.
//
// Extraction output is not guaranteed to match the target schema, so a
// field keeps whatever JSON type the engine produced. Numbers keep their
// original literal ("4" stays "4", not "4.0").
type Value struct {
	kind Kind
	str  string
	b    bool
	raw  json.RawMessage
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue returns a number Value from its JSON literal.
func NumberValue(literal string) Value { return Value{kind: KindNumber, str: literal} }

// IntValue returns a number Value for n.
func IntValue(n int64) Value { return NumberValue(strconv.FormatInt(n, 10)) }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NullValue returns a Value for JSON null.
func NullValue() Value { return Value{} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean payload and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// IsFalse reports whether v is exactly the boolean false.
func (v Value) IsFalse() bool { return v.kind == KindBool && !v.b }

// Text renders v as plain text for tabular output and identity checks.
// Null renders as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindRaw:
		return string(v.raw)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindRaw:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("crawl: empty value")
	}
	switch data[0] {
	case 'n':
		*v = NullValue()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case '[', '{':
		if !json.Valid(data) {
			return fmt.Errorf("crawl: invalid nested value %q", data)
		}
		*v = Value{kind: KindRaw, raw: append(json.RawMessage(nil), data...)}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n.String())
	}
	return nil
}

// Record is an ordered field map produced by the extraction engine.
// Before validation it is a candidate; once accepted by the processor it
// is part of the crawl result and is not mutated again.
type Record struct {
	keys   []string
	fields map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]Value)}
}

// Set assigns a field, appending the key if it is new.
func (r *Record) Set(key string, v Value) {
	if r.fields == nil {
		r.fields = make(map[string]Value)
	}
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = v
}

// Get returns the field value and whether the key exists.
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Has reports whether key exists, whatever its value.
func (r *Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Delete removes key if present.
func (r *Record) Delete(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the field names in extraction order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// Text returns the plain-text form of key, or "" when absent.
func (r *Record) Text(key string) string {
	v, _ := r.Get(key)
	return v.Text()
}

// Clone returns a deep-enough copy; Values are immutable.
func (r *Record) Clone() *Record {
	c := &Record{
		keys:   r.Keys(),
		fields: make(map[string]Value, len(r.fields)),
	}
	for k, v := range r.fields {
		c.fields[k] = v
	}
	return c
}

func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.fields[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. A repeated key
// keeps its first position and its last value, as encoding/json does.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("crawl: record must be a JSON object, got %v", tok)
	}

	*r = Record{fields: make(map[string]Value)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("crawl: unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("crawl: field %q: %w", key, err)
		}
		r.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// ParseCandidates decodes an extraction payload into candidate records.
//
// Accepted shapes:
//   - a JSON array; non-object elements are ignored
//   - an object wrapping an array: either an array under a well-known
//     wrapper key (items, records, products, results, data), or an array
//     of objects in an object that has no string fields of its own
//   - any other object, treated as one candidate
//
// null, an empty array or an empty payload yield no candidates and no error.
func ParseCandidates(payload []byte) ([]*Record, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, nil
	}

	switch payload[0] {
	case '[':
		return parseArray(payload)
	case '{':
		var obj Record
		if err := obj.UnmarshalJSON(payload); err != nil {
			return nil, err
		}
		if inner, ok := wrappedArray(&obj); ok {
			return parseArray(inner)
		}
		if obj.Len() == 0 {
			return nil, nil
		}
		return []*Record{&obj}, nil
	default:
		return nil, fmt.Errorf("crawl: unsupported payload starting with %q", payload[0])
	}
}

var wrapperKeys = []string{"items", "records", "products", "results", "data"}

// wrappedArray returns the array obj wraps, if it is a wrapper at all.
// A product that merely carries a list field ("colors": ["red"]) is not.
func wrappedArray(obj *Record) (json.RawMessage, bool) {
	for _, k := range wrapperKeys {
		if v, ok := obj.fields[k]; ok && isArray(v) {
			return v.raw, true
		}
	}
	for _, v := range obj.fields {
		if v.kind == KindString {
			return nil, false
		}
	}
	for _, k := range obj.keys {
		v := obj.fields[k]
		if isArray(v) && holdsObject(v.raw) {
			return v.raw, true
		}
	}
	return nil, false
}

func isArray(v Value) bool {
	return v.kind == KindRaw && len(v.raw) > 0 && v.raw[0] == '['
}

func holdsObject(data json.RawMessage) bool {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return false
	}
	for _, item := range items {
		if item = bytes.TrimSpace(item); len(item) > 0 && item[0] == '{' {
			return true
		}
	}
	return false
}

func parseArray(data []byte) ([]*Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		rec := NewRecord()
		if err := rec.UnmarshalJSON(item); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
