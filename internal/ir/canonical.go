package ir

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// It is the ONLY serialization used for content-addressed identity.
//
// Accepted values: Term, Quad, Mapping, []Origin, string, int, int64, bool,
// []any and map[string]any of the same.
//
// Rules:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping; U+2028/U+2029 are written literally
//  3. Strings are NFC normalized
//  4. No floats, no null
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TermObject returns the canonical object form of a term:
//
//	{"type":"iri","value":"http://..."}
//	{"type":"bnode","value":12}
//	{"datatype":"http://...#integer","type":"literal","value":"5"}
//	{"type":"default"}
func TermObject(t Term) (map[string]any, error) {
	switch v := t.(type) {
	case NamedTerm:
		return map[string]any{"type": "iri", "value": v.IRI}, nil
	case BlankTerm:
		return map[string]any{"type": "bnode", "value": v.ID}, nil
	case Literal:
		dt := v.Datatype
		if dt.IRI == "" {
			dt = XSDString
		}
		return map[string]any{"type": "literal", "value": v.Value, "datatype": dt.IRI}, nil
	case DefaultGraph:
		return map[string]any{"type": "default"}, nil
	case nil:
		return nil, fmt.Errorf("null term is forbidden in canonical JSON")
	default:
		return nil, fmt.Errorf("unsupported term type %T", t)
	}
}

func quadObject(q Quad) (map[string]any, error) {
	obj := make(map[string]any, 4)
	for _, part := range []struct {
		key  string
		term Term
	}{
		{"subject", q.Subject},
		{"predicate", q.Predicate},
		{"object", q.Object},
		{"graph", q.GraphTerm()},
	} {
		o, err := TermObject(part.term)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", part.key, err)
		}
		obj[part.key] = o
	}
	return obj, nil
}

func mappingObject(m Mapping) (map[string]any, error) {
	obj := make(map[string]any, m.Len())
	for k, t := range m.m {
		o, err := TermObject(t)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", k, err)
		}
		obj[k] = o
	}
	return obj, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		writeCanonicalString(buf, val)
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case Term:
		obj, err := TermObject(val)
		if err != nil {
			return err
		}
		return writeCanonicalObject(buf, obj)
	case Quad:
		obj, err := quadObject(val)
		if err != nil {
			return fmt.Errorf("quad: %w", err)
		}
		return writeCanonicalObject(buf, obj)
	case Mapping:
		obj, err := mappingObject(val)
		if err != nil {
			return fmt.Errorf("mapping: %w", err)
		}
		return writeCanonicalObject(buf, obj)
	case []Origin:
		arr := make([]any, len(val))
		for i, o := range val {
			arr[i] = map[string]any{"seq": o.Seq, "quad_id": o.QuadID}
		}
		return writeCanonicalArray(buf, arr)
	case []any:
		return writeCanonicalArray(buf, val)
	case map[string]any:
		return writeCanonicalObject(buf, val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

// writeCanonicalString writes s as an RFC 8785 JSON string.
// Only quote, backslash and control characters below U+0020 are escaped.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c == '\b':
			buf.WriteString(`\b`)
		case c == '\f':
			buf.WriteString(`\f`)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xf])
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}

// compareKeysRFC8785 compares strings by UTF-16 code units as RFC 8785
// requires. Go's native string order is UTF-8 and differs above U+FFFF.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
