package identity

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Canonicalize resolves a raw object id to the form used for stable
// database lookup: portable ids (ap://did:key:.../...) and their
// server-bound gateway mirror (https://host/.well-known/apgateway/did:key:.../...)
// both canonicalize to the same ap:// string; server-bound ids are returned
// unchanged.
func Canonicalize(rawID string) string {
	if strings.HasPrefix(rawID, "ap://") {
		return rawID
	}
	if idx := strings.Index(rawID, "/.well-known/apgateway/"); idx >= 0 {
		rest := rawID[idx+len("/.well-known/apgateway/"):]
		return "ap://" + rest
	}
	return rawID
}

// JCS canonicalizes v per RFC 8785 (JSON Canonicalization Scheme): object
// keys sorted lexicographically by their UTF-16 code units, no insignificant
// whitespace, numbers in the shortest round-tripping form. No library in
// the retrieved example pack implements JCS, so this is hand-rolled against
// encoding/json (see DESIGN.md).
func JCS(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(normalized)
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: marshaling input: %w", err)
	}
	var generic any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("jcs: decoding for normalization: %w", err)
	}
	return generic, nil
}

func marshalCanonical(v any) ([]byte, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("jcs: invalid number %q: %w", val, err)
		}
		b.WriteString(formatNumber(f, val.String()))
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		b.Write(encoded)
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, b := utf16.Encode([]rune(keys[i])), utf16.Encode([]rune(keys[j]))
			for n := 0; n < len(a) && n < len(b); n++ {
				if a[n] != b[n] {
					return a[n] < b[n]
				}
			}
			return len(a) < len(b)
		})
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(keyJSON)
			b.WriteByte(':')
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("jcs: unsupported type %T", v)
	}
	return nil
}

// formatNumber renders a float in the shortest round-tripping decimal form,
// falling back to the original token for integral values to avoid
// float64 precision loss on large integers.
func formatNumber(f float64, original string) string {
	if f == math.Trunc(f) && !strings.ContainsAny(original, ".eE") {
		return original
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
