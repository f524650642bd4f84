package entity

import (
	"encoding/json"
	"fmt"
)

// ValueKind identifies which variant of Value is populated.
type ValueKind string

const (
	KindString       ValueKind = "string"
	KindInt          ValueKind = "int"
	KindBool         ValueKind = "bool"
	KindListOfString ValueKind = "list"
	KindMapping      ValueKind = "map"
)

// Value is a small tagged-value variant used for adapter-produced metadata.
// Free-form string-to-object metadata (the teacher's map[string]any pattern in
// domain.Node.Discovered) is avoided here in favor of a total, comparable,
// JSON-round-trippable representation.
type Value struct {
	Kind ValueKind
	Str  string
	Int  int64
	Bool bool
	List []string
	Map  map[string]string
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func List(l []string) Value {
	cp := make([]string, len(l))
	copy(cp, l)
	return Value{Kind: KindListOfString, List: cp}
}
func Mapping(m map[string]string) Value {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{Kind: KindMapping, Map: cp}
}

// AsString returns the string form regardless of kind, for display/logging.
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindListOfString:
		return fmt.Sprintf("%v", v.List)
	case KindMapping:
		return fmt.Sprintf("%v", v.Map)
	default:
		return ""
	}
}

// Equal reports whether two values are identical in kind and content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindInt:
		return v.Int == other.Int
	case KindBool:
		return v.Bool == other.Bool
	case KindListOfString:
		if len(v.List) != len(other.List) {
			return false
		}
		seen := make(map[string]int, len(v.List))
		for _, s := range v.List {
			seen[s]++
		}
		for _, s := range other.List {
			seen[s]--
		}
		for _, c := range seen {
			if c != 0 {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for k, val := range v.Map {
			if other.Map[k] != val {
				return false
			}
		}
		return true
	}
	return false
}

type jsonValue struct {
	Kind ValueKind         `json:"kind"`
	Str  string            `json:"str,omitempty"`
	Int  int64             `json:"int,omitempty"`
	Bool bool              `json:"bool,omitempty"`
	List []string          `json:"list,omitempty"`
	Map  map[string]string `json:"map,omitempty"`
}

// MarshalJSON renders the active variant only, tagged by kind.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValue{
		Kind: v.Kind, Str: v.Str, Int: v.Int, Bool: v.Bool, List: v.List, Map: v.Map,
	})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	v.Kind, v.Str, v.Int, v.Bool, v.List, v.Map = jv.Kind, jv.Str, jv.Int, jv.Bool, jv.List, jv.Map
	return nil
}

// Metadata is the adapter-extensible string-to-Value map attached to an Entity.
type Metadata map[string]Value

// Clone returns a deep copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetString returns the string form of a key, or "" if absent.
func (m Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	return v.AsString()
}
