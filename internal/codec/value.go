// Package codec converts between loosely typed protobuf Struct values and the domain records.
// Keys are matched case-insensitively, ignoring '_' and '-'. Missing or unparseable values
// read as zero, and keys that are not part of a record are kept as passthrough fields.
package codec

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// normalizeKey folds a field name so that "packets_per_second", "PacketsPerSecond" and
// "packetsPerSecond" compare equal.
func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

func toFloat(v *structpb.Value) float64 {
	if v == nil {
		return 0
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	case *structpb.Value_StringValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(k.StringValue), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	case *structpb.Value_BoolValue:
		if k.BoolValue {
			return 1
		}
	}
	return 0
}

func toInt(v *structpb.Value) int {
	f := toFloat(v)
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

func toInt64(v *structpb.Value) int64 {
	f := toFloat(v)
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

func toBool(v *structpb.Value) bool {
	if v == nil {
		return false
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_NumberValue:
		return k.NumberValue != 0
	case *structpb.Value_StringValue:
		b, err := strconv.ParseBool(strings.TrimSpace(k.StringValue))
		return err == nil && b
	}
	return false
}

func toString(v *structpb.Value) string {
	if v == nil {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	}
	return ""
}

func toStrings(v *structpb.Value) []string {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_ListValue:
		out := make([]string, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case *structpb.Value_StringValue:
		var out []string
		for _, s := range strings.Split(k.StringValue, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringList(items []string) *structpb.Value {
	values := make([]*structpb.Value, len(items))
	for i, s := range items {
		values[i] = structpb.NewStringValue(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// keySet groups the keys of a Struct by their normalized form. Lookups consume keys, and
// whatever is left over after decoding is the passthrough set.
type keySet struct {
	values map[string]*structpb.Value
	byName map[string][]string
	taken  map[string]bool
}

func indexFields(s *structpb.Struct) *keySet {
	f := &keySet{
		values: s.GetFields(),
		byName: make(map[string][]string, len(s.GetFields())),
		taken:  make(map[string]bool, len(s.GetFields())),
	}
	for key := range f.values {
		n := normalizeKey(key)
		f.byName[n] = append(f.byName[n], key)
	}
	for _, keys := range f.byName {
		slices.Sort(keys)
	}
	return f
}

// take returns the value of the first name present, in the order given. When several keys
// fold to that name the lexically smallest one wins. Only the winning key is consumed.
func (f *keySet) take(names ...string) (*structpb.Value, bool) {
	for _, n := range names {
		if keys := f.byName[n]; len(keys) > 0 {
			f.taken[keys[0]] = true
			return f.values[keys[0]], true
		}
	}
	return nil, false
}

// drop consumes every key that folds to one of names.
func (f *keySet) drop(names ...string) {
	for _, n := range names {
		for _, key := range f.byName[n] {
			f.taken[key] = true
		}
	}
}

// rest returns the keys that were not consumed, or nil.
func (f *keySet) rest() map[string]any {
	var out map[string]any
	for key, v := range f.values {
		if f.taken[key] {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[key] = v.AsInterface()
	}
	return out
}
