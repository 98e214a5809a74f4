// Package budget counts words in memory content and answers budget questions.
//
// A word is a whitespace-delimited token. Structured values are counted
// recursively: strings by their tokens, every other primitive as one word,
// slices and maps by the sum of their elements (map keys are not counted).
package budget

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// DefaultThreshold is the near-limit fraction used when none is given.
const DefaultThreshold = 0.8

// Counter lets a type report its own word count.
type Counter interface {
	WordCount() int
}

var timeType = reflect.TypeOf(time.Time{})

// Words counts whitespace-delimited tokens in s.
func Words(s string) int {
	return len(strings.Fields(s))
}

// Count returns the word count of content. Count(nil) == 0.
func Count(content any) int {
	if content == nil {
		return 0
	}
	switch v := content.(type) {
	case string:
		return Words(v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return Words(string(v))
		}
		return Count(decoded)
	case Counter:
		return v.WordCount()
	}
	return countValue(reflect.ValueOf(content))
}

func countValue(v reflect.Value) int {
	if !v.IsValid() {
		return 0
	}
	if v.CanInterface() {
		if c, ok := v.Interface().(Counter); ok {
			if v.Kind() == reflect.Pointer && v.IsNil() {
				return 0
			}
			return c.WordCount()
		}
	}

	switch v.Kind() {
	case reflect.String:
		return Words(v.String())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return 0
		}
		return countValue(v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return 0
		}
		total := 0
		for i := 0; i < v.Len(); i++ {
			total += countValue(v.Index(i))
		}
		return total
	case reflect.Map:
		total := 0
		iter := v.MapRange()
		for iter.Next() {
			total += countValue(iter.Value())
		}
		return total
	case reflect.Struct:
		if v.Type() == timeType {
			return 1
		}
		total := 0
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			total += countValue(v.Field(i))
		}
		return total
	default:
		return 0
	}
}

// IsNearLimit reports whether count has reached threshold*budget.
// A non-positive threshold uses DefaultThreshold.
func IsNearLimit(count, budget int, threshold float64) bool {
	if budget <= 0 {
		return count > 0
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return float64(count) >= float64(budget)*threshold
}

// IsOverLimit reports whether count exceeds budget.
func IsOverLimit(count, budget int) bool {
	return count > budget
}

// PercentageUsed returns count as a percentage of budget, rounded to one decimal.
func PercentageUsed(count, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	pct := float64(count) / float64(budget) * 100
	return float64(int(pct*10+0.5)) / 10
}

// Remaining returns the words left before budget, never negative.
func Remaining(count, budget int) int {
	if count >= budget {
		return 0
	}
	return budget - count
}

// Truncate keeps the first maxWords words of s.
func Truncate(s string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) <= maxWords {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:maxWords], " ")
}
