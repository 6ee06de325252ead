// Package convert provides value converters for the selector pipeline.
// A converter turns the extracted string form of a value into a typed one;
// selectors apply it as the final step before assignment, and invoke it with
// an empty string when nothing was selected so a default can be produced.
package convert

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Converter transforms an extracted string into a typed value. An empty
// input yields the converter's default value instead of an error.
type Converter func(string) (any, error)

// DefaultTimeLayout is the layout used by Time when none is given.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// defaultTrueValues are the literals Bool recognizes as true.
var defaultTrueValues = []string{"true", "1", "y", "yes", "on", "t"}

// Int parses base-10 integers. An empty input yields def when given, nil
// otherwise.
func Int(def ...int) Converter {
	return func(s string) (any, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			if len(def) > 0 {
				return def[0], nil
			}
			return nil, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("convert %q to int: %w", s, err)
		}
		return n, nil
	}
}

// Float parses decimal numbers. An empty input yields def when given, nil
// otherwise.
func Float(def ...float64) Converter {
	return func(s string) (any, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			if len(def) > 0 {
				return def[0], nil
			}
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("convert %q to float: %w", s, err)
		}
		return f, nil
	}
}

// Bool reports whether the value is one of the recognized true literals,
// comparing case-insensitively. Without arguments the literals are "true",
// "1", "y", "yes", "on" and "t". An empty input yields nil.
func Bool(trueValues ...string) Converter {
	literals := trueValues
	if len(literals) == 0 {
		literals = defaultTrueValues
	}
	return func(s string) (any, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		lower := strings.ToLower(s)
		for _, lit := range literals {
			if lower == lit {
				return true, nil
			}
		}
		return false, nil
	}
}

// Time parses timestamps using the given layout, or DefaultTimeLayout when
// layout is empty. An empty input yields def when given, nil otherwise.
func Time(layout string, def ...time.Time) Converter {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return func(s string) (any, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			if len(def) > 0 {
				return def[0], nil
			}
			return nil, nil
		}
		ts, err := time.Parse(layout, s)
		if err != nil {
			return nil, fmt.Errorf("convert %q to time: %w", s, err)
		}
		return ts, nil
	}
}
