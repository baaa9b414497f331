package dates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Class is the encoding detected for a date column, decided from a single sample value.
type Class string

const (
	// Empty means the column has no values to inspect.
	Empty Class = "empty"
	// NonPositive means the sample was zero or negative, the whole column is discarded.
	NonPositive      Class = "non_positive"
	NanosecondEpoch  Class = "nanosecond_epoch"
	MillisecondEpoch Class = "millisecond_epoch"
	SecondEpoch      Class = "second_epoch"
	CompactDate      Class = "compact_yyyymmdd"
	Generic          Class = "generic"
)

// These boundaries are shared with data that has already been classified, do not change them.
const (
	nanosecondThreshold  = 1e15
	millisecondThreshold = 1e12
	secondThreshold      = 1e9
	compactDateMin       = 19000000
	compactDateMax       = 21001231
)

const (
	// OutputLayout is the canonical calendar date representation written to the warehouse.
	OutputLayout = "2006-01-02"
	compactLayout = "20060102"
)

// genericLayouts are tried in order. Day-first is preferred over month-first for slashed dates as the
// upstream sources are French.
var genericLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	OutputLayout,
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	compactLayout,
	"20060102150405",
	time.RFC1123Z,
	time.RFC1123,
	time.ANSIC,
	"Jan 2 2006 3:04PM",
	"Jan 2 2006",
}

// Classify inspects a representative, non-nil value of a column.
func Classify(sample any) Class {
	if sample == nil {
		return Empty
	}

	magnitude, ok := numericValue(sample)
	if !ok {
		return Generic
	}

	switch {
	case magnitude <= 0:
		return NonPositive
	case magnitude >= nanosecondThreshold:
		return NanosecondEpoch
	case magnitude >= millisecondThreshold:
		return MillisecondEpoch
	case magnitude >= secondThreshold:
		return SecondEpoch
	case magnitude >= compactDateMin && magnitude <= compactDateMax:
		return CompactDate
	default:
		return Generic
	}
}

// Convert reinterprets [value] under [class] and returns it formatted as YYYY-MM-DD.
// The boolean is false when the value cannot be parsed or lands outside of a representable calendar date.
func Convert(value any, class Class) (string, bool) {
	if value == nil {
		return "", false
	}

	var ts time.Time
	var err error
	switch class {
	case Empty, NonPositive:
		return "", false
	case NanosecondEpoch:
		ts, err = fromNanoseconds(value)
	case MillisecondEpoch:
		ts, err = fromEpoch(value, 1e3)
	case SecondEpoch:
		ts, err = fromEpoch(value, 1)
	case CompactDate:
		ts, err = fromCompact(value)
	case Generic:
		ts, err = parseGeneric(value)
	default:
		err = fmt.Errorf("unsupported class: %q", class)
	}

	if err != nil || !inRange(ts) {
		return "", false
	}

	return ts.Format(OutputLayout), true
}

func inRange(ts time.Time) bool {
	return ts.Year() >= 1 && ts.Year() <= 9999
}

func numericValue(value any) (float64, bool) {
	switch castedValue := value.(type) {
	case int:
		return float64(castedValue), true
	case int32:
		return float64(castedValue), true
	case int64:
		return float64(castedValue), true
	case float32:
		return float64(castedValue), !math.IsNaN(float64(castedValue))
	case float64:
		return castedValue, !math.IsNaN(castedValue)
	case *apd.Decimal:
		if castedValue.Form != apd.Finite {
			return 0, false
		}
		f, err := castedValue.Float64()
		return f, err == nil
	case string:
		return parseNumericText(castedValue)
	case []byte:
		return parseNumericText(string(castedValue))
	default:
		return 0, false
	}
}

func parseNumericText(value string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// fromNanoseconds falls back to scaled seconds and then to a textual parse when the value is not a usable
// nanosecond epoch. Every int64 nanosecond value lands between 1677 and 2262, so the fallbacks only run for values of
// 2^63 and up, where both of them land past year 9999 as well. They are kept so that such values keep failing the
// same way a failed parse does.
func fromNanoseconds(value any) (time.Time, error) {
	f, ok := numericValue(value)
	if !ok {
		return time.Time{}, fmt.Errorf("value %v is not numeric", value)
	}

	if f < math.MaxInt64 {
		if ts := time.Unix(0, int64(f)).UTC(); inRange(ts) {
			return ts, nil
		}
	}

	if ts, err := fromEpoch(f/1e6, 1); err == nil && inRange(ts) {
		return ts, nil
	}

	return parseGeneric(strconv.FormatFloat(f, 'f', -1, 64))
}

func fromEpoch(value any, unitsPerSecond float64) (time.Time, error) {
	f, ok := numericValue(value)
	if !ok {
		return time.Time{}, fmt.Errorf("value %v is not numeric", value)
	}

	seconds := f / unitsPerSecond
	// Beyond this the int64 conversion overflows and the year is not representable anyway.
	if math.Abs(seconds) > 1e13 {
		return time.Time{}, fmt.Errorf("value %v is out of range", value)
	}

	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

func fromCompact(value any) (time.Time, error) {
	f, ok := numericValue(value)
	if !ok {
		return time.Time{}, fmt.Errorf("value %v is not numeric", value)
	}

	if f != math.Trunc(f) {
		return time.Time{}, fmt.Errorf("value %v is not an integer", value)
	}

	return time.Parse(compactLayout, fmt.Sprintf("%08d", int64(f)))
}

func parseGeneric(value any) (time.Time, error) {
	switch castedValue := value.(type) {
	case time.Time:
		return castedValue, nil
	case *time.Time:
		if castedValue == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *castedValue, nil
	case string:
		return parseText(castedValue)
	case []byte:
		return parseText(string(castedValue))
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T for a date", value)
	}
}

func parseText(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range genericLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("failed to parse %q as a date", value)
}
