package sanitize

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/artie-labs/tenantsync/lib/batch"
)

// nullSentinels are the (lowercase, trimmed) spellings that mean "no value" in upstream extracts.
var nullSentinels = map[string]bool{
	"":          true,
	"nan":       true,
	"none":      true,
	"null":      true,
	"na":        true,
	"n/a":       true,
	"n-a":       true,
	"nat":       true,
	"natt":      true,
	"<na>":      true,
	"inf":       true,
	"+inf":      true,
	"-inf":      true,
	"infinity":  true,
	"+infinity": true,
	"-infinity": true,
}

func IsNullSentinel(value string) bool {
	return nullSentinels[strings.ToLower(strings.TrimSpace(value))]
}

type ColumnReport struct {
	Column  string
	Numeric bool
	Nulls   int
}

type Report struct {
	Columns           []ColumnReport
	DroppedDuplicates []string
}

func (r Report) TotalNulls() int {
	var total int
	for _, col := range r.Columns {
		total += col.Nulls
	}
	return total
}

type valueClass int

const (
	classNull valueClass = iota
	classNumber
	// classNumericText is text that [ParseNumber] accepts.
	classNumericText
	classText
	classOther
)

// Sanitize returns a copy of [b] with null-like sentinels replaced by nil, duplicate columns removed and
// numeric columns coerced into finite numbers. It never fails: uninterpretable cells become nil.
func Sanitize(b *batch.Batch) (*batch.Batch, Report) {
	var report Report
	var keep []int
	seen := make(map[string]bool)
	for i, col := range b.Columns() {
		key := strings.ToUpper(col)
		if seen[key] {
			report.DroppedDuplicates = append(report.DroppedDuplicates, col)
			continue
		}
		seen[key] = true
		keep = append(keep, i)
	}

	out := b.SelectColumns(keep)
	for idx, col := range out.Columns() {
		values, numeric := sanitizeColumn(out.Column(idx))
		// Lengths always match since [values] is derived from the same column.
		_ = out.SetColumn(idx, values)

		var nulls int
		for _, value := range values {
			if value == nil {
				nulls++
			}
		}

		report.Columns = append(report.Columns, ColumnReport{Column: col, Numeric: numeric, Nulls: nulls})
	}

	return out, report
}

func sanitizeColumn(values []any) ([]any, bool) {
	out := make([]any, len(values))
	classes := make([]valueClass, len(values))
	var numbers, others int
	for i, value := range values {
		out[i], classes[i] = sanitizeValue(value)
		switch classes[i] {
		case classNumber, classNumericText:
			numbers++
		case classText, classOther:
			others++
		}
	}

	// A single non-numeric cell keeps the whole column as is.
	if numbers == 0 || others > 0 {
		return out, false
	}

	for i, class := range classes {
		if class == classNumericText {
			out[i] = ParseNumber(out[i].(string))
		}
	}

	return out, true
}

func sanitizeValue(value any) (any, valueClass) {
	switch castedValue := value.(type) {
	case nil:
		return nil, classNull
	case string:
		return sanitizeText(castedValue)
	case []byte:
		// Drivers such as go-mssqldb hand back DECIMAL and MONEY columns as raw bytes.
		return sanitizeText(string(castedValue))
	case int:
		return int64(castedValue), classNumber
	case int8:
		return int64(castedValue), classNumber
	case int16:
		return int64(castedValue), classNumber
	case int32:
		return int64(castedValue), classNumber
	case int64:
		return castedValue, classNumber
	case uint8:
		return int64(castedValue), classNumber
	case uint16:
		return int64(castedValue), classNumber
	case uint32:
		return int64(castedValue), classNumber
	case float32:
		return finiteFloat(float64(castedValue))
	case float64:
		return finiteFloat(castedValue)
	case *apd.Decimal:
		if castedValue == nil || castedValue.Form != apd.Finite {
			return nil, classNull
		}
		return castedValue, classNumber
	default:
		return value, classOther
	}
}

func sanitizeText(value string) (any, valueClass) {
	if IsNullSentinel(value) {
		return nil, classNull
	}
	if ParseNumber(value) != nil {
		return value, classNumericText
	}
	return value, classText
}

func finiteFloat(value float64) (any, valueClass) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, classNull
	}
	return value, classNumber
}

// ParseNumber parses [value] as an int64 when it is integral and fits, otherwise as a decimal.
// It returns nil when [value] is not a finite number.
func ParseNumber(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}

	decimal, _, err := apd.NewFromString(trimmed)
	if err != nil || decimal.Form != apd.Finite {
		return nil
	}

	return decimal
}
