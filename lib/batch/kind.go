package batch

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

type Kind string

const (
	Invalid   Kind = "invalid"
	Integer   Kind = "integer"
	Float     Kind = "float"
	Decimal   Kind = "decimal"
	Boolean   Kind = "boolean"
	Timestamp Kind = "timestamp"
	String    Kind = "string"
)

type KindDetails struct {
	Kind Kind
	// Scale is only set for [Decimal] and is the largest number of fractional digits observed.
	Scale int32
}

func kindOf(value any) Kind {
	switch value.(type) {
	case nil:
		return Invalid
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return Integer
	case float32, float64:
		return Float
	case *apd.Decimal:
		return Decimal
	case bool:
		return Boolean
	case time.Time:
		return Timestamp
	default:
		return String
	}
}

// InferKind returns the narrowest kind that can hold every non-nil value of a column.
// Mixed numeric kinds widen to Float or Decimal; anything else mixed becomes String.
// A column without any values is [Invalid].
func InferKind(values []any) KindDetails {
	details := KindDetails{Kind: Invalid}
	for _, value := range values {
		kind := kindOf(value)
		if kind == Invalid {
			continue
		}

		if dec, ok := value.(*apd.Decimal); ok && dec.Exponent < 0 && -dec.Exponent > details.Scale {
			details.Scale = -dec.Exponent
		}

		details.Kind = widen(details.Kind, kind)
	}

	return details
}

func isNumeric(kind Kind) bool {
	return kind == Integer || kind == Float || kind == Decimal
}

func widen(current, next Kind) Kind {
	switch {
	case current == Invalid || current == next:
		return next
	case isNumeric(current) && isNumeric(next):
		if current == Decimal || next == Decimal {
			return Decimal
		}
		return Float
	default:
		return String
	}
}
