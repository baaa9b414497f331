package memory

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
)

func toInt64(value any) (int64, bool) {
	switch castedValue := value.(type) {
	case int:
		return int64(castedValue), true
	case int32:
		return int64(castedValue), true
	case int64:
		return castedValue, true
	case float64:
		if castedValue != math.Trunc(castedValue) || math.Abs(castedValue) >= math.MaxInt64 {
			return 0, false
		}
		return int64(castedValue), true
	case *apd.Decimal:
		i, err := castedValue.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(castedValue, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// normalize renders a value so that equal values of different Go types compare equal.
func normalize(value any) string {
	if i, ok := toInt64(value); ok {
		return strconv.FormatInt(i, 10)
	}

	switch castedValue := value.(type) {
	case *apd.Decimal:
		return castedValue.Text('f')
	case time.Time:
		return castedValue.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(castedValue)
	}
}
