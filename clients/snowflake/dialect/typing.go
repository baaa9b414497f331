package dialect

import (
	"fmt"

	"github.com/artie-labs/tenantsync/lib/batch"
)

// Snowflake caps NUMBER at a precision of 38.
const maxScale = 37

func (SnowflakeDialect) DataTypeForKind(kindDetails batch.KindDetails) string {
	switch kindDetails.Kind {
	case batch.Integer:
		return "int"
	case batch.Float:
		return "float"
	case batch.Decimal:
		return fmt.Sprintf("number(38, %d)", min(max(kindDetails.Scale, 0), maxScale))
	case batch.Boolean:
		return "boolean"
	case batch.Timestamp:
		return "timestamp_ntz"
	default:
		// Columns without any values end up as strings, same as mixed columns.
		return "string"
	}
}
