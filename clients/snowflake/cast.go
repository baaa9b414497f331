package snowflake

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/artie-labs/tenantsync/clients/snowflake/dialect"
)

const timestampNTZLayout = "2006-01-02 15:04:05.999999999"

// castColValStaging converts a batch value into the string written to the staging file.
func castColValStaging(colVal any) string {
	switch castedColVal := colVal.(type) {
	case nil:
		// Needs to match NULL_IF(...) from [dialect.SnowflakeDialect.BuildCreateTableQuery]
		return dialect.NullValuePlaceholder
	case string:
		return castedColVal
	case []byte:
		return string(castedColVal)
	case int:
		return strconv.Itoa(castedColVal)
	case int32:
		return strconv.FormatInt(int64(castedColVal), 10)
	case int64:
		return strconv.FormatInt(castedColVal, 10)
	case float32:
		return strconv.FormatFloat(float64(castedColVal), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(castedColVal, 'f', -1, 64)
	case *apd.Decimal:
		return castedColVal.Text('f')
	case bool:
		return strconv.FormatBool(castedColVal)
	case time.Time:
		return castedColVal.Format(timestampNTZLayout)
	default:
		return fmt.Sprint(castedColVal)
	}
}
