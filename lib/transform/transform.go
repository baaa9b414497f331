package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/zeebo/xxh3"

	"github.com/artie-labs/tenantsync/lib/batch"
)

const fieldSeparator = '\x1f'

type Report struct {
	DroppedColumns []string
	DroppedRows    int
}

// Clean trims and upper-cases column names, keeps the first of any columns that now share a name and drops rows that
// are exact duplicates of an earlier row.
func Clean(b *batch.Batch) (*batch.Batch, Report) {
	var report Report
	var keep []int
	seen := make(map[string]bool)
	for i, column := range b.Columns() {
		name := strings.ToUpper(strings.TrimSpace(column))
		if seen[name] {
			report.DroppedColumns = append(report.DroppedColumns, column)
			continue
		}
		seen[name] = true
		keep = append(keep, i)
	}

	out := b.SelectColumns(keep)
	out.RenameColumns(func(column string) string { return strings.ToUpper(strings.TrimSpace(column)) })

	hashes := make(map[xxh3.Uint128]bool, out.NumRows())
	before := out.NumRows()
	out.FilterRows(func(row []any) bool {
		hash := hashRow(row)
		if hashes[hash] {
			return false
		}
		hashes[hash] = true
		return true
	})

	report.DroppedRows = before - out.NumRows()
	return out, report
}

func hashRow(row []any) xxh3.Uint128 {
	var sb strings.Builder
	for _, value := range row {
		sb.WriteString(encode(value))
		sb.WriteByte(fieldSeparator)
	}
	return xxh3.HashString128(sb.String())
}

// encode prefixes a type tag so that 1 and "1" are different values.
func encode(value any) string {
	switch castedValue := value.(type) {
	case nil:
		return "n"
	case string:
		return "s" + castedValue
	case []byte:
		return "b" + string(castedValue)
	case int:
		return "i" + strconv.Itoa(castedValue)
	case int64:
		return "i" + strconv.FormatInt(castedValue, 10)
	case float64:
		return "f" + strconv.FormatFloat(castedValue, 'g', -1, 64)
	case *apd.Decimal:
		return "d" + castedValue.String()
	case bool:
		return "t" + strconv.FormatBool(castedValue)
	case time.Time:
		return "T" + castedValue.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%T%v", castedValue, castedValue)
	}
}
