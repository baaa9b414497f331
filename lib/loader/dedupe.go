package loader

import (
	"fmt"
	"strings"

	"github.com/artie-labs/tenantsync/lib/batch"
)

// dedupeByKeys keeps the last row for every key. Rows with a nil key are kept as is since they never match.
// The merge would otherwise fail on a staged table holding the same key twice.
func dedupeByKeys(b *batch.Batch, keys []string) (*batch.Batch, int) {
	indices := make([]int, len(keys))
	for i, key := range keys {
		indices[i] = b.ColumnIndex(key)
	}

	rows := b.Rows()
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		if key, ok := keyOf(row, indices); ok {
			last[key] = i
		}
	}

	if len(last) == len(rows) {
		return b, 0
	}

	out := b.Clone()
	var position int
	out.FilterRows(func(row []any) bool {
		defer func() { position++ }()
		key, ok := keyOf(row, indices)
		return !ok || last[key] == position
	})

	return out, b.NumRows() - out.NumRows()
}

func keyOf(row []any, indices []int) (string, bool) {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		if row[idx] == nil {
			return "", false
		}
		parts[i] = fmt.Sprintf("%T:%v", row[idx], row[idx])
	}
	return strings.Join(parts, "\x00"), true
}
