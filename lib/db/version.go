package db

import (
	"context"
	"fmt"
	"strings"
)

// RetrieveVersion runs [query], which has to return a single string, and returns the first line of the result.
func RetrieveVersion(ctx context.Context, store Store, query string) (string, error) {
	rows, err := store.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to query version: %w", err)
	}
	defer rows.Close()

	var version string
	if rows.Next() {
		if err = rows.Scan(&version); err != nil {
			return "", fmt.Errorf("failed to scan version: %w", err)
		}
	}

	if err = rows.Err(); err != nil {
		return "", fmt.Errorf("failed to iterate over rows: %w", err)
	}

	if version == "" {
		return "", fmt.Errorf("version query returned nothing")
	}

	line, _, _ := strings.Cut(strings.TrimSpace(version), "\n")
	return strings.TrimSpace(line), nil
}
