package source

import (
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
)

// convertValue turns raw driver bytes into strings, except for decimals which are kept as bytes so that they are
// coerced into numbers later on.
func convertValue(value any, databaseTypeName string) (any, error) {
	raw, ok := value.([]byte)
	if !ok {
		return value, nil
	}

	switch strings.ToUpper(databaseTypeName) {
	case "UNIQUEIDENTIFIER":
		var uid mssql.UniqueIdentifier
		if err := uid.Scan(raw); err != nil {
			return nil, fmt.Errorf("failed to parse uniqueidentifier: %w", err)
		}
		return uid.String(), nil
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return raw, nil
	default:
		return string(raw), nil
	}
}
