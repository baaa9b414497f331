package sql

import "github.com/artie-labs/tenantsync/lib/batch"

type TableIdentifier interface {
	Database() string
	Schema() string
	EscapedTable() string
	Table() string
	WithTable(table string) TableIdentifier
	FullyQualifiedName() string
}

type Dialect interface {
	QuoteIdentifier(identifier string) string
	DataTypeForKind(kd batch.KindDetails) string
	IsColumnAlreadyExistsErr(err error) bool
	IsTableDoesNotExistErr(err error) bool
}

func QuoteIdentifiers(identifiers []string, dialect Dialect) []string {
	result := make([]string, len(identifiers))
	for i, identifier := range identifiers {
		result[i] = dialect.QuoteIdentifier(identifier)
	}
	return result
}
