package dialect

import (
	"fmt"
	"strings"

	"github.com/artie-labs/tenantsync/lib/sql"
)

var _dialect = SnowflakeDialect{}

type TableIdentifier struct {
	database string
	schema   string
	table    string
}

func NewTableIdentifier(database, schema, table string) TableIdentifier {
	return TableIdentifier{
		database: database,
		schema:   schema,
		table:    table,
	}
}

func (ti TableIdentifier) Database() string {
	return ti.database
}

func (ti TableIdentifier) Schema() string {
	return ti.schema
}

func (ti TableIdentifier) EscapedTable() string {
	return _dialect.QuoteIdentifier(ti.table)
}

func (ti TableIdentifier) Table() string {
	return ti.table
}

func (ti TableIdentifier) WithTable(table string) sql.TableIdentifier {
	return NewTableIdentifier(ti.database, ti.schema, table)
}

func (ti TableIdentifier) FullyQualifiedName() string {
	return fmt.Sprintf("%s.%s.%s", _dialect.QuoteIdentifier(ti.database), _dialect.QuoteIdentifier(ti.schema), ti.EscapedTable())
}

// StagingFileName is the name of the gzipped file that is PUT into the table stage.
func (ti TableIdentifier) StagingFileName() string {
	return strings.ToLower(fmt.Sprintf("%s_%s_%s.csv.gz", ti.database, ti.schema, ti.table))
}
