package sql

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	for _, valid := range []string{"DIM_PERSONNEL", "_tmp", "BEE_TEST_01", "col$1", "a"} {
		assert.NoError(t, ValidateIdentifier(valid), valid)
	}

	for _, invalid := range []string{"", "1abc", "dim personnel", `a"b`, "a;DROP TABLE x", "a.b", "é"} {
		err := ValidateIdentifier(invalid)
		var identifierErr InvalidIdentifierError
		assert.True(t, errors.As(err, &identifierErr), invalid)
		assert.Equal(t, invalid, identifierErr.Identifier)
	}

	assert.ErrorContains(t, ValidateIdentifiers("A", "B C"), `invalid identifier: "B C"`)
}

func TestRowsToObjects(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"name", "Kind"}).AddRow("A", "TABLE").AddRow("B", "VIEW"))
	rows, err := db.Query("SELECT")
	assert.NoError(t, err)

	objects, err := RowsToObjects(rows)
	assert.NoError(t, err)
	assert.Equal(t, []map[string]any{{"NAME": "A", "KIND": "TABLE"}, {"NAME": "B", "KIND": "VIEW"}}, objects)
}

func TestRowsToBatchValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME"}).AddRow(int64(1), "a").AddRow(int64(2), nil))
	rows, err := db.Query("SELECT")
	assert.NoError(t, err)

	columns, values, err := RowsToBatchValues(rows)
	assert.NoError(t, err)
	assert.Equal(t, []string{"ID", "NAME"}, columns)
	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), nil}}, values)
}
