package sql

import (
	"fmt"
	"regexp"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// InvalidIdentifierError is returned for table, schema or column names that cannot be safely interpolated into a statement.
type InvalidIdentifierError struct {
	Identifier string
}

func (e InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier: %q", e.Identifier)
}

func ValidateIdentifier(identifier string) error {
	if !identifierRegex.MatchString(identifier) {
		return InvalidIdentifierError{Identifier: identifier}
	}
	return nil
}

func ValidateIdentifiers(identifiers ...string) error {
	for _, identifier := range identifiers {
		if err := ValidateIdentifier(identifier); err != nil {
			return err
		}
	}
	return nil
}

func ValidateTableIdentifier(tableID TableIdentifier) error {
	return ValidateIdentifiers(tableID.Database(), tableID.Schema(), tableID.Table())
}
