// Package parsers turns broker statement CSV files into broker-neutral raw
// transactions. Each supported broker has its own sub-package; GetParser
// dispatches on the account's broker code.
package parsers

import (
	"io"

	"github.com/username/folioimport/src/models"
)

type Parser interface {
	Parse(file io.Reader) (*models.ParseResult, error)
}
