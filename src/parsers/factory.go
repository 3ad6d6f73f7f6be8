package parsers

import (
	"fmt"

	"github.com/username/folioimport/src/parsers/ibkr"
	"github.com/username/folioimport/src/parsers/tastytrade"
)

func GetParser(source string) (Parser, error) {
	switch source {
	case "tastytrade":
		return tastytrade.NewParser(), nil
	case "ibkr":
		return ibkr.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
