package models

import "fmt"

// ParseError records one statement row that could not be parsed. Bad rows
// are collected and skipped, never fatal.
type ParseError struct {
	Line int
	Raw  string
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// ParseResult holds everything a parser extracted from one statement file.
type ParseResult struct {
	Transactions []RawTransaction
	Errors       []ParseError
}

// Merge appends another file's result, keeping per-file line numbers.
func (r *ParseResult) Merge(other *ParseResult) {
	if other == nil {
		return
	}
	r.Transactions = append(r.Transactions, other.Transactions...)
	r.Errors = append(r.Errors, other.Errors...)
}
