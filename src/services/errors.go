package services

import "errors"

var (
	// ErrParsingFailed wraps parser failures so handlers can map them to a
	// 422 without inspecting parser internals.
	ErrParsingFailed = errors.New("statement parsing failed")

	// ErrImportInProgress means another import is already running; only one
	// runs at a time.
	ErrImportInProgress = errors.New("an import is already in progress")

	ErrAccountNotFound = errors.New("broker account not found")

	// ErrSessionNotResumable means the session is already in a completed
	// terminal phase.
	ErrSessionNotResumable = errors.New("import session is not resumable")
)
