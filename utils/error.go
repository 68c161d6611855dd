package utils

import "errors"

// Sentinel errors shared by the entry-point guards so callers can branch with
// errors.Is instead of matching message text.
var (
	ErrorRecordNotFound         = errors.New("record not found")
	ErrorOrganizationIdRequired = errors.New("organization id is required")
	ErrorDBNotInitialized       = errors.New("database not initialized")
)
