// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Download failed: The INSEE archive could not be downloaded
//	         Action: Check the source URL and try again later
//	         Matches: ErrTransportFailure
//
// # Archive Errors (ARC001-ARC099)
//
//	ARC001 - No data file: The archive holds no .csv or .txt file
//	         Action: The source format may have changed; check the source URL
//	         Matches: ErrArchiveEntryNotFound, "zip: not a valid zip file"
//
// # Parse Errors (PRS001-PRS099)
//
//	PRS001 - Invalid CSV format: No usable rows were found in the data file
//	         Matches: ErrEmptyResult
//
//	PRS002 - No year columns: No four-digit year column was found in the header
//	         Matches: ErrNoYearColumns
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Storage failure: The database rejected the operation
//	         Matches: ErrStorageFailure (when no more specific pattern applies)
//
//	STO002 - Connection refused: Unable to connect to database
//	         Patterns: "connection refused"
//
//	STO003 - Connection reset: Database connection was interrupted
//	         Patterns: "connection reset"
//
//	STO004 - Deadlock: Database was busy with conflicting operations
//	         Patterns: "deadlock"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - System busy: Too many exports in progress
//	         Matches: ErrTooManyExports
//
//	EXP002 - Unsupported format: The requested export format is not csv or xlsx
//	         Matches: ErrUnsupportedFormat
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled: "context canceled"
//	REQ002 - Request timeout: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific sentinel or pattern matches.
//
// # Matching Order
//
// Connection patterns are checked first so a storage failure caused by a dead
// connection reports the more precise code. Sentinels are then matched with
// errors.Is, and the remaining patterns case-insensitively with strings.Contains.

package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// sentinelMessage maps a sentinel error to its user message.
type sentinelMessage struct {
	err error
	msg UserMessage
}

// connectionPatterns are matched before sentinels.
var connectionPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "STO002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "STO003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "STO004",
		},
	},
}

var sentinelMessages = []sentinelMessage{
	{
		err: ErrTransportFailure,
		msg: UserMessage{
			Message: "Failed to fetch ZIP from INSEE",
			Action:  "Check the source URL and try again later",
			Code:    "SRC001",
		},
	},
	{
		err: ErrArchiveEntryNotFound,
		msg: UserMessage{
			Message: "No CSV file found in ZIP archive",
			Action:  "The source format may have changed; check the source URL",
			Code:    "ARC001",
		},
	},
	{
		err: ErrEmptyResult,
		msg: UserMessage{
			Message: "Invalid CSV format",
			Action:  "The data file contained no usable rows",
			Code:    "PRS001",
		},
	},
	{
		err: ErrNoYearColumns,
		msg: UserMessage{
			Message: "No year columns found in CSV",
			Action:  "The source layout may have changed; check the source URL",
			Code:    "PRS002",
		},
	},
	{
		err: ErrTooManyExports,
		msg: UserMessage{
			Message: "System is busy processing other exports",
			Action:  "Please wait a moment and try again",
			Code:    "EXP001",
		},
	},
	{
		err: ErrUnsupportedFormat,
		msg: UserMessage{
			Message: "Unsupported export format",
			Action:  "Use format=csv or format=xlsx",
			Code:    "EXP002",
		},
	},
	{
		err: ErrStorageFailure,
		msg: UserMessage{
			Message: "The database rejected the operation",
			Action:  "Please try again; the dataset may be empty until the next successful refresh",
			Code:    "STO001",
		},
	},
}

// errorPatterns are matched after sentinels. The first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "not a valid zip file",
		msg: UserMessage{
			Message: "No CSV file found in ZIP archive",
			Action:  "The source format may have changed; check the source URL",
			Code:    "ARC001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "The source may be slow; try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
// Support staff should check application logs for the original technical
// error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(fmt.Errorf("fetch: %w", ErrTransportFailure))
//	// msg.Code == "SRC001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range connectionPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
