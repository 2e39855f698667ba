package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "transport failure",
			err:         fmt.Errorf("fetch source: %w: status 503", ErrTransportFailure),
			wantCode:    "SRC001",
			wantMessage: "Failed to fetch ZIP from INSEE",
		},
		{
			name:        "missing archive entry",
			err:         fmt.Errorf("extract archive: %w", ErrArchiveEntryNotFound),
			wantCode:    "ARC001",
			wantMessage: "No CSV file found in ZIP archive",
		},
		{
			name:        "corrupt archive",
			err:         errors.New("open archive: zip: not a valid zip file"),
			wantCode:    "ARC001",
			wantMessage: "No CSV file found in ZIP archive",
		},
		{
			name:        "empty result",
			err:         fmt.Errorf("parse data.csv: %w", ErrEmptyResult),
			wantCode:    "PRS001",
			wantMessage: "Invalid CSV format",
		},
		{
			name:        "no year columns",
			err:         fmt.Errorf("parse data.csv: %w", ErrNoYearColumns),
			wantCode:    "PRS002",
			wantMessage: "No year columns found in CSV",
		},
		{
			name:        "storage failure",
			err:         storageErr("insert indices", errors.New("syntax error")),
			wantCode:    "STO001",
			wantMessage: "The database rejected the operation",
		},
		{
			name:        "storage failure from dead connection",
			err:         storageErr("query", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")),
			wantCode:    "STO002",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "too many exports",
			err:         ErrTooManyExports,
			wantCode:    "EXP001",
			wantMessage: "System is busy processing other exports",
		},
		{
			name:        "cancelled request",
			err:         fmt.Errorf("query: %w", context.Canceled),
			wantCode:    "REQ001",
			wantMessage: "Request was cancelled",
		},
		{
			name:        "rate limit",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("Connection Reset by peer"),
			wantCode:    "STO003",
			wantMessage: "Database connection was interrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(fmt.Errorf("parse: %w", ErrNoYearColumns))

	expected := "No year columns found in CSV (Code: PRS002). The source layout may have changed; check the source URL"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "sentinel is user facing", err: ErrEmptyResult, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("unique violation")
	err := storageErr("insert values", cause)

	if !errors.Is(err, ErrStorageFailure) {
		t.Error("storage error should match ErrStorageFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("storage error should match its cause")
	}
	if got, want := err.Error(), "storage failure: insert values: unique violation"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if again := storageErr("replace", err); again != err {
		t.Errorf("storageErr rewrapped an existing storage error: %v", again)
	}
	if storageErr("noop", nil) != nil {
		t.Error("storageErr(nil) should be nil")
	}
}
