package core

import "errors"

// Refresh failures. Each is fatal to the refresh that raised it and is
// returned wrapped with context; match with errors.Is.
var (
	// ErrTransportFailure is returned when the remote fetch does not succeed.
	ErrTransportFailure = errors.New("transport failure")

	// ErrArchiveEntryNotFound is returned when the archive holds no .csv or .txt entry.
	ErrArchiveEntryNotFound = errors.New("archive entry not found")

	// ErrEmptyResult is returned when parsing leaves zero usable rows.
	ErrEmptyResult = errors.New("empty result")

	// ErrNoYearColumns is returned when no header column is a four-digit year.
	ErrNoYearColumns = errors.New("no year columns")

	// ErrStorageFailure is returned when any storage collaborator call fails.
	ErrStorageFailure = errors.New("storage failure")
)

// ErrTooManyExports is returned when all export slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyExports = errors.New("too many concurrent exports, please try again later")

// ErrUnsupportedFormat is returned for an export format other than csv or xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// StorageError wraps a storage collaborator error so that it matches
// ErrStorageFailure while keeping the driver error reachable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// storageErr returns nil if err is nil, otherwise a *StorageError for op.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
