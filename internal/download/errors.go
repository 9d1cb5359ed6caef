package download

import "fmt"

// conflictError signals a second download requested for a key already in
// flight.
type conflictError struct{ key string }

func (e conflictError) Error() string { return e.key + " is already being downloaded" }

// ErrAlreadyDownloading constructs a conflict error for a download key.
func ErrAlreadyDownloading(key string) error { return conflictError{key: key} }

// IsConflict reports whether err indicates a duplicate in-flight download.
func IsConflict(err error) bool {
	_, ok := err.(conflictError)
	return ok
}

// transportError carries the non-success HTTP status of a failed transfer.
type transportError struct {
	url    string
	status int
}

func (e transportError) Error() string {
	return fmt.Sprintf("download failed with status %d: %s", e.status, e.url)
}

// StatusCode exposes the transport status for HTTP mapping.
func (e transportError) StatusCode() int { return e.status }

// ErrTransport constructs a transport failure.
func ErrTransport(url string, status int) error { return transportError{url: url, status: status} }

// IsTransportFailure reports whether err is a non-success transfer status.
func IsTransportFailure(err error) bool {
	_, ok := err.(transportError)
	return ok
}
