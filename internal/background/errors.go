package background

import "fmt"

// unavailableError signals that no background transport exists on this
// platform/build. Mapped to 503 by the HTTP layer.
type unavailableError struct{}

func (unavailableError) Error() string {
	return "background downloads not available on this platform"
}

// ErrUnavailable constructs the capability-missing error.
func ErrUnavailable() error { return unavailableError{} }

// IsUnavailable reports whether err indicates a missing background transport.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}

// downloadNotFoundError signals an unknown transport download id.
type downloadNotFoundError struct{ id int64 }

func (e downloadNotFoundError) Error() string {
	return fmt.Sprintf("background download %d not found", e.id)
}

// ErrDownloadNotFound constructs a not-found error for a transport id.
func ErrDownloadNotFound(id int64) error { return downloadNotFoundError{id: id} }

// IsDownloadNotFound reports whether err indicates an unknown download id.
func IsDownloadNotFound(err error) bool {
	_, ok := err.(downloadNotFoundError)
	return ok
}

// notCompletedError signals a move requested before the download finished.
type notCompletedError struct{ id int64 }

func (e notCompletedError) Error() string {
	return fmt.Sprintf("background download %d is not completed", e.id)
}

// IsNotCompleted reports whether err indicates a premature move request.
func IsNotCompleted(err error) bool {
	_, ok := err.(notCompletedError)
	return ok
}
