package coordinator

// blockedError signals an admission refusal for 422 mapping.
type blockedError struct{ msg string }

func (e blockedError) Error() string { return e.msg }

// ErrBlocked constructs an admission-refused error.
func ErrBlocked(msg string) error { return blockedError{msg: msg} }

// IsBlocked reports whether err is an admission refusal.
func IsBlocked(err error) bool {
	_, ok := err.(blockedError)
	return ok
}
