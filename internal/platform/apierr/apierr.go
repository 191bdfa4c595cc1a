package apierr

import (
	"errors"
	"net/http"
)

// Error attaches an HTTP status and a stable machine code to a cause.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	default:
		return http.StatusText(e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// StatusOf reports the status and code of the first *Error in err's chain.
// ok is false when there is none or it carries no status.
func StatusOf(err error) (status int, code string, ok bool) {
	var ae *Error
	if !errors.As(err, &ae) || ae == nil || ae.Status == 0 {
		return 0, "", false
	}
	return ae.Status, ae.Code, true
}
