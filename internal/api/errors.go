package api

import (
	"errors"
	"fmt"
)

// RequestError is a non-2xx response from the server, carrying its
// message when one was provided. It is surfaced to the user once and
// never retried automatically.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed (%d)", e.Status)
}

// IsRequestError reports whether err is a server-side rejection, as
// opposed to a transport failure.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
