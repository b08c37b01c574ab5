package conn

import "errors"

// Errors delivered to request callbacks. Substrate send errors are passed
// through to callbacks unchanged.
var (
	// ErrBadReturnCode reports that a bulk read or write received a response
	// whose return code was not OK. The callback's cmdRC argument carries
	// the offending code.
	ErrBadReturnCode = errors.New("bad response to CMD_READ/CMD_WRITE")

	// ErrTimeout reports that every transmission attempt for a request went
	// unanswered.
	ErrTimeout = errors.New("SCP command timed out")

	// ErrClosed reports that the connection was closed while the request was
	// pending, or that a submission was attempted after Close.
	ErrClosed = errors.New("SCP connection was closed")
)

// ErrName returns a short identifying name for the errors produced by this
// package. Other errors (substrate pass-through) report their own message.
func ErrName(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrBadReturnCode):
		return "EBAD_RC"
	case errors.Is(err, ErrTimeout):
		return "ETIMEOUT"
	case errors.Is(err, ErrClosed):
		return "ECLOSED"
	default:
		return err.Error()
	}
}
