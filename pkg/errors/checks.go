package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err's outermost *Error carries code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports whether err is a VAL_xxx error.
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports whether err is an AUTH_xxx error.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsNotFound reports whether err is an NF_xxx error.
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsConflict reports whether err is a CONF_xxx error.
func IsConflict(err error) bool { return hasCategory(err, "CONF") }

// IsInternal reports whether err is an INT_xxx error.
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsUnavailable reports whether err is an UNAVAIL_xxx error.
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsTimeout reports whether err is a TIMEOUT_xxx error.
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsRetryable reports whether the caller may reasonably resubmit the same
// request later. Only UNAVAIL and TIMEOUT qualify; authentication failures
// never do.
func IsRetryable(err error) bool {
	return IsUnavailable(err) || IsTimeout(err)
}

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	status := e.HTTPStatus()
	return status >= 400 && status < 500
}

// IsServerError reports whether err maps to a 5xx status. A plain error
// outside the taxonomy counts as a server error.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	e, ok := AsError(err)
	if !ok {
		return true
	}
	return e.HTTPStatus() >= 500
}
