package db

import (
	"errors"
	"io"
	"strings"
	"syscall"
)

var retryableErrs = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	io.EOF,
}

// IsRetryableError returns whether [err] is a dropped or refused connection.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	for _, retryableErr := range retryableErrs {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	// Some drivers flatten the underlying syscall error into the message.
	msg := err.Error()
	return strings.Contains(msg, "connection reset by peer") || strings.Contains(msg, "connection refused")
}
