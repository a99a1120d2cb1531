package store

import (
	"errors"
	"fmt"
)

// ErrNotFound the device document does not exist yet
var ErrNotFound = errors.New("device state not found")

// ConnectivityError the Redis channel could not be used; not retried here
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("store %s: connectivity error: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is or wraps a ConnectivityError
func IsConnectivity(err error) bool {
	var cerr *ConnectivityError
	return errors.As(err, &cerr)
}

func connectivity(op string, err error) error {
	return &ConnectivityError{Op: op, Err: err}
}
