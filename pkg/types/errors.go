package types

import "errors"

var (
	// ErrLockdown is returned by value moving actions once a lockdown has been triggered
	ErrLockdown = errors.New("bridge is in lockdown")
	// ErrConsistency reports a settled transfer whose amount does not match its origin
	ErrConsistency        = errors.New("bridge consistency violation")
	ErrInvalidDestination = errors.New("invalid destination address")
	ErrNotRequest         = errors.New("extrinsic is not a bridge request")
)

// IsFatal tells whether err must stop the relay loop
func IsFatal(err error) bool {
	return errors.Is(err, ErrConsistency) || errors.Is(err, ErrLockdown)
}
