package allocation

import "github.com/pkg/errors"

var (
	// ErrLifetimeZero is returned when an allocation is requested with a zero lifetime
	ErrLifetimeZero = errors.New("allocations must not be created with a lifetime of 0")

	// ErrDupeFiveTuple is returned when the five-tuple is already allocated
	ErrDupeFiveTuple = errors.New("allocation attempted with duplicate five-tuple")

	// ErrClosed is returned when closing an already-closed allocation
	ErrClosed = errors.New("allocation is closed")

	errNilFiveTuple         = errors.New("allocations must not be created with nil five-tuple")
	errNilFiveTupleSrc      = errors.New("allocations must not be created with nil five-tuple source address")
	errNilFiveTupleDst      = errors.New("allocations must not be created with nil five-tuple destination address")
	errNilTurnSocket        = errors.New("allocations must not be created with nil turn socket")
	errSameChannelNumber    = errors.New("you cannot use the same channel number with different peer")
	errSamePeerAddress      = errors.New("you cannot use the same peer with different channel number")
	errInvalidChannelNumber = errors.New("channel number not in the valid range")
)
