package audio

import (
	"errors"
	"fmt"
)

var (
	ErrIncompatibleType        = errors.New("incompatible channel type")
	ErrWouldCreateCycle        = errors.New("link would create a cycle")
	ErrOutOfRange              = errors.New("out of range")
	ErrInvalidTiming           = errors.New("invalid timing")
	ErrStaleHandle             = errors.New("stale handle")
	ErrDuplicateRecallInstance = errors.New("duplicate recall instance")
	ErrRecyclingNotInContext   = errors.New("recycling is not on the context path")
	ErrContextReleased         = errors.New("recycling context released")
)

// LinkError is returned by SetLink.
type LinkError struct {
	Channel ChannelID
	Link    ChannelID
	Err     error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %v -> %v: %v", e.Channel, e.Link, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }
