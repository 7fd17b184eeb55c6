package rotation

import (
	"errors"
	"fmt"
)

var (
	// ErrNoNodes means the controller offered no eligible node to switch to.
	ErrNoNodes = errors.New("rotation: no eligible nodes")
	// ErrNoController means no external controller is configured.
	ErrNoController = errors.New("rotation: no controller configured")
	// ErrUnverified means the switch was issued but could not be confirmed.
	ErrUnverified = errors.New("rotation: switch not confirmed")
	// ErrBlocked matches any *BlockedError with errors.Is.
	ErrBlocked = errors.New("rotation: identity blocked")
)

// BlockedError is the fatal condition raised when the remote service keeps
// refusing queries after a rotation. It is not retryable.
type BlockedError struct {
	// Source names the block indicator that matched.
	Source string
	// Node is the egress node in use when the block persisted, if known.
	Node string
	// Cause is set when the rotation itself could not be carried out.
	Cause error
}

func (e *BlockedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rotation: identity blocked (%s), rotation impossible: %v", e.Source, e.Cause)
	}
	return fmt.Sprintf("rotation: identity blocked (%s) on node %q after rotation", e.Source, e.Node)
}

func (e *BlockedError) Unwrap() error { return e.Cause }

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }
