package allocation

import (
	"errors"
	"fmt"
)

// Category sentinels. Every specific error below wraps exactly one of them.
var (
	ErrNotFound          = errors.New("not found")
	ErrCapacityExhausted = errors.New("capacity exhausted")
	ErrInvalidState      = errors.New("invalid token state")
)

var (
	ErrProviderNotFound = fmt.Errorf("doctor %w", ErrNotFound)
	ErrSlotNotFound     = fmt.Errorf("slot %w", ErrNotFound)
	ErrTokenNotFound    = fmt.Errorf("token %w", ErrNotFound)

	ErrNoAvailableSlot = fmt.Errorf("no available slot: %w", ErrCapacityExhausted)
	ErrNoActiveSlot    = fmt.Errorf("no active slot: %w", ErrCapacityExhausted)
	ErrSlotUnavailable = fmt.Errorf("slot unavailable: %w", ErrCapacityExhausted)
)

// Validation errors for malformed input.
var (
	ErrInvalidSource   = errors.New("invalid token source")
	ErrInvalidCapacity = errors.New("invalid slot capacity")
	ErrDuplicateID     = errors.New("duplicate id")
)
