package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode marks a ledger whose structure could not be decoded.
	ErrDecode = errors.New("ledger decode failed")
	// ErrIntegrity marks a payload whose checksum or authentication tag does not verify.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrInvariantViolation marks losses plus surplus exceeding production.
	ErrInvariantViolation = errors.New("losses and surplus exceed production")
	// ErrStorageUnavailable marks an inaccessible disk location or key store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidSlot marks a slot index outside 1..MaxSlots.
	ErrInvalidSlot = errors.New("invalid production slot")
	// ErrSlotAlreadyFilled marks an attempt to refill a confirmed slot.
	ErrSlotAlreadyFilled = errors.New("production slot already filled")
	// ErrUnknownProduct marks a product missing from the day's catalog.
	ErrUnknownProduct = errors.New("unknown product")
)

// InvariantViolation describes a rejected losses/surplus mutation.
type InvariantViolation struct {
	Product  string
	Losses   int
	Surplus  int
	Produced int
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: losses %d + surplus %d exceed produced %d", e.Product, e.Losses, e.Surplus, e.Produced)
}

// Is lets errors.Is match ErrInvariantViolation.
func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

// Violations extracts every InvariantViolation wrapped or joined inside err.
func Violations(err error) []*InvariantViolation {
	switch e := err.(type) {
	case nil:
		return nil
	case *InvariantViolation:
		return []*InvariantViolation{e}
	case interface{ Unwrap() []error }:
		var out []*InvariantViolation
		for _, inner := range e.Unwrap() {
			out = append(out, Violations(inner)...)
		}
		return out
	default:
		return Violations(errors.Unwrap(err))
	}
}
