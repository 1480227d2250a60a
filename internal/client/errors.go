/*
Package client
File: errors.go
Description:
    Sentinel errors returned by the core, and the mapping from
    collaborator procedure codes onto them.
*/

package client

import (
	"errors"
	"fmt"

	"github.com/everforgeworks/galaxies-client/internal/store"
)

// Invalid local input. Rejected before any remote call.
var ErrInvalidInput = errors.New("invalid input")

// Precondition failures. Rejected after a read, before any mutating call.
var (
	ErrAlreadyTraveling    = errors.New("already traveling")
	ErrInsufficientBattery = errors.New("insufficient battery")
	ErrNoFreeSpot          = errors.New("no free spot near destination")
	ErrOutOfRange          = errors.New("out of reach")
	ErrLevelTooLow         = errors.New("level too low")
	ErrDepleted            = errors.New("object has no resources left")
	ErrNoMiningGear        = errors.New("mining gear required")
	ErrTooFar              = errors.New("too far from node")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInsufficientItems   = errors.New("insufficient items")
)

// Depleted or contended resources. Expected and recoverable.
var (
	ErrCargoFull = errors.New("cargo hold is full")
	ErrNodeEmpty = errors.New("node is empty")
)

// Session state.
var (
	ErrNoSession   = errors.New("no active session")
	ErrNoCharacter = errors.New("no character for this account")
	ErrNotLoaded   = errors.New("session not loaded")
	ErrNoScene     = errors.New("not landed on a planet")
	ErrClosed      = errors.New("loop closed")
)

// codeErrors maps procedure refusal codes onto the local taxonomy.
var codeErrors = map[string]error{
	store.CodeCargoFull:           ErrCargoFull,
	store.CodeNodeEmpty:           ErrNodeEmpty,
	store.CodeInsufficientBattery: ErrInsufficientBattery,
	store.CodeAlreadyTraveling:    ErrAlreadyTraveling,
	store.CodeInsufficientCredits: ErrInsufficientCredits,
	store.CodeInsufficientItems:   ErrInsufficientItems,
	store.CodeInvalid:             ErrInvalidInput,
}

// remoteErr wraps a collaborator failure for op, keeping the original in the chain
// and adding the matching sentinel when the failure carries a known code.
func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if sentinel, ok := codeErrors[store.CodeOf(err)]; ok {
		return fmt.Errorf("%s: %w: %w", op, sentinel, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
