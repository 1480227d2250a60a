/*
Package store
File: store.go
Description:
    The collaborator contract. The client reaches all authoritative state
    through a Backend: session lookup, row reads and writes on named tables,
    and named procedures that apply several mutations as one unit.

    Rows are loosely typed maps because the collaborator may hand back
    nulls, strings or numbers for the same column. Use the coercion
    helpers in coerce.go before doing any math with a field.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Row is one record as returned by (or sent to) the collaborator.
type Row map[string]any

// Filter matches rows by column equality. A nil value matches NULL.
type Filter map[string]any

// Session is an authenticated identity.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Backend is everything the client may ask of the collaborator.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Session returns the active session for token, or nil when there is none.
	Session(ctx context.Context, token string) (*Session, error)

	Select(ctx context.Context, table string, where Filter) ([]Row, error)
	SelectIn(ctx context.Context, table, column string, values []any, where Filter) ([]Row, error)

	// Update writes fields on every row matching where. There is no
	// concurrency token: the last writer wins.
	Update(ctx context.Context, table string, where Filter, fields Row) (int64, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Delete(ctx context.Context, table string, where Filter) (int64, error)

	// Upsert inserts rows, updating the non-key columns when the conflict
	// columns already exist.
	Upsert(ctx context.Context, table string, rows []Row, conflict []string) error

	// Call runs a named atomic procedure.
	Call(ctx context.Context, name string, args Row) (Row, error)
}

// CallRecord is one entry of the procedure log with its arguments unpacked.
type CallRecord struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	CalledAt *time.Time     `json:"called_at"`
	OK       bool           `json:"ok"`
	Args     map[string]any `json:"args"`
}

// CallLog is implemented by collaborators that keep a procedure log.
type CallLog interface {
	RecentCalls(ctx context.Context, limit int) ([]CallRecord, error)
}

// Procedure names understood by the collaborator.
const (
	ProcEnsureSpaceObjects = "ensure_space_objects"
	ProcCollectNode        = "collect_node"
	ProcStartTravel        = "start_travel"
	ProcBuyListing         = "buy_listing"
	ProcSellToMarketShip   = "sell_to_market_ship"
	ProcCreateListing      = "create_listing"
	ProcCancelListing      = "cancel_listing"
)

// Structured procedure failure codes.
const (
	CodeCargoFull           = "cargo_full"
	CodeNodeEmpty           = "node_empty"
	CodeInsufficientBattery = "insufficient_battery"
	CodeAlreadyTraveling    = "already_traveling"
	CodeInsufficientCredits = "insufficient_credits"
	CodeInsufficientItems   = "insufficient_items"
	CodeNotFound            = "not_found"
	CodeForbidden           = "forbidden"
	CodeInvalid             = "invalid"
)

var (
	// ErrUnknownProcedure is returned by Call for names the backend does not serve.
	ErrUnknownProcedure = errors.New("store: unknown procedure")
	// ErrBadIdentifier guards the dynamic SQL against unexpected table or column names.
	ErrBadIdentifier = errors.New("store: bad identifier")
)

// ProcedureError is an expected, structured failure reported by a procedure.
type ProcedureError struct {
	Procedure string
	Code      string
	Message   string
}

func (e *ProcedureError) Error() string {
	if e.Message != "" && e.Message != e.Code {
		return fmt.Sprintf("%s: %s (%s)", e.Procedure, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Procedure, e.Code)
}

// CodeOf extracts the procedure failure code from err, or "" when err is not one.
func CodeOf(err error) string {
	var pe *ProcedureError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
