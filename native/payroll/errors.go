package payroll

import (
	"errors"
	"fmt"
)

// ErrorKind groups engine failures by how a caller should react to them.
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthorization
	KindStateConflict
	KindResource
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindResource:
		return "resource"
	default:
		return "internal"
	}
}

// Error is a typed engine failure. Sentinels are compared with errors.Is; the
// Code is stable and safe to expose to clients.
type Error struct {
	Kind    ErrorKind
	Code    string
	message string
}

func (e *Error) Error() string { return "payroll: " + e.message }

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, message: message}
}

var (
	ErrInvalidFeeBps         = newError(KindValidation, "InvalidFeeBps", "invalid fee basis points (must be <= 10000)")
	ErrNameTooLong           = newError(KindValidation, "NameTooLong", "name is too long (max 32 characters)")
	ErrMetadataURITooLong    = newError(KindValidation, "MetadataUriTooLong", "metadata uri is too long (max 200 characters)")
	ErrRoleTooLong           = newError(KindValidation, "RoleTooLong", "role is too long (max 16 characters)")
	ErrInvalidAllocationBps  = newError(KindValidation, "InvalidAllocationBps", "invalid allocation basis points (must be <= 10000)")
	ErrTotalAllocation       = newError(KindValidation, "TotalAllocationExceeded", "total allocation exceeds 100%")
	ErrAssetNotWhitelisted   = newError(KindValidation, "AssetNotWhitelisted", "asset is not whitelisted for this vault")
	ErrInvalidAsset          = newError(KindValidation, "InvalidAsset", "invalid asset descriptor")
	ErrTooManyAssets         = newError(KindValidation, "TooManyAssets", "too many whitelisted assets")
	ErrInvalidAmount         = newError(KindValidation, "InvalidAmount", "amount must be positive")
	ErrInvalidSchedule       = newError(KindValidation, "InvalidSchedule", "payout schedule interval must be positive")
	ErrInvalidVaultKind      = newError(KindValidation, "InvalidVaultKind", "invalid vault kind")
	ErrInvalidAllocationMode = newError(KindValidation, "InvalidAllocationMode", "invalid allocation mode")
	ErrEmptyBulk             = newError(KindValidation, "EmptyBulk", "bulk request has no entries")
	ErrBulkTooLarge          = newError(KindValidation, "BulkTooLarge", "bulk request exceeds the entry limit")
	ErrReservedBatchID       = newError(KindValidation, "ReservedBatchId", "batch id is reserved for scheduled payouts")

	ErrUnauthorized = newError(KindAuthorization, "Unauthorized", "caller is not authorized")

	ErrBatchAlreadyFinalized  = newError(KindStateConflict, "BatchAlreadyFinalized", "payroll batch is already finalized")
	ErrBatchAlreadyExists     = newError(KindStateConflict, "BatchAlreadyExists", "payroll batch id already used for this vault")
	ErrMemberNotActive        = newError(KindStateConflict, "MemberNotActive", "member is not active")
	ErrMemberAlreadyExists    = newError(KindStateConflict, "MemberAlreadyExists", "member already exists")
	ErrConfigNotInitialized   = newError(KindStateConflict, "ConfigNotInitialized", "global config not initialized")
	ErrConfigAlreadyExists    = newError(KindStateConflict, "ConfigAlreadyInitialized", "global config already initialized")
	ErrPayoutScheduleInactive = newError(KindStateConflict, "PayoutScheduleNotActive", "payout schedule is not active")
	ErrPayoutTimeNotReached   = newError(KindStateConflict, "PayoutTimeNotReached", "next payout time has not been reached")

	ErrInsufficientVaultBalance = newError(KindResource, "InsufficientVaultBalance", "insufficient vault balance for payout")
	ErrInsufficientFunds        = newError(KindResource, "InsufficientFunds", "insufficient account balance")
	ErrAccountNotFound          = newError(KindResource, "AccountNotFound", "account not found")
)

// KindOf reports the category of err, or KindInternal for errors that did not
// originate from the engine's taxonomy.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// CodeOf returns the stable error code, or "Internal".
func CodeOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return "Internal"
}

// BulkEntryError identifies the entry that aborted a bulk request.
type BulkEntryError struct {
	Index int
	Err   error
}

func (e *BulkEntryError) Error() string {
	return fmt.Sprintf("payroll: bulk entry %d: %v", e.Index, e.Err)
}

func (e *BulkEntryError) Unwrap() error { return e.Err }

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrAccountNotFound, what, id)
}
