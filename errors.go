package feeledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound        = errors.New("feeledger: not found")
	ErrAlreadyExists   = errors.New("feeledger: already exists")
	ErrInvalidInput    = errors.New("feeledger: invalid input")
	ErrUnauthorized    = errors.New("feeledger: caller is not the administrator")
	ErrZeroAddress     = errors.New("feeledger: zero address")
	ErrReservedAccount = errors.New("feeledger: fee holding account cannot be a transfer endpoint")

	// Balance ledger errors
	ErrInsufficientBalance    = balance.ErrInsufficientBalance
	ErrOverflow               = balance.ErrOverflow
	ErrSupplyMismatch         = balance.ErrSupplyMismatch
	ErrInsufficientFeeBalance = errors.New("feeledger: amount exceeds fee holding balance")

	// Fee policy errors
	ErrRateTooHigh  = policy.ErrRateTooHigh
	ErrInvalidSplit = policy.ErrInvalidSplit

	// Collector errors
	ErrDuplicateCollector = collector.ErrDuplicateCollector
	ErrUnknownCollector   = collector.ErrUnknownCollector
	ErrInvalidCollector   = collector.ErrInvalidCollector
	ErrNoCollectors       = errors.New("feeledger: no fee collectors registered")

	// Processing errors
	ErrSwapFailed          = errors.New("feeledger: swap failed")
	ErrPartialDistribution = errors.New("feeledger: partial distribution")
	ErrLotNotFound         = errors.New("feeledger: lot not found")
	ErrLotNotRetryable     = errors.New("feeledger: lot is not retryable")
	ErrInvalidTransition   = lot.ErrInvalidTransition

	// Lifecycle and store errors
	ErrNotStarted       = errors.New("feeledger: engine not started")
	ErrAlreadyStarted   = errors.New("feeledger: engine already started")
	ErrStopped          = errors.New("feeledger: engine stopped")
	ErrJournalCorrupt   = errors.New("feeledger: journal is corrupt")
	ErrSequenceConflict = errors.New("feeledger: journal sequence already taken")
	ErrStoreClosed      = errors.New("feeledger: store is closed")
	ErrMigrationFailed  = errors.New("feeledger: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("feeledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "feeledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("feeledger: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e if it holds any error, otherwise nil.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// SwapError reports a router failure or a conversion that produced less than
// the required minimum. It matches ErrSwapFailed.
type SwapError struct {
	Amount types.Amount
	MinOut types.Amount
	Out    types.Amount
	Err    error
}

func (e *SwapError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feeledger: swap of %s failed: %v", e.Amount, e.Err)
	}
	return fmt.Sprintf("feeledger: swap of %s returned %s, below minimum %s", e.Amount, e.Out, e.MinOut)
}

func (e *SwapError) Is(target error) bool { return target == ErrSwapFailed }

func (e *SwapError) Unwrap() error { return e.Err }

// PartialDistributionError reports which collector allocations of a lot could
// not be converted. Their tokens stay in the fee holding account until
// RetryDistribution succeeds. It matches ErrPartialDistribution.
type PartialDistributionError struct {
	LotID     id.LotID
	Succeeded []int
	Failed    []int
	Remaining types.Amount
	Errs      []error
}

func (e *PartialDistributionError) Error() string {
	idx := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		idx[i] = fmt.Sprint(f)
	}
	return fmt.Sprintf("feeledger: partial distribution of lot %s: collectors [%s] failed, %s undistributed",
		e.LotID, strings.Join(idx, ","), e.Remaining)
}

func (e *PartialDistributionError) Is(target error) bool { return target == ErrPartialDistribution }

func (e *PartialDistributionError) Unwrap() []error { return e.Errs }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLotNotFound) ||
		errors.Is(err, ErrUnknownCollector)
}

// IsPolicyError returns true if the error is a fee configuration bound violation.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrRateTooHigh) ||
		errors.Is(err, ErrInvalidSplit)
}

// IsLedgerError returns true if the error comes from balance accounting.
func IsLedgerError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientFeeBalance) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrSupplyMismatch)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSwapFailed) ||
		errors.Is(err, ErrPartialDistribution) ||
		errors.Is(err, ErrSequenceConflict)
}
