package types

import (
	"errors"
	"fmt"
)

var (
	ErrNilBond                           = fmt.Errorf("bond is nil")
	ErrMissingSettlementDate             = fmt.Errorf("missing settlement date")
	ErrDataUnavailable                   = fmt.Errorf("data unavailable")
	ErrUnsupportedBond                   = fmt.Errorf("unsupported bond")
	ErrInvalidTicker                     = fmt.Errorf("invalid ticker")
	ErrInvalidCoupon                     = fmt.Errorf("invalid coupon")
	ErrInvalidDesc                       = fmt.Errorf("invalid description")
	ErrInvalidMaturityDate               = fmt.Errorf("invalid maturity date")
	ErrInvalidSettlementDate             = fmt.Errorf("invalid settlement date")
	ErrMaturityDateBeforeSettlement      = fmt.Errorf("maturity date is before settlement date")
	ErrYieldToMaturityNoConvergence      = fmt.Errorf("Newton-Raphson failed to converge within max iterations")
	ErrYieldToMaturityDerivativeTooSmall = fmt.Errorf("Newton-Raphson failed (derivative is too small)")
	ErrInvalidCleanPrice                 = fmt.Errorf("invalid clean price")
	ErrInvalidDirtyPrice                 = fmt.Errorf("invalid dirty price")
	ErrInvalidYieldToMaturity            = fmt.Errorf("invalid yield to maturity")
	ErrInvalidFacePrice                  = fmt.Errorf("invalid face price")
	ErrMissingPriceAndYield              = fmt.Errorf("missing price and yield")

	ErrUnknownFrequency  = errors.New("unknown coupon frequency")
	ErrUnknownDayCount   = errors.New("unknown day count")
	ErrUnknownCalendar   = errors.New("unknown calendar")
	ErrInvalidTenor      = errors.New("invalid tenor")
	ErrInvalidOptionType = errors.New("invalid option type")
	ErrInvalidStyle      = errors.New("invalid exercise style")

	ErrEmptyBasket     = errors.New("empty benchmark basket")
	ErrEmptyGrid       = errors.New("empty maturity grid")
	ErrZeroTotalVolume = errors.New("division by zero: total benchmark volume is zero")
	ErrNegativeVolume  = errors.New("negative benchmark volume")

	ErrMissingField   = errors.New("missing field")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrTooFewPoints   = errors.New("too few observations")
)

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError wrapping a sentinel.
func NewValidationError(field string, value interface{}, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}
