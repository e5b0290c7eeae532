package trading

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tradingroom/src/tp_sl"
)

var (
	// ErrValidation covers malformed or missing input. Nothing was written.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTpSlPrice is a take-profit or stop-loss on the wrong side of entry.
	// It is always returned wrapped together with ErrValidation.
	ErrInvalidTpSlPrice = tp_sl.ErrInvalidPrice
	// ErrTriggerNotReached is an execution attempt whose price does not satisfy the entry condition.
	ErrTriggerNotReached = fmt.Errorf("%w: trigger not reached", ErrValidation)

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrOrderNotActive      = errors.New("order not active")
	// ErrPositionAlreadyClosed means a concurrent path closed the position first.
	// The losing order has been cancelled; callers should not retry.
	ErrPositionAlreadyClosed = errors.New("position already closed")
	ErrStore                 = errors.New("store error")
)

var domainErrors = []error{
	ErrValidation,
	ErrInsufficientBalance,
	ErrNotFound,
	ErrOrderNotActive,
	ErrPositionAlreadyClosed,
	ErrStore,
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(entity string, id uint) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// storeError classifies a driver error. Record-not-found becomes ErrNotFound,
// errors that already carry a domain sentinel pass through untouched and
// everything else is wrapped in ErrStore with the failing operation.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
