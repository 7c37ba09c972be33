package history

import (
	"errors"

	"github.com/plugtrack/backend/internal/utils"
)

// Error kinds returned by the history engine. Callers match them with errors.Is;
// the HTTP layer reads their codes through utils.ErrorCode.
var (
	ErrInvalidPeriod       = utils.NewErrorWithCode(errors.New("invalid period"), utils.CodeInvalidPeriod)
	ErrAggregationTooFine  = utils.NewErrorWithCode(errors.New("aggregation too fine"), utils.CodeAggregationTooFine)
	ErrRateScheduleInvalid = utils.NewErrorWithCode(errors.New("rate schedule invalid"), utils.CodeRateScheduleInvalid)
	ErrUpstreamTimeout     = utils.NewErrorWithCode(errors.New("upstream timeout"), utils.CodeUpstreamTimeout)
	ErrDeviceNotFound      = utils.NewErrorWithCode(errors.New("device not found"), utils.CodeDeviceNotFound)
)

// WarningCounterReset is attached to results containing at least one bucket with a counter reset
const WarningCounterReset = "COUNTER_RESET_DETECTED"

// IsRetryable reports whether the caller may retry the whole query
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}
