package calibration

import (
	"errors"
	"fmt"
)

// Sentinel errors for calibration failures.
var (
	// ErrNoActiveAnchor is returned when samples arrive or a step is sealed
	// with no anchor open. It is a caller bug, not an operator mistake.
	ErrNoActiveAnchor = errors.New("calibration: no active anchor")

	// ErrDegenerateCalibration is returned when a record has no samples
	// (or a non-finite mean) and so cannot anchor the mapping.
	ErrDegenerateCalibration = errors.New("calibration: degenerate calibration")

	// ErrMissingCenterAnchor is returned when a set lacks the Center record.
	ErrMissingCenterAnchor = errors.New("calibration: missing center anchor")

	// ErrUnknownAnchor is returned for names or triggers outside the anchor table.
	ErrUnknownAnchor = errors.New("calibration: unknown anchor")

	// ErrUnexpectedTrigger is returned when the operator triggers an anchor
	// other than the one the session is waiting for.
	ErrUnexpectedTrigger = errors.New("calibration: unexpected trigger")

	// ErrCalibrationIncomplete is returned when a session's set is requested
	// before every anchor has been sealed.
	ErrCalibrationIncomplete = errors.New("calibration: incomplete")

	// ErrMalformedRecord is returned when a persisted record is not a
	// five-element tuple.
	ErrMalformedRecord = errors.New("calibration: malformed record")
)

// AnchorError wraps an error with the anchor it concerns.
type AnchorError struct {
	Anchor string
	Err    error
}

// Error implements the error interface.
func (e *AnchorError) Error() string {
	return fmt.Sprintf("calibration [%s]: %v", e.Anchor, e.Err)
}

// Unwrap returns the underlying error.
func (e *AnchorError) Unwrap() error {
	return e.Err
}
