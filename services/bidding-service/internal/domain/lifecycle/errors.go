package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrProjectNotFound        = fmt.Errorf("project %w", ErrNotFound)
	ErrBidNotFound            = fmt.Errorf("bid %w", ErrNotFound)
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateBid           = errors.New("bidder already has a bid on this project")
	ErrAlreadyAwarded         = errors.New("project already awarded")
	ErrAlreadyClosed          = errors.New("bidding already closed")
	ErrAlreadyDraft           = errors.New("project already in draft")
	ErrAccessDenied           = errors.New("access denied")
	ErrDeadlinePassed         = errors.New("bidding deadline has passed")
	ErrAlreadyRated           = errors.New("rating already submitted")
)

// TransitionError describes a rejected operation and the state it was attempted from
type TransitionError struct {
	Op   string
	From string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s not allowed from %s", ErrInvalidStateTransition, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

func invalidTransition(op string, from any) error {
	return &TransitionError{Op: op, From: fmt.Sprint(from)}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
