package engine

import (
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrLotSizeViolation = errors.New("lot size violation")
	ErrContention       = errors.New("contention: retry ceiling reached")
	ErrInternal         = errors.New("internal error")
)

type Kind string

const (
	KindNone             Kind = ""
	KindNotFound         Kind = "NotFound"
	KindInvalidOrder     Kind = "InvalidOrder"
	KindLotSizeViolation Kind = "LotSizeViolation"
	KindContention       Kind = "Contention"
	KindInternal         Kind = "Internal"
)

// KindOf classifies an error returned by the Controller. Anything outside the
// taxonomy is Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidOrder):
		return KindInvalidOrder
	case errors.Is(err, ErrLotSizeViolation):
		return KindLotSizeViolation
	case errors.Is(err, ErrContention):
		return KindContention
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may safely resubmit.
func (k Kind) Retryable() bool { return k == KindContention }
