package coupons

import (
	"errors"
	"fmt"
)

// Kind classifies a coupon operation failure
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInactive
	KindLimitReached
	KindNotYetStarted
	KindExpired
	KindAlreadyUsed
	KindUnauthenticated
	KindTransactionConflict
	KindInvalid
	KindForbidden
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInactive:
		return "Inactive"
	case KindLimitReached:
		return "LimitReached"
	case KindNotYetStarted:
		return "NotYetStarted"
	case KindExpired:
		return "Expired"
	case KindAlreadyUsed:
		return "AlreadyUsed"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindTransactionConflict:
		return "TransactionConflict"
	case KindInvalid:
		return "Invalid"
	case KindForbidden:
		return "Forbidden"
	default:
		return "Unknown"
	}
}

// Error is the typed failure returned by the coupon service.
// Two errors match with errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	MaxUses int    // set for KindLimitReached
	Field   string // set for KindInvalid
	Detail  string
	Err     error
}

// Error returns a message suitable for showing to the user
func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	switch e.Kind {
	case KindNotFound:
		return "El cupón no existe"
	case KindInactive:
		return "El cupón no está activo"
	case KindLimitReached:
		return fmt.Sprintf("Este cupón alcanzó su límite de %d usos", e.MaxUses)
	case KindNotYetStarted:
		return "El cupón todavía no está vigente"
	case KindExpired:
		return "El cupón ha expirado"
	case KindAlreadyUsed:
		return "Ya utilizaste este cupón"
	case KindUnauthenticated:
		return "Debes iniciar sesión para usar cupones"
	case KindTransactionConflict:
		return "No se pudo canjear el cupón, intenta de nuevo"
	case KindInvalid:
		return fmt.Sprintf("Dato inválido: %s", e.Field)
	case KindForbidden:
		return "No tienes permiso para administrar este cupón"
	default:
		return "error de cupón"
	}
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a coupon error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInactive            = &Error{Kind: KindInactive}
	ErrLimitReached        = &Error{Kind: KindLimitReached}
	ErrNotYetStarted       = &Error{Kind: KindNotYetStarted}
	ErrExpired             = &Error{Kind: KindExpired}
	ErrAlreadyUsed         = &Error{Kind: KindAlreadyUsed}
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated}
	ErrTransactionConflict = &Error{Kind: KindTransactionConflict}
	ErrInvalid             = &Error{Kind: KindInvalid}
	ErrForbidden           = &Error{Kind: KindForbidden}
)

// ErrConflict is returned by a Store when a transaction lost an
// optimistic-concurrency race and may be retried
var ErrConflict = errors.New("transaction conflict")

// ErrDuplicateRedemption is returned by Tx.InsertRedemption when the
// store's unique (userId, couponId) guard rejects the record
var ErrDuplicateRedemption = errors.New("duplicate redemption")

func limitReached(maxUses int) *Error {
	return &Error{Kind: KindLimitReached, MaxUses: maxUses}
}

func invalid(field, detail string) *Error {
	return &Error{Kind: KindInvalid, Field: field, Detail: detail}
}

// KindOf extracts the kind of a coupon error, or 0 when err is not one
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
