// Package errors defines the closed error taxonomy shared by every core service.
package errors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeDuplicate            Code = "duplicate"
	CodeDuplicatePhrase      Code = "duplicate_phrase"
	CodeAlreadyVoted         Code = "already_voted"
	CodeAlreadyClosed        Code = "already_closed"
	CodeNotCurator           Code = "not_curator"
	CodeNotOwner             Code = "not_owner"
	CodeSubmitterBlacklisted Code = "submitter_blacklisted"
	CodeLinkTokenInvalid     Code = "link_token_invalid"
	CodePromotionFailed      Code = "promotion_failed"
	CodeStorageUnavailable   Code = "storage_unavailable"
	CodeConflict             Code = "conflict"
	CodeInvalidArgument      Code = "invalid_argument"
)

var messages = map[Code]string{
	CodeNotFound:             "record not found",
	CodeDuplicate:            "record already exists",
	CodeDuplicatePhrase:      "phrase already exists in the catalog",
	CodeAlreadyVoted:         "voter already voted on this proposal",
	CodeAlreadyClosed:        "proposal voting is closed",
	CodeNotCurator:           "only curators can vote",
	CodeNotOwner:             "only the owner can do that",
	CodeSubmitterBlacklisted: "submitter is not allowed to propose phrases",
	CodeLinkTokenInvalid:     "link token is invalid",
	CodePromotionFailed:      "approved proposal could not be promoted to a phrase",
	CodeStorageUnavailable:   "storage is temporarily unavailable",
	CodeConflict:             "too many concurrent updates, try again",
	CodeInvalidArgument:      "invalid argument",
}

// Message returns the human message for a code.
func Message(c Code) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return string(c)
}

// Error is the concrete error type returned by the core.
type Error struct {
	Code Code
	// Detail is an optional machine-readable refinement, e.g. the reason a
	// link token was rejected.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := Message(e.Code)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Transient reports whether the failure may succeed on retry.
func (e *Error) Transient() bool {
	return e.Code == CodeStorageUnavailable || e.Code == CodeConflict
}

var (
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrDuplicate            = &Error{Code: CodeDuplicate}
	ErrDuplicatePhrase      = &Error{Code: CodeDuplicatePhrase}
	ErrAlreadyVoted         = &Error{Code: CodeAlreadyVoted}
	ErrAlreadyClosed        = &Error{Code: CodeAlreadyClosed}
	ErrNotCurator           = &Error{Code: CodeNotCurator}
	ErrNotOwner             = &Error{Code: CodeNotOwner}
	ErrSubmitterBlacklisted = &Error{Code: CodeSubmitterBlacklisted}
	ErrLinkTokenInvalid     = &Error{Code: CodeLinkTokenInvalid}
	ErrPromotionFailed      = &Error{Code: CodePromotionFailed}
	ErrStorageUnavailable   = &Error{Code: CodeStorageUnavailable}
	ErrConflict             = &Error{Code: CodeConflict}
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument}
)

// New builds an error of the given code wrapping cause (which may be nil).
func New(c Code, cause error) *Error { return &Error{Code: c, Err: cause} }

// WithDetail builds an error of the given code with a detail string.
func WithDetail(c Code, detail string) *Error { return &Error{Code: c, Detail: detail} }

// Storage wraps an infrastructure failure as StorageUnavailable.
func Storage(op string, cause error) *Error {
	return &Error{Code: CodeStorageUnavailable, Err: fmt.Errorf("%s: %w", op, cause)}
}

// InvalidArgument creates an InvalidArgument error with the given detail.
func InvalidArgument(detail string) *Error { return WithDetail(CodeInvalidArgument, detail) }

// CodeOf extracts the code from err, or "" when err is not a core error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err is a retryable core error.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient()
}
