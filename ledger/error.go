// Copyright (c) 2014-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of ledger error.
type ErrorCode int

// These constants are used to identify a specific ledger Error.
const (
	// ErrBadFormat indicates an on-disk file whose framing is wrong: a
	// size that is zero or not a whole number of records, or a header
	// field that contradicts the file.
	ErrBadFormat ErrorCode = iota

	// ErrBadSort indicates a file whose records violate its sort
	// contract.
	ErrBadSort

	// ErrClosed indicates an operation on a closed store.
	ErrClosed

	// ErrEmpty indicates an update that would have produced an empty
	// ledger, which is never written over a live one.
	ErrEmpty

	// ErrCreateNotCredit indicates a delta that tries to debit an
	// account the ledger does not hold. Provably malicious.
	ErrCreateNotCredit

	// ErrDebitMismatch indicates a debit whose amount does not equal the
	// account balance exactly. Provably malicious.
	ErrDebitMismatch

	// ErrBadTranCode indicates a delta record whose code is neither a
	// debit nor a credit.
	ErrBadTranCode

	// ErrTagNotFound indicates a destination tag that does not exist in
	// the ledger.
	ErrTagNotFound

	// ErrTagInUse indicates an attempt to introduce a tag that already
	// exists in the ledger.
	ErrTagInUse

	// ErrTagMismatch indicates a tagged source whose change address does
	// not carry the same tag.
	ErrTagMismatch
)

// errorCodeStrings is a map of error codes back to their constant names
// for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrBadFormat:       "ErrBadFormat",
	ErrBadSort:         "ErrBadSort",
	ErrClosed:          "ErrClosed",
	ErrEmpty:           "ErrEmpty",
	ErrCreateNotCredit: "ErrCreateNotCredit",
	ErrDebitMismatch:   "ErrDebitMismatch",
	ErrBadTranCode:     "ErrBadTranCode",
	ErrTagNotFound:     "ErrTagNotFound",
	ErrTagInUse:        "ErrTagInUse",
	ErrTagMismatch:     "ErrTagMismatch",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a ledger error. The caller can use type assertions on
// the returned error to access the ErrorCode field to determine the
// specific reason for the failure.
type Error struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// makeError creates an Error given a set of arguments.
func makeError(c ErrorCode, desc string) Error {
	return Error{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether or not the provided error is a ledger error
// with the provided error code.
func IsErrorCode(err error, c ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.ErrorCode == c
}

// IsMalicious returns whether the error identifies a provably malicious
// delta: one that debits a non-existent account or debits an amount other
// than the exact balance.
func IsMalicious(err error) bool {
	return IsErrorCode(err, ErrCreateNotCredit) ||
		IsErrorCode(err, ErrDebitMismatch)
}
