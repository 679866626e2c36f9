// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/MochiMore/mochimo/chaincfg"
)

// LedgerEntrySize is the serialized size of one ledger entry.
const LedgerEntrySize = chaincfg.LedgerEntryLen

// LedgerTranSize is the serialized size of one ledger transaction delta.
const LedgerTranSize = chaincfg.LedgerTranLen

// Ledger transaction codes. A debit must empty the account exactly; a
// credit adds to it, creating the account if needed. Debits sort before
// credits for the same address.
const (
	TranCodeDebit  = '-'
	TranCodeCredit = 'A'
)

// LedgerEntry is one row of the ledger file: an address and its balance.
// The ledger file is a contiguous array of these, sorted strictly
// ascending by address with no duplicates.
type LedgerEntry struct {
	Addr    Address
	Balance uint64
}

// Deserialize decodes a ledger entry from r into the receiver.
func (le *LedgerEntry) Deserialize(r io.Reader) error {
	return readElements(r, &le.Addr, &le.Balance)
}

// Serialize encodes the ledger entry to w in its on-disk form.
func (le *LedgerEntry) Serialize(w io.Writer) error {
	return writeElements(w, &le.Addr, le.Balance)
}

// LedgerTran is one ledger transaction delta, the unit record of the
// delta file emitted by block validation and consumed by the updater.
type LedgerTran struct {
	Addr   Address
	Code   byte
	Amount uint64
}

// Deserialize decodes a ledger transaction from r into the receiver.
func (lt *LedgerTran) Deserialize(r io.Reader) error {
	return readElements(r, &lt.Addr, &lt.Code, &lt.Amount)
}

// Serialize encodes the ledger transaction to w in its on-disk form.
func (lt *LedgerTran) Serialize(w io.Writer) error {
	return writeElements(w, &lt.Addr, lt.Code, lt.Amount)
}
