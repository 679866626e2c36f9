// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/wire"
)

// ltLess orders delta records by (address, code). The code byte follows
// the address in the serialized record and the debit code sorts below the
// credit code, so a single byte comparison over both fields is the sort
// contract.
func ltLess(a, b []byte) bool {
	return bytes.Compare(a[:chaincfg.AddrLen+1], b[:chaincfg.AddrLen+1]) < 0
}

// Update applies the delta file at ltranPath to the ledger at lePath. The
// delta file is sorted in place first; the ledger and deltas are then
// merge-walked into a temp file that atomically replaces the ledger on
// success. The consumed delta file is rotated to a ".last" sibling.
//
// The ledger must not be open. Rules enforced during the merge:
//
//   - a debit must equal the account balance exactly and empties it;
//   - a delta targeting an account the ledger does not hold must be a
//     credit;
//   - a credit that overflows zeroes the balance;
//   - rows whose final balance does not exceed mfee are dropped;
//   - both inputs must be sorted, and an update that would produce an
//     empty ledger is refused.
func Update(lePath, ltranPath string, sortBuf int, mfee uint64) error {
	if err := Filesort(ltranPath, wire.LedgerTranSize, sortBuf, ltLess); err != nil {
		return errors.Wrapf(err, "failed to sort %s", ltranPath)
	}

	lefp, err := os.Open(lePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open ledger %s", lePath)
	}
	defer lefp.Close()
	ltfp, err := os.Open(ltranPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open deltas %s", ltranPath)
	}
	defer ltfp.Close()

	tmpPath := filepath.Join(filepath.Dir(lePath), "ledger.update")
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmpPath)
	}
	w := bufio.NewWriter(out)
	fail := func(err error) error {
		out.Close()
		os.Remove(tmpPath)
		return err
	}

	u := &updater{
		lr: bufio.NewReader(lefp),
		tr: bufio.NewReader(ltfp),
	}
	if err := u.nextEntry(); err != nil {
		return fail(err)
	}
	if err := u.nextDelta(); err != nil {
		return fail(err)
	}

	var nout uint64
	for u.leOK || u.ltOK {
		var cur wire.LedgerEntry
		switch {
		case u.leOK && (!u.ltOK || bytes.Compare(u.le.Addr[:], u.lt.Addr[:]) < 0):
			// No deltas touch this account; carry it through unless
			// it has decayed to dust.
			if u.le.Balance > mfee {
				if err := u.le.Serialize(w); err != nil {
					return fail(errors.Wrap(err, "failed to write ledger entry"))
				}
				nout++
			}
			if err := u.nextEntry(); err != nil {
				return fail(err)
			}
			continue

		case u.ltOK && (!u.leOK || bytes.Compare(u.le.Addr[:], u.lt.Addr[:]) > 0):
			// Deltas for an account the ledger does not hold: only a
			// credit may create it.
			if u.lt.Code != wire.TranCodeCredit {
				return fail(makeError(ErrCreateNotCredit, fmt.Sprintf(
					"delta creates %s with code %q",
					u.lt.Addr.String(), u.lt.Code)))
			}
			log.Debugf("Creating address %s", u.lt.Addr.String())
			cur.Addr = u.lt.Addr
			if err := u.applyGroup(&cur); err != nil {
				return fail(err)
			}

		default:
			// Account exists and has deltas.
			log.Debugf("Editing address %s", u.lt.Addr.String())
			cur = u.le
			if err := u.nextEntry(); err != nil {
				return fail(err)
			}
			if err := u.applyGroup(&cur); err != nil {
				return fail(err)
			}
		}

		// Only balances above the fee floor survive the update.
		if cur.Balance > mfee {
			if err := cur.Serialize(w); err != nil {
				return fail(errors.Wrap(err, "failed to write ledger entry"))
			}
			nout++
		}
	}

	if err := w.Flush(); err != nil {
		return fail(errors.Wrap(err, "failed to flush updated ledger"))
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close updated ledger")
	}
	if nout == 0 {
		os.Remove(tmpPath)
		return makeError(ErrEmpty, "update would empty the ledger")
	}

	if err := os.Remove(lePath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to remove %s", lePath)
	}
	if err := os.Rename(tmpPath, lePath); err != nil {
		return errors.Wrapf(err, "failed to rename %s", tmpPath)
	}
	lastPath := ltranPath + ".last"
	os.Remove(lastPath)
	if err := os.Rename(ltranPath, lastPath); err != nil {
		return errors.Wrapf(err, "failed to rotate %s", ltranPath)
	}
	log.Debugf("Wrote %d entries to new ledger", nout)
	return nil
}

// updater carries the merge cursors over the ledger and delta files.
type updater struct {
	lr, tr *bufio.Reader

	le   wire.LedgerEntry
	leOK bool
	lt   wire.LedgerTran
	ltOK bool

	lePrev [chaincfg.AddrLen]byte
	ltPrev [chaincfg.AddrLen]byte
}

// nextEntry advances the ledger cursor and re-checks the sort on every
// read.
func (u *updater) nextEntry() error {
	err := u.le.Deserialize(u.lr)
	if err == io.EOF {
		u.leOK = false
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read ledger entry")
	}
	if u.leOK && bytes.Compare(u.le.Addr[:], u.lePrev[:]) < 0 {
		return makeError(ErrBadSort, "ledger file out of order")
	}
	copy(u.lePrev[:], u.le.Addr[:])
	u.leOK = true
	return nil
}

// nextDelta advances the delta cursor and re-checks the sort on every
// read.
func (u *updater) nextDelta() error {
	err := u.lt.Deserialize(u.tr)
	if err == io.EOF {
		u.ltOK = false
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read delta record")
	}
	if u.ltOK && bytes.Compare(u.lt.Addr[:], u.ltPrev[:]) < 0 {
		return makeError(ErrBadSort, "delta file out of order")
	}
	copy(u.ltPrev[:], u.lt.Addr[:])
	u.ltOK = true
	return nil
}

// applyGroup applies every consecutive delta for cur's address. The delta
// cursor must sit on the first record of the group.
func (u *updater) applyGroup(cur *wire.LedgerEntry) error {
	addr := u.lt.Addr
	for {
		switch u.lt.Code {
		case wire.TranCodeCredit:
			sum, carry := bits.Add64(cur.Balance, u.lt.Amount, 0)
			if carry != 0 {
				// An overflowed account forfeits its balance. This
				// is load-bearing for replay determinism.
				log.Debugf("Balance overflow on %s, zeroing", cur.Addr.String())
				sum = 0
			}
			cur.Balance = sum
		case wire.TranCodeDebit:
			if cur.Balance != u.lt.Amount {
				return makeError(ErrDebitMismatch, fmt.Sprintf(
					"debit of %d against balance %d on %s",
					u.lt.Amount, cur.Balance, cur.Addr.String()))
			}
			cur.Balance = 0
		default:
			return makeError(ErrBadTranCode, fmt.Sprintf(
				"bad delta code %q", u.lt.Code))
		}
		if err := u.nextDelta(); err != nil {
			return err
		}
		if !u.ltOK || !bytes.Equal(u.lt.Addr[:], addr[:]) {
			return nil
		}
	}
}
