// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"fmt"

	"github.com/MochiMore/mochimo/wire"
)

// CheckTags enforces the tag movement rules for one transaction against
// the open ledger. A tag names an account independently of its one-time
// address, so the rules exist to stop a tag from being silently moved or
// duplicated:
//
//   - a tagged destination must name a tag that already exists in the
//     ledger (checked from the tag trigger block onward, and always for
//     queued transactions, where bnum is nil);
//   - an untagged change address is always valid; a debit empties the
//     source exactly, so an unclaimed source tag simply dies with it;
//   - a tagged source may only carry its tag to a change address bearing
//     the same tag;
//   - a new tag may only be introduced on the change address of an
//     untagged source, and only if the ledger does not hold it yet.
func CheckTags(s *Store, src, chg, dst *wire.Address, bnum *uint64, tagTrigger uint64) error {
	if bnum == nil || *bnum >= tagTrigger {
		if dst.HasTag() {
			found, err := s.TagExists(dst.Tag())
			if err != nil {
				return err
			}
			if !found {
				return makeError(ErrTagNotFound, fmt.Sprintf(
					"destination tag %x not in ledger", dst.Tag()))
			}
		}
	}

	// An untagged change address ends the tag's life (or there was no
	// tag to begin with); nothing further to check.
	if !chg.HasTag() {
		return nil
	}

	// The tag rides the change address.
	if src.TagEqual(chg) {
		return nil
	}
	if src.HasTag() {
		return makeError(ErrTagMismatch, fmt.Sprintf(
			"source tag %x does not move to change tag %x",
			src.Tag(), chg.Tag()))
	}

	// Untagged source introducing a tag on its change address: the tag
	// must be new to the ledger.
	found, err := s.TagExists(chg.Tag())
	if err != nil {
		return err
	}
	if found {
		return makeError(ErrTagInUse, fmt.Sprintf(
			"change tag %x already in ledger", chg.Tag()))
	}
	return nil
}
