// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"fmt"
	"math/bits"
	"os"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/ledger"
	"github.com/MochiMore/mochimo/wire"
	"github.com/MochiMore/mochimo/wots"
)

// checkTrailerAgainstState applies the trailer gate to a candidate
// trailer: fee floor, difficulty, solve times, block number and previous
// hash linkage against the chain state, then the proof-of-work predicate
// of the trailer's generation.
func (c *Chain) checkTrailerAgainstState(bt *wire.BlockTrailer) error {
	s := &c.state
	if bt.Mfee < s.Mfee {
		return ruleError(ErrFeeTooLow, fmt.Sprintf(
			"trailer fee %d below floor %d", bt.Mfee, s.Mfee))
	}
	if bt.Difficulty != s.Difficulty {
		return ruleError(ErrDifficultyMismatch, fmt.Sprintf(
			"trailer difficulty %d, state wants %d", bt.Difficulty, s.Difficulty))
	}

	stime := bt.Stime
	if stime <= s.Time0 {
		return ruleError(ErrTimeTooOld, fmt.Sprintf(
			"solve time %d not after %d", stime, s.Time0))
	}
	if now := c.now(); stime > now+c.params.ClockSkew {
		return ruleError(ErrTimeTooNew, fmt.Sprintf(
			"solve time %d too far past wall clock %d", stime, now))
	}

	bnum := s.Cblocknum + 1
	if bt.Bnum != bnum {
		return ruleError(ErrBadBlockNum, fmt.Sprintf(
			"trailer block number %d, want %d", bt.Bnum, bnum))
	}
	// Past the v2.3 fork the chain bridges long gaps with pseudoblocks,
	// so a regular block may not span more than the bridge window. The
	// low tip byte 0xfe marks a bridge in progress and is exempt.
	if bnum > c.params.V23Trigger && byte(s.Cblocknum) != 0xfe {
		if stime-bt.Time0 > c.params.BridgeTime {
			return ruleError(ErrBridgeExceeded, fmt.Sprintf(
				"solve interval %d beyond bridge window", stime-bt.Time0))
		}
	}
	if !bt.Phash.IsEqual(&s.Cblockhash) {
		return ruleError(ErrBadPrevHash, fmt.Sprintf(
			"trailer links %s, tip is %s", bt.Phash, s.Cblockhash))
	}

	return CheckPoW(bt, c.params)
}

// checkMultiDst validates a multi-destination overlay: the source tag
// must ride the change address, every listed destination must carry a
// non-zero amount and a tag that is neither the source's nor a
// duplicate, the amounts must sum to the send total, and the fee must
// cover one floor fee per destination.
func (c *Chain) checkMultiDst(tx *wire.Tx) error {
	if !tx.SrcAddr.HasTag() {
		return ruleError(ErrBadMultiDst, "multi-dst from untagged source")
	}
	if !tx.SrcAddr.TagEqual(&tx.ChgAddr) {
		return ruleError(ErrBadMultiDst, "multi-dst change drops source tag")
	}
	if tx.ChangeTotal <= c.state.Mfee {
		return ruleError(ErrBadMultiDst, "multi-dst change below fee floor")
	}

	m := wire.DecodeMultiDst(&tx.DstAddr)
	var total, fees uint64
	var carry uint64
	seen := make(map[[chaincfg.TagLen]byte]struct{})
	n := 0
	for j := 0; j < chaincfg.MaxDstCount; j++ {
		if m.Dst[j].IsZero() {
			// The rest of the destination list must be zero.
			for k := j; k < chaincfg.MaxDstCount; k++ {
				if !m.Dst[k].IsZero() || m.Dst[k].Amount != 0 {
					return ruleError(ErrBadMultiDst,
						"data past end of destination list")
				}
			}
			break
		}
		if m.Dst[j].Amount == 0 {
			return ruleError(ErrBadMultiDst, "zero destination amount")
		}
		if bytes.Equal(m.Dst[j].Tag[:], tx.SrcAddr.Tag()) {
			return ruleError(ErrBadMultiDst, "destination pays source tag")
		}
		if _, dup := seen[m.Dst[j].Tag]; dup {
			return ruleError(ErrBadMultiDst, fmt.Sprintf(
				"duplicate destination tag %x", m.Dst[j].Tag))
		}
		seen[m.Dst[j].Tag] = struct{}{}
		total, carry = bits.Add64(total, m.Dst[j].Amount, 0)
		if carry != 0 {
			return ruleError(ErrBadMultiDst, "destination amounts overflow")
		}
		fees, carry = bits.Add64(fees, c.state.Mfee, 0)
		if carry != 0 {
			return ruleError(ErrBadMultiDst, "destination fees overflow")
		}
		n++
	}
	if n == 0 {
		return ruleError(ErrBadMultiDst, "empty destination list")
	}
	if total != tx.SendTotal {
		return ruleError(ErrBadMultiDst, fmt.Sprintf(
			"destination amounts sum %d, send total %d", total, tx.SendTotal))
	}
	if tx.TxFee < fees {
		return ruleError(ErrBadMultiDst, fmt.Sprintf(
			"fee %d below %d destinations at floor", tx.TxFee, n))
	}
	return nil
}

// ValidateBlock runs the full block validation over the candidate block
// file at path. On success it writes the delta file and promotes the
// input to the validated block name (unless noRename is set, in which
// case only the delta file is produced). On failure the input and any
// temp file are removed and the returned error classifies the failure.
//
// The validation streams the transaction array exactly once, feeding the
// running block and merkle hash contexts while checking each record, then
// resolves cross-transaction tag references over the in-memory working
// array before emitting deltas.
func (c *Chain) ValidateBlock(path string, noRename bool) (err error) {
	if c.store == nil {
		return errors.New("no open ledger to validate against")
	}

	// A fresh validation invalidates any prior outputs.
	os.Remove(c.path(vblockFile))
	os.Remove(c.path(ltranFile))

	ltranTmp := c.path(ltranTemp)
	defer func() {
		if err != nil {
			os.Remove(ltranTmp)
			os.Remove(path)
			log.Debugf("Validation of %s failed: %v", path, err)
		}
	}()

	fp, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "cannot read %s", path)
	}
	defer fp.Close()
	fi, err := fp.Stat()
	if err != nil {
		return errors.Wrapf(err, "cannot stat %s", path)
	}
	blocklen := fi.Size()

	// Pass 0: framing. Header length first, then the trailer through
	// the gate, then the exact file length.
	var hdrlenBuf [4]byte
	if _, err := fp.ReadAt(hdrlenBuf[:], 0); err != nil {
		return errors.Wrapf(err, "cannot read header length of %s", path)
	}
	if hdrlen := littleEndianUint32(hdrlenBuf[:]); hdrlen != wire.BlockHeaderSize {
		return ruleError(ErrBadHeaderLen, fmt.Sprintf(
			"bad hdrlen %d, want %d", hdrlen, wire.BlockHeaderSize))
	}
	if blocklen < wire.BlockHeaderSize+wire.BlockTrailerSize {
		return ruleError(ErrBadBlockLength, "block file too short")
	}

	var bt wire.BlockTrailer
	tbuf := make([]byte, wire.BlockTrailerSize)
	if _, err := fp.ReadAt(tbuf, blocklen-wire.BlockTrailerSize); err != nil {
		return errors.Wrapf(err, "cannot read trailer of %s", path)
	}
	if err := bt.Deserialize(bytes.NewReader(tbuf)); err != nil {
		return errors.Wrap(err, "cannot decode trailer")
	}
	if err := c.checkTrailerAgainstState(&bt); err != nil {
		return err
	}

	tcount := bt.Tcount
	if tcount == 0 || tcount > c.params.MaxBlockTxs {
		return ruleError(ErrBadTxCount, fmt.Sprintf("bad tcount %d", tcount))
	}
	if wire.BlockLength(tcount) != blocklen {
		return ruleError(ErrBadBlockLength, fmt.Sprintf(
			"file is %d bytes, %d transactions need %d",
			blocklen, tcount, wire.BlockLength(tcount)))
	}

	bnum := bt.Bnum
	r := bufio.NewReaderSize(fp, 1<<16)
	if _, err := fp.Seek(0, 0); err != nil {
		return errors.Wrap(err, "cannot rewind block file")
	}
	r.Reset(fp)

	var bh wire.BlockHeader
	if err := bh.Deserialize(r); err != nil {
		return errors.Wrap(err, "short header read")
	}
	if want := Reward(bnum); bh.Mreward != want {
		return ruleError(ErrBadMinerReward, fmt.Sprintf(
			"reward %d, schedule wants %d", bh.Mreward, want))
	}
	if bh.Maddr.HasTag() {
		return ruleError(ErrTaggedMinerAddr, "mining address has tag")
	}

	// The block context covers the whole file; on post-fork blocks it is
	// forked into the merkle context so the merkle root also commits to
	// the header.
	bctx := sha256.New()
	mctx := sha256.New()
	bh.Serialize(bctx)
	newYear := bnum >= c.params.V23Trigger
	if newYear {
		bh.Serialize(mctx)
	}

	// Pass 1: per-transaction validation, streaming.
	q := make([]wire.Tx, 0, tcount)
	var prevID wire.Hash
	var mfees uint64
	for tnum := uint32(0); tnum < tcount; tnum++ {
		var tx wire.Tx
		if err := tx.Deserialize(r); err != nil {
			return ruleError(ErrBadBlockLength, fmt.Sprintf(
				"bad TX read at index %d", tnum))
		}
		if tx.SrcAddr == tx.ChgAddr {
			return ruleError(ErrSrcEqChg, fmt.Sprintf(
				"src == chg at TX index %d", tnum))
		}
		isMulti := tx.IsMulti()
		if !isMulti && tx.SrcAddr == tx.DstAddr {
			return ruleError(ErrSrcEqDst, fmt.Sprintf(
				"src == dst at TX index %d", tnum))
		}
		if tx.TxFee < c.state.Mfee {
			return ruleError(ErrFeeTooLow, fmt.Sprintf(
				"fee %d at TX index %d", tx.TxFee, tnum))
		}

		tx.Serialize(bctx)
		tx.Serialize(mctx)

		txID := tx.ComputeID()
		if !txID.IsEqual(&tx.ID) {
			return ruleError(ErrBadTxID, fmt.Sprintf(
				"bad TX id at index %d", tnum))
		}
		if tnum != 0 {
			switch bytes.Compare(txID[:], prevID[:]) {
			case -1:
				return ruleError(ErrTxUnsorted, fmt.Sprintf(
					"TX id unsorted at index %d", tnum))
			case 0:
				return ruleError(ErrDuplicateTxID, fmt.Sprintf(
					"duplicate TX id at index %d", tnum))
			}
		}
		prevID = txID

		// One-time signature check. A multi-destination record is
		// signed with its flag region zeroed once the fork is live.
		msg := tx.SigMessage(isMulti && c.state.Cblocknum >= c.params.MTXTrigger)
		addr := wots.AddrFromBytes(tx.SrcAddr.SchemeWords())
		pk := wots.PkFromSig(tx.Sig[:], msg[:], tx.SrcAddr.PublicSeed(), addr)
		if !bytes.Equal(pk[:], tx.SrcAddr.PublicKey()) {
			return ruleError(ErrBadSignature, fmt.Sprintf(
				"signature failed at TX index %d", tnum))
		}

		srcLe, found, err := c.store.Find(tx.SrcAddr[:], chaincfg.AddrLen)
		if err != nil {
			return err
		}
		if !found {
			return ruleError(ErrSrcNotFound, fmt.Sprintf(
				"src not in ledger at TX index %d", tnum))
		}
		total, carry := bits.Add64(tx.SendTotal, tx.ChangeTotal, 0)
		total, carry2 := bits.Add64(total, tx.TxFee, carry)
		if carry != 0 || carry2 != 0 {
			return ruleError(ErrAmountOverflow, fmt.Sprintf(
				"total overflow at TX index %d", tnum))
		}
		if srcLe.Balance != total {
			return ruleError(ErrBadAmounts, fmt.Sprintf(
				"balance %d != total %d at TX index %d",
				srcLe.Balance, total, tnum))
		}

		if !isMulti {
			if err := ledger.CheckTags(c.store, &tx.SrcAddr, &tx.ChgAddr,
				&tx.DstAddr, &bnum, c.params.TagTrigger); err != nil {
				if ledger.IsErrorCode(err, ledger.ErrTagNotFound) ||
					ledger.IsErrorCode(err, ledger.ErrTagInUse) ||
					ledger.IsErrorCode(err, ledger.ErrTagMismatch) {
					return ruleError(ErrBadTags, fmt.Sprintf(
						"tag not valid at TX index %d: %v", tnum, err))
				}
				return err
			}
		} else if err := c.checkMultiDst(&tx); err != nil {
			return err
		}

		q = append(q, tx)

		mfees, carry = bits.Add64(mfees, tx.TxFee, 0)
		if carry != 0 {
			return errors.New("mfees overflow")
		}
	}

	// Pass 6 runs here in file order: the merkle root covers exactly the
	// bytes read so far (plus the trailer prefix on post-fork blocks),
	// so it is checked before any in-memory rewriting.
	if newYear {
		bt.SerializeMerklePrefix(mctx)
	}
	var mroot wire.Hash
	copy(mroot[:], mctx.Sum(nil))
	if !mroot.IsEqual(&bt.Mroot) {
		return ruleError(ErrBadMerkleRoot, "bad merkle root")
	}
	bt.SerializeHashPrefix(bctx)
	var bhash wire.Hash
	copy(bhash[:], bctx.Sum(nil))
	if !bhash.IsEqual(&bt.Bhash) {
		return ruleError(ErrBadBlockHash, "bad block hash")
	}

	// Pass 2: cross-transaction tag resolution. A transaction whose
	// tagged source carries its tag to change supplies the change
	// address for every other destination that referenced the tag.
	// First match in array order wins; later rewrites just overwrite
	// with the same address.
	for i := range q {
		q1 := &q[i]
		if !q1.SrcAddr.HasTag() || !q1.SrcAddr.TagEqual(&q1.ChgAddr) {
			continue
		}
		for j := range q {
			q2 := &q[j]
			if i == j || q2.IsMulti() {
				continue
			}
			if bytes.Equal(q1.SrcAddr.Tag(), q2.DstAddr.Tag()) {
				q2.DstAddr = q1.ChgAddr
			}
		}
	}

	// Pass 3: emit deltas.
	ltfp, err := os.Create(ltranTmp)
	if err != nil {
		return errors.Wrap(err, "cannot create delta temp file")
	}
	defer ltfp.Close()
	w := bufio.NewWriter(ltfp)

	emit := func(addr *wire.Address, code byte, amount uint64) error {
		lt := wire.LedgerTran{Addr: *addr, Code: code, Amount: amount}
		return lt.Serialize(w)
	}

	for i := range q {
		q1 := &q[i]
		total, carry := bits.Add64(q1.SendTotal, q1.ChangeTotal, 0)
		total, carry2 := bits.Add64(total, q1.TxFee, carry)
		if carry != 0 || carry2 != 0 {
			return errors.New("delta pass total overflow")
		}
		if err := emit(&q1.SrcAddr, wire.TranCodeDebit, total); err != nil {
			return errors.Wrap(err, "delta write failed")
		}
		if !q1.IsMulti() && q1.SendTotal != 0 {
			if err := emit(&q1.DstAddr, wire.TranCodeCredit, q1.SendTotal); err != nil {
				return errors.Wrap(err, "delta write failed")
			}
		}
		if q1.ChangeTotal != 0 {
			if err := emit(&q1.ChgAddr, wire.TranCodeCredit, q1.ChangeTotal); err != nil {
				return errors.Wrap(err, "delta write failed")
			}
		}
	}

	// Pass 4: multi-destination expansion. Each destination tag resolves
	// against the ledger, may be overridden by a same-block transaction
	// that owns the tag, and refunds to change when it resolves nowhere.
	for i := range q {
		q1 := &q[i]
		if !q1.IsMulti() {
			continue
		}
		m := wire.DecodeMultiDst(&q1.DstAddr)
		for j := 0; j < chaincfg.MaxDstCount; j++ {
			if m.Dst[j].IsZero() {
				break
			}
			le, found, err := c.store.FindTag(m.Dst[j].Tag[:])
			if err != nil {
				return err
			}
			if !found {
				if err := emit(&q1.ChgAddr, wire.TranCodeCredit,
					m.Dst[j].Amount); err != nil {
					return errors.Wrap(err, "delta write failed")
				}
				continue
			}
			resolved := le.Addr
			for k := range q {
				q2 := &q[k]
				if i == k || !q2.SrcAddr.HasTag() {
					continue
				}
				if !q2.SrcAddr.TagEqual(&q2.ChgAddr) {
					continue
				}
				if bytes.Equal(q2.SrcAddr.Tag(), m.Dst[j].Tag[:]) {
					resolved = q2.ChgAddr
					break
				}
			}
			if err := emit(&resolved, wire.TranCodeCredit, m.Dst[j].Amount); err != nil {
				return errors.Wrap(err, "delta write failed")
			}
		}
	}

	// Pass 5: the mining reward. Money from nothing.
	mfees, carry := bits.Add64(mfees, Reward(bnum), 0)
	if carry != 0 {
		return errors.New("mfees overflow")
	}
	if err := emit(&bh.Maddr, wire.TranCodeCredit, mfees); err != nil {
		return errors.Wrap(err, "delta write failed")
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "delta flush failed")
	}
	if err := ltfp.Sync(); err != nil {
		return errors.Wrap(err, "delta sync failed")
	}

	// Pass 7: commit. The delta file becomes authoritative, then the
	// input is promoted to the validated block name.
	if err := os.Rename(ltranTmp, c.path(ltranFile)); err != nil {
		return errors.Wrap(err, "failed to commit delta file")
	}
	os.Remove(c.path(vblockFile))
	if !noRename {
		if err := os.Rename(path, c.path(vblockFile)); err != nil {
			return errors.Wrap(err, "failed to promote validated block")
		}
	}
	log.Debugf("Block %d validated, %d transactions", bnum, tcount)
	return nil
}

// littleEndianUint32 decodes 4 bytes little-endian.
func littleEndianUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
