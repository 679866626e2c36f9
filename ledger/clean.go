// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bufio"
	"io"
	"math/bits"
	"os"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/wire"
)

// CleanQueue re-validates the pending-transaction file at txPath against
// the open ledger after an update changed it. Rows whose source address
// vanished, whose fee fell below the floor, or whose totals no longer
// balance are dropped; surviving multi-destination rows get their
// unresolved-tag flags refreshed. The surviving rows atomically replace
// the file.
//
// A missing queue file is not an error; there is nothing to clean.
func CleanQueue(txPath string, s *Store, params *chaincfg.Params, cblock uint64) error {
	fp, err := os.Open(txPath)
	if os.IsNotExist(err) {
		log.Debugf("Nothing to clean, %s does not exist", txPath)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open queue %s", txPath)
	}
	defer fp.Close()

	tmpPath := txPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmpPath)
	}
	w := bufio.NewWriter(out)

	r := bufio.NewReaderSize(fp, wire.TxSize)
	var tx wire.Tx
	var in, kept uint64
	for {
		err := tx.Deserialize(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			out.Close()
			os.Remove(tmpPath)
			return errors.Wrap(err, "failed to read queued transaction")
		}
		in++

		srcLe, found, err := s.Find(tx.SrcAddr[:], chaincfg.AddrLen)
		if err != nil {
			out.Close()
			os.Remove(tmpPath)
			return err
		}
		if !found {
			log.Debugf("Dropping %s: source gone", tx.ID)
			continue
		}
		if tx.TxFee < params.MinFee {
			log.Debugf("Dropping %s: fee below floor", tx.ID)
			continue
		}
		total, carry := bits.Add64(tx.SendTotal, tx.ChangeTotal, 0)
		total2, carry2 := bits.Add64(total, tx.TxFee, 0)
		if carry != 0 || carry2 != 0 {
			log.Debugf("Dropping %s: amount overflow", tx.ID)
			continue
		}
		if srcLe.Balance != total2 {
			log.Debugf("Dropping %s: totals no longer balance", tx.ID)
			continue
		}
		if tx.IsMulti() && cblock >= params.MTXTrigger {
			// Refresh the unresolved-destination flags so the block
			// constructor refunds dead tags.
			m := wire.DecodeMultiDst(&tx.DstAddr)
			for j := 0; j < chaincfg.MaxDstCount; j++ {
				if m.Dst[j].IsZero() {
					break
				}
				found, err := s.TagExists(m.Dst[j].Tag[:])
				if err != nil {
					out.Close()
					os.Remove(tmpPath)
					return err
				}
				if found {
					m.Zeros[j] = 0
				} else {
					m.Zeros[j] = 1
				}
			}
			m.Encode(&tx.DstAddr)
		} else if err := CheckTags(s, &tx.SrcAddr, &tx.ChgAddr, &tx.DstAddr,
			nil, params.TagTrigger); err != nil {
			log.Debugf("Dropping %s: %v", tx.ID, err)
			continue
		}

		if err := tx.Serialize(w); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return errors.Wrap(err, "failed to write cleaned transaction")
		}
		kept++
	}

	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to flush cleaned queue")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close cleaned queue")
	}

	if err := os.Remove(txPath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to remove %s", txPath)
	}
	if kept == 0 {
		os.Remove(tmpPath)
		log.Debugf("Queue %s emptied by cleaning", txPath)
		return nil
	}
	if err := os.Rename(tmpPath, txPath); err != nil {
		return errors.Wrapf(err, "failed to rename %s", tmpPath)
	}
	log.Debugf("Wrote %d/%d entries to cleaned queue", kept, in)
	return nil
}
