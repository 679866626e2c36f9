// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/wire"
)

// Extract copies the ledger snapshot embedded in a neo-genesis block out
// to a fresh ledger file, verifying the snapshot is strictly ascending
// with no duplicate addresses.
func Extract(ngPath, outPath string) error {
	fp, err := os.Open(ngPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open neo-genesis %s", ngPath)
	}
	defer fp.Close()

	var ngh wire.NgHeader
	r := bufio.NewReader(fp)
	if err := ngh.Deserialize(r); err != nil {
		return errors.Wrapf(err, "failed to read neo-genesis header from %s", ngPath)
	}
	if ngh.Hdrlen != wire.NgHeaderSize {
		return makeError(ErrBadFormat, fmt.Sprintf(
			"bad neo-genesis hdrlen %d in %s", ngh.Hdrlen, ngPath))
	}
	if ngh.Lbytes == 0 || ngh.Lbytes%wire.LedgerEntrySize != 0 {
		return makeError(ErrBadFormat, fmt.Sprintf(
			"bad neo-genesis ledger length %d in %s", ngh.Lbytes, ngPath))
	}

	tmpPath := outPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmpPath)
	}
	w := bufio.NewWriter(out)

	var le wire.LedgerEntry
	var prev wire.Address
	count := ngh.Lbytes / wire.LedgerEntrySize
	for i := uint64(0); i < count; i++ {
		if err := le.Deserialize(r); err != nil {
			out.Close()
			os.Remove(tmpPath)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return makeError(ErrBadFormat, fmt.Sprintf(
					"neo-genesis %s short by %d entries", ngPath, count-i))
			}
			return errors.Wrapf(err, "failed to read neo-genesis entry %d", i)
		}
		if i > 0 && bytes.Compare(le.Addr[:], prev[:]) <= 0 {
			out.Close()
			os.Remove(tmpPath)
			return makeError(ErrBadSort, fmt.Sprintf(
				"neo-genesis ledger unsorted at entry %d", i))
		}
		prev = le.Addr
		if err := le.Serialize(w); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return errors.Wrapf(err, "failed to write ledger entry %d", i)
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to flush extracted ledger")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close extracted ledger")
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to move extracted ledger to %s", outPath)
	}
	log.Debugf("Extracted %d ledger entries from %s", count, ngPath)
	return nil
}
