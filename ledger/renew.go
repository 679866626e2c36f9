// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/wire"
)

// Renew runs the Sanctuary renewal over the ledger at path: every balance
// is reduced by the sanctuary fee, rows that underflow are dropped, and
// rows whose remaining balance does not exceed mfee are dropped with
// them. The ledger must be closed; the result atomically replaces the
// file.
//
// A zero sanctuary is a no-op.
func Renew(path string, sanctuary, mfee uint64) error {
	if sanctuary == 0 {
		return nil
	}

	fp, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open ledger %s", path)
	}
	defer fp.Close()

	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmpPath)
	}

	r := bufio.NewReader(fp)
	w := bufio.NewWriter(out)
	var le wire.LedgerEntry
	var total, kept uint64
	for {
		err := le.Deserialize(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			out.Close()
			os.Remove(tmpPath)
			return errors.Wrap(err, "failed to read ledger entry")
		}
		total++
		if le.Balance < sanctuary {
			continue
		}
		le.Balance -= sanctuary
		if le.Balance <= mfee {
			continue
		}
		if err := le.Serialize(w); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return errors.Wrap(err, "failed to write renewed entry")
		}
		kept++
	}
	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to flush renewed ledger")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close renewed ledger")
	}
	if err := os.Remove(path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "failed to rename %s", tmpPath)
	}
	log.Infof("%d citizens renewed out of %d", total-kept, total)
	return nil
}
