// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/pow"
	"github.com/MochiMore/mochimo/wire"
)

// ReadTrailer reads the last trailer of the trailer file at path.
func ReadTrailer(path string) (*wire.BlockTrailer, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open tfile %s", path)
	}
	defer fp.Close()
	fi, err := fp.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat tfile %s", path)
	}
	size := fi.Size()
	if size < wire.BlockTrailerSize || size%wire.BlockTrailerSize != 0 {
		return nil, ruleError(ErrBadTfile, fmt.Sprintf(
			"bad tfile size %d", size))
	}
	buf := make([]byte, wire.BlockTrailerSize)
	if _, err := fp.ReadAt(buf, size-wire.BlockTrailerSize); err != nil {
		return nil, errors.Wrap(err, "failed to read last trailer")
	}
	bt := new(wire.BlockTrailer)
	if err := bt.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	return bt, nil
}

// ReadTfile reads count trailers starting at block number bnum. Fewer
// trailers are returned when the file ends early.
func ReadTfile(path string, bnum uint64, count int) ([]wire.BlockTrailer, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open tfile %s", path)
	}
	defer fp.Close()
	if _, err := fp.Seek(int64(bnum)*wire.BlockTrailerSize, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to seek tfile")
	}
	r := bufio.NewReader(fp)
	out := make([]wire.BlockTrailer, 0, count)
	for i := 0; i < count; i++ {
		var bt wire.BlockTrailer
		if err := bt.Deserialize(r); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errors.Wrap(err, "failed to read trailer")
		}
		out = append(out, bt)
	}
	return out, nil
}

// AppendTrailer appends one trailer to the trailer file at path.
func AppendTrailer(path string, bt *wire.BlockTrailer) error {
	fp, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open tfile %s", path)
	}
	defer fp.Close()
	if err := bt.Serialize(fp); err != nil {
		return errors.Wrap(err, "failed to append trailer")
	}
	return errors.Wrap(fp.Sync(), "failed to sync tfile")
}

// TrimTfile truncates the trailer file back so its last trailer is block
// bnum.
func TrimTfile(path string, bnum uint64) error {
	return errors.Wrapf(
		os.Truncate(path, int64(bnum+1)*wire.BlockTrailerSize),
		"failed to trim tfile %s to block %d", path, bnum)
}

// ValidateTrailer checks that bt validly extends prev: block number and
// hash linkage, solve time continuity, the difficulty schedule, and the
// framing rules of its kind. Neo-genesis trailers mirror their
// predecessor's solve context; pseudoblock trailers must sit exactly one
// bridge window out with zeroed solve fields; regular trailers must obey
// the fee floor, transaction bound and solve window.
func ValidateTrailer(bt, prev *wire.BlockTrailer, now uint32, params *chaincfg.Params) error {
	if bt.Bnum != prev.Bnum+1 {
		return ruleError(ErrBadBlockNum, fmt.Sprintf(
			"trailer %d does not follow %d", bt.Bnum, prev.Bnum))
	}
	if !bt.Phash.IsEqual(&prev.Bhash) {
		return ruleError(ErrBadPrevHash, fmt.Sprintf(
			"trailer %d does not link to previous hash", bt.Bnum))
	}

	// A neo-genesis checkpoint embeds state rather than solving work; its
	// trailer carries its predecessor's solve context forward unchanged.
	if bt.Bnum%256 == 0 {
		switch {
		case bt.Tcount != 0:
			return ruleError(ErrBadNeoGenesis, "neo-genesis with transactions")
		case bt.Time0 != prev.Time0 || bt.Stime != prev.Stime:
			return ruleError(ErrBadNeoGenesis, "neo-genesis solve times changed")
		case bt.Difficulty != prev.Difficulty:
			return ruleError(ErrBadNeoGenesis, "neo-genesis difficulty changed")
		}
		return nil
	}

	if bt.Time0 != prev.Stime {
		return ruleError(ErrTimeTooOld, fmt.Sprintf(
			"trailer %d time0 does not continue from previous solve", bt.Bnum))
	}
	if bt.Difficulty != NextDifficulty(prev, params) {
		return ruleError(ErrDifficultyMismatch, fmt.Sprintf(
			"trailer %d difficulty %d off schedule", bt.Bnum, bt.Difficulty))
	}

	if bt.IsPseudo() {
		var zero [wire.HashSize]byte
		switch {
		case bt.Mfee != 0:
			return ruleError(ErrBadTfile, "pseudoblock carries a fee")
		case !bytes.Equal(bt.Mroot[:], zero[:]) || !bytes.Equal(bt.Nonce[:], zero[:]):
			return ruleError(ErrBadTfile, "pseudoblock carries solve data")
		case bt.Stime != bt.Time0+params.BridgeTime:
			return ruleError(ErrBadTfile, "pseudoblock off the bridge window")
		}
		return nil
	}

	if bt.Mfee < params.MinFee {
		return ruleError(ErrFeeTooLow, fmt.Sprintf(
			"trailer %d fee %d below floor", bt.Bnum, bt.Mfee))
	}
	if bt.Tcount > params.MaxBlockTxs {
		return ruleError(ErrBadTxCount, fmt.Sprintf(
			"trailer %d claims %d transactions", bt.Bnum, bt.Tcount))
	}
	if bt.Stime <= bt.Time0 {
		return ruleError(ErrTimeTooOld, fmt.Sprintf(
			"trailer %d solve time not after start", bt.Bnum))
	}
	if bt.Stime > now+params.ClockSkew {
		return ruleError(ErrTimeTooNew, fmt.Sprintf(
			"trailer %d solve time in the future", bt.Bnum))
	}
	return nil
}

// CheckPoW dispatches to the proof-of-work predicate of the trailer's
// generation, honoring the Boxing-Day bypass. Pseudoblocks and
// neo-genesis trailers carry no proof and must not be passed in.
func CheckPoW(bt *wire.BlockTrailer, params *chaincfg.Params) error {
	if bt.Bnum > params.V24Trigger {
		if bt.Bnum == params.BoxingDayBlock {
			if !bytes.Equal(bt.Bhash[:], params.BoxingDayHash[:]) {
				return ruleError(ErrBadProofOfWork,
					"wrong hash on proof-bypass block")
			}
			return nil
		}
		if !pow.Peach(bt) {
			return ruleError(ErrBadProofOfWork, fmt.Sprintf(
				"memory-hard proof failed on block %d", bt.Bnum))
		}
		return nil
	}
	if !pow.Trigg(bt) {
		return ruleError(ErrBadProofOfWork, fmt.Sprintf(
			"legacy proof failed on block %d", bt.Bnum))
	}
	return nil
}

// WeighTfile accumulates chain weight over the trailer file through block
// upto inclusive. Every trailer above the genesis block contributes.
func WeighTfile(path string, upto uint64, params *chaincfg.Params) (Weight, error) {
	var weight Weight
	fp, err := os.Open(path)
	if err != nil {
		return weight, errors.Wrapf(err, "failed to open tfile %s", path)
	}
	defer fp.Close()

	r := bufio.NewReaderSize(fp, 1<<16)
	var bt wire.BlockTrailer
	for {
		if err := bt.Deserialize(r); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return weight, nil
			}
			return weight, errors.Wrap(err, "failed to read trailer")
		}
		if bt.Bnum == 0 {
			continue
		}
		if bt.Bnum > upto {
			return weight, nil
		}
		weight.Add(bt.Difficulty, bt.Bnum, params)
	}
}

// ValidateTfile walks the whole trailer file: the first trailer must be
// the genesis block, every following trailer must validate against its
// predecessor, and every trailer that carries transactions must satisfy
// its generation's proof of work. It returns the final block number and
// the accumulated weight.
func ValidateTfile(path string, now uint32, params *chaincfg.Params) (uint64, Weight, error) {
	var weight Weight
	fp, err := os.Open(path)
	if err != nil {
		return 0, weight, errors.Wrapf(err, "failed to open tfile %s", path)
	}
	defer fp.Close()
	fi, err := fp.Stat()
	if err != nil {
		return 0, weight, errors.Wrapf(err, "failed to stat tfile %s", path)
	}
	if fi.Size() < wire.BlockTrailerSize || fi.Size()%wire.BlockTrailerSize != 0 {
		return 0, weight, ruleError(ErrBadTfile, fmt.Sprintf(
			"bad tfile size %d", fi.Size()))
	}

	r := bufio.NewReaderSize(fp, 1<<16)
	var prev wire.BlockTrailer
	if err := prev.Deserialize(r); err != nil {
		return 0, weight, errors.Wrap(err, "failed to read genesis trailer")
	}
	if prev.Bnum != 0 {
		return 0, weight, ruleError(ErrBadTfile, "tfile does not start at genesis")
	}

	var bt wire.BlockTrailer
	for {
		if err := bt.Deserialize(r); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return prev.Bnum, weight, nil
			}
			return 0, weight, errors.Wrap(err, "failed to read trailer")
		}
		if err := ValidateTrailer(&bt, &prev, now, params); err != nil {
			return 0, weight, err
		}
		if bt.Tcount != 0 {
			if err := CheckPoW(&bt, params); err != nil {
				return 0, weight, err
			}
		}
		weight.Add(bt.Difficulty, bt.Bnum, params)
		prev = bt
	}
}

// NgVal validates a neo-genesis block file: framing, the embedded ledger
// snapshot's sort, and the trailer's identity.
func NgVal(path string, bnum uint64) error {
	if bnum%256 != 0 {
		return ruleError(ErrBadNeoGenesis, fmt.Sprintf(
			"block %d is not a checkpoint number", bnum))
	}
	fp, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open neo-genesis %s", path)
	}
	defer fp.Close()
	fi, err := fp.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat neo-genesis %s", path)
	}

	r := bufio.NewReaderSize(fp, 1<<16)
	var ngh wire.NgHeader
	if err := ngh.Deserialize(r); err != nil {
		return errors.Wrap(err, "failed to read neo-genesis header")
	}
	if ngh.Hdrlen != wire.NgHeaderSize {
		return ruleError(ErrBadNeoGenesis, fmt.Sprintf(
			"bad neo-genesis hdrlen %d", ngh.Hdrlen))
	}
	if ngh.Lbytes == 0 || ngh.Lbytes%wire.LedgerEntrySize != 0 {
		return ruleError(ErrBadNeoGenesis, fmt.Sprintf(
			"bad neo-genesis ledger length %d", ngh.Lbytes))
	}
	want := int64(wire.NgHeaderSize) + int64(ngh.Lbytes) + wire.BlockTrailerSize
	if fi.Size() != want {
		return ruleError(ErrBadNeoGenesis, fmt.Sprintf(
			"neo-genesis is %d bytes, want %d", fi.Size(), want))
	}

	var le wire.LedgerEntry
	var prev wire.Address
	count := ngh.Lbytes / wire.LedgerEntrySize
	for i := uint64(0); i < count; i++ {
		if err := le.Deserialize(r); err != nil {
			return errors.Wrapf(err, "failed to read snapshot entry %d", i)
		}
		if i > 0 && bytes.Compare(le.Addr[:], prev[:]) <= 0 {
			return ruleError(ErrBadNeoGenesis, fmt.Sprintf(
				"snapshot unsorted at entry %d", i))
		}
		prev = le.Addr
	}

	var bt wire.BlockTrailer
	if err := bt.Deserialize(r); err != nil {
		return errors.Wrap(err, "failed to read neo-genesis trailer")
	}
	if bt.Bnum != bnum {
		return ruleError(ErrBadNeoGenesis, fmt.Sprintf(
			"neo-genesis trailer is block %d, want %d", bt.Bnum, bnum))
	}
	if bt.Tcount != 0 {
		return ruleError(ErrBadNeoGenesis, "neo-genesis with transactions")
	}
	return nil
}
