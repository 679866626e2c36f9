// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/ledger"
	"github.com/MochiMore/mochimo/wire"
)

// pseudoBlockSize is the byte length of a pseudoblock file: a bare
// header length field and the trailer.
const pseudoBlockSize = 4 + wire.BlockTrailerSize

// Update runs a candidate block file through validation and applies it to
// chain state: the validator emits the delta file, the updater merges it
// into the ledger, the trailer is appended to the trailer file, and the
// chain state advances and persists. The validated block is archived
// under the block directory.
//
// peer names the peer the block came from, for pink-listing on provably
// malicious failures; it is empty for blocks replayed from our own
// archive.
func (c *Chain) Update(path string, peer string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "no block file %s", path)
	}

	// A transactionless bridge block carries no ledger effects; its
	// trailer alone advances the chain.
	if fi.Size() == pseudoBlockSize {
		return c.updatePseudo(path)
	}

	if err := c.ValidateBlock(path, false); err != nil {
		if Classify(err) == ClassBadDrop {
			c.pinkPeer(peer)
		}
		return err
	}

	bt, err := readBlockTrailer(c.path(vblockFile))
	if err != nil {
		return err
	}

	// The updater owns the ledger file exclusively while it runs.
	c.closeLedger()
	err = ledger.Update(c.path(ledgerFile), c.path(ltranFile),
		c.params.SortBufSize, c.state.Mfee)
	if err != nil {
		if ledger.IsMalicious(err) {
			c.pinkPeer(peer)
		}
		c.openLedger()
		return err
	}
	if err := c.openLedger(); err != nil {
		return err
	}

	return c.advance(bt, c.path(vblockFile))
}

// updatePseudo applies a pseudoblock: trailer-gate checks minus the
// proof of work, and no ledger update.
func (c *Chain) updatePseudo(path string) error {
	fp, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "cannot read pseudoblock %s", path)
	}
	defer fp.Close()

	var buf [pseudoBlockSize]byte
	if _, err := fp.ReadAt(buf[:], 0); err != nil {
		return errors.Wrap(err, "cannot read pseudoblock")
	}
	if hdrlen := littleEndianUint32(buf[:4]); hdrlen != 4 {
		return ruleError(ErrBadHeaderLen, fmt.Sprintf(
			"bad pseudoblock hdrlen %d", hdrlen))
	}
	var bt wire.BlockTrailer
	if err := bt.Deserialize(bytes.NewReader(buf[4:])); err != nil {
		return errors.Wrap(err, "cannot decode pseudoblock trailer")
	}

	s := &c.state
	var zero [wire.HashSize]byte
	switch {
	case !bt.IsPseudo():
		return ruleError(ErrBadTxCount, "pseudoblock with transactions")
	case bt.Bnum != s.Cblocknum+1:
		return ruleError(ErrBadBlockNum, fmt.Sprintf(
			"pseudoblock number %d, want %d", bt.Bnum, s.Cblocknum+1))
	case !bt.Phash.IsEqual(&s.Cblockhash):
		return ruleError(ErrBadPrevHash, "pseudoblock does not link to tip")
	case bt.Difficulty != s.Difficulty:
		return ruleError(ErrDifficultyMismatch, "pseudoblock difficulty mismatch")
	case bt.Time0 != s.Time0:
		return ruleError(ErrTimeTooOld, "pseudoblock start time mismatch")
	case bt.Stime != bt.Time0+c.params.BridgeTime:
		return ruleError(ErrBadTfile, "pseudoblock off the bridge window")
	case bt.Mfee != 0,
		!bytes.Equal(bt.Mroot[:], zero[:]),
		!bytes.Equal(bt.Nonce[:], zero[:]):
		return ruleError(ErrBadTfile, "pseudoblock carries solve data")
	}

	return c.advance(&bt, path)
}

// advance appends the trailer, moves the chain state forward and archives
// the block file.
func (c *Chain) advance(bt *wire.BlockTrailer, blockPath string) error {
	if err := AppendTrailer(c.path(tfileFile), bt); err != nil {
		return err
	}

	s := &c.state
	s.Prevhash = s.Cblockhash
	s.Cblockhash = bt.Bhash
	s.Cblocknum = bt.Bnum
	s.Time0 = bt.Stime
	s.Difficulty = NextDifficulty(bt, c.params)
	s.Weight.Add(bt.Difficulty, bt.Bnum, c.params)
	if err := c.persistState(); err != nil {
		return err
	}

	if err := os.Rename(blockPath, c.bcPath(bt.Bnum)); err != nil {
		return errors.Wrapf(err, "failed to archive block %d", bt.Bnum)
	}

	// The ledger just changed under the pending queue; re-validate it.
	if c.store != nil {
		if err := ledger.CleanQueue(c.path(txcleanFile), c.store,
			c.params, s.Cblocknum); err != nil {
			log.Warnf("Queue cleaning after block %d failed: %v", bt.Bnum, err)
		}
	}

	// The Sanctuary renewal fires once, when the chain reaches the
	// agreed last day.
	if c.sanctuary > 0 && bt.Bnum == c.lastday {
		log.Infof("Lastday 0x%x. Carousel begins", c.lastday)
		c.closeLedger()
		if err := ledger.Renew(c.path(ledgerFile), c.sanctuary, s.Mfee); err != nil {
			c.openLedger()
			return err
		}
		if err := c.openLedger(); err != nil {
			return err
		}
	}

	// Crossing into a new epoch retires the epoch pink list.
	if c.pink != nil && bt.Bnum%256 == 0 {
		if err := c.pink.PurgeEpoch(); err != nil {
			log.Warnf("Epoch pink list purge failed: %v", err)
		}
	}

	log.Infof("Block %d updated, hash %s", bt.Bnum, bt.Bhash)

	// The last block of an epoch is followed by a locally generated
	// neo-genesis checkpoint embedding the ledger.
	if byte(bt.Bnum) == 0xff {
		return c.createNeoGenesis(bt)
	}
	return nil
}

// createNeoGenesis snapshots the ledger into the next checkpoint block,
// appends its trailer and advances the chain over it. Every node
// generates the identical checkpoint from its own state; checkpoints are
// derived, never mined.
func (c *Chain) createNeoGenesis(prev *wire.BlockTrailer) error {
	ledgerData, err := os.ReadFile(c.path(ledgerFile))
	if err != nil {
		return errors.Wrap(err, "cannot snapshot ledger")
	}

	ngh := wire.NgHeader{
		Hdrlen: wire.NgHeaderSize,
		Lbytes: uint64(len(ledgerData)),
	}
	bt := wire.BlockTrailer{
		Phash:      prev.Bhash,
		Bnum:       prev.Bnum + 1,
		Time0:      prev.Time0,
		Difficulty: prev.Difficulty,
		Stime:      prev.Stime,
	}
	bt.Mroot = wire.Hash(sha256.Sum256(ledgerData))

	// The checkpoint's hash commits to the header, the snapshot and the
	// trailer prefix, so every node derives the same block.
	bctx := sha256.New()
	ngh.Serialize(bctx)
	bctx.Write(ledgerData)
	bt.SerializeHashPrefix(bctx)
	copy(bt.Bhash[:], bctx.Sum(nil))

	tmpPath := c.path(ngblockFile)
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "cannot create neo-genesis temp")
	}
	werr := ngh.Serialize(out)
	if werr == nil {
		_, werr = out.Write(ledgerData)
	}
	if werr == nil {
		werr = bt.Serialize(out)
	}
	if werr == nil {
		werr = out.Sync()
	}
	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmpPath)
		return errors.Wrap(werr, "cannot write neo-genesis block")
	}

	return c.advance(&bt, tmpPath)
}

// readBlockTrailer reads the trailer at the end of a block file.
func readBlockTrailer(path string) (*wire.BlockTrailer, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}
	defer fp.Close()
	fi, err := fp.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot stat %s", path)
	}
	if fi.Size() < wire.BlockTrailerSize {
		return nil, ruleError(ErrBadBlockLength, "file too short for a trailer")
	}
	buf := make([]byte, wire.BlockTrailerSize)
	if _, err := fp.ReadAt(buf, fi.Size()-wire.BlockTrailerSize); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer")
	}
	bt := new(wire.BlockTrailer)
	if err := bt.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	return bt, nil
}
