// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/ledger"
	"github.com/MochiMore/mochimo/wire"
)

// prevNeoGenesis returns the neo-genesis checkpoint the chain must rebuild
// from to reach bnum: the epoch boundary below the one containing it.
func prevNeoGenesis(bnum uint64) uint64 {
	ng := bnum &^ 0xff
	if ng < 256 {
		return 0
	}
	return ng - 256
}

// ResetChain re-derives the chain state from the trailer file: tip
// number and hashes from the last trailer, difficulty from the schedule,
// and cumulative weight from a full reweigh. Archived blocks above the
// trailer file are deleted.
func (c *Chain) ResetChain() error {
	bt, err := ReadTrailer(c.path(tfileFile))
	if err != nil {
		return err
	}

	// Delete archived blocks the trailer file no longer covers.
	for bnum := bt.Bnum + 1; ; bnum++ {
		p := c.bcPath(bnum)
		if _, err := os.Stat(p); err != nil {
			break
		}
		if err := os.Remove(p); err != nil {
			return errors.Wrapf(err, "failed to remove overrun block %d", bnum)
		}
	}

	s := &c.state
	s.Cblocknum = bt.Bnum
	s.Cblockhash = bt.Bhash
	s.Prevhash = bt.Phash
	s.Time0 = bt.Stime
	s.Difficulty = NextDifficulty(bt, c.params)
	s.Mfee = c.params.MinFee

	weight, err := WeighTfile(c.path(tfileFile), bt.Bnum, c.params)
	if err != nil {
		return err
	}
	s.Weight = weight
	return c.persistState()
}

// Resync rebuilds chain state from a quorum of peers that advertised the
// same (highBnum, highWeight) tip: fetch and validate a trailer file,
// rebuild the ledger from the newest reachable neo-genesis checkpoint,
// then catch the block chain up in parallel. Peers that fail are dropped
// from the quorum as it goes.
func (c *Chain) Resync(quorum []string, highBnum uint64, highWeight Weight) error {
	if c.fetcher == nil {
		return errors.New("no fetcher configured")
	}

	// Fetch a candidate trailer file, dropping quorum members that fail.
	syncLog.Infof("Fetching trailer file, %d peers in quorum", len(quorum))
	for {
		if !c.Running() {
			return errors.New("resync interrupted")
		}
		if len(quorum) == 0 {
			return ruleError(ErrNoQuorum, "trailer fetch emptied the quorum")
		}
		os.Remove(c.path(tfileFile))
		err := c.fetcher.FetchTfile(quorum[0], c.path(tfileTemp))
		if err == nil {
			if err = os.Rename(c.path(tfileTemp), c.path(tfileFile)); err == nil {
				break
			}
			syncLog.Warnf("Failed to move trailer file: %v", err)
		}
		syncLog.Debugf("Dropping quorum member %s: %v", quorum[0], err)
		quorum = quorum[1:]
	}

	// Validate it end to end and against the advertisement.
	bnum, weight, err := ValidateTfile(c.path(tfileFile), c.now(), c.params)
	if err != nil {
		return err
	}
	if weight.Compare(&highWeight) < 0 || bnum < highBnum {
		return ruleError(ErrLowWeight, fmt.Sprintf(
			"trailer file reaches block %d below advertised %d", bnum, highBnum))
	}
	syncLog.Debugf("Trailer file valid through block %d", bnum)

	// Rebuild the ledger from the newest reachable checkpoint.
	ng := prevNeoGenesis(highBnum)
	if err := TrimTfile(c.path(tfileFile), ng); err != nil {
		return err
	}
	c.closeLedger()
	if ng != 0 {
		syncLog.Infof("Downloading neo-genesis block 0x%x", ng)
		for {
			if !c.Running() {
				return errors.New("resync interrupted")
			}
			if len(quorum) == 0 {
				return ruleError(ErrNoQuorum, "neo-genesis fetch emptied the quorum")
			}
			os.Remove(c.path(ngblockFile))
			err := c.fetcher.FetchBlock(quorum[0], ng, c.path(ngblockFile))
			if err == nil {
				if err = NgVal(c.path(ngblockFile), ng); err == nil {
					break
				}
				syncLog.Warnf("Bad neo-genesis block from %s: %v", quorum[0], err)
				os.Remove(c.path(ngblockFile))
			}
			quorum = quorum[1:]
		}
		if err := os.Rename(c.path(ngblockFile), c.bcPath(ng)); err != nil {
			return errors.Wrap(err, "failed to archive neo-genesis block")
		}
		if err := ledger.Extract(c.bcPath(ng), c.path(ledgerFile)); err != nil {
			return err
		}
	} else if err := ledger.Extract(c.bcPath(0), c.path(ledgerFile)); err != nil {
		return err
	}

	if err := c.ResetChain(); err != nil {
		return err
	}
	if err := c.openLedger(); err != nil {
		return err
	}

	if err := c.Catchup(quorum, highBnum); err != nil {
		return err
	}
	syncLog.Infof("Resync complete at block %d", c.state.Cblocknum)
	return nil
}

// fetchResult is one download worker's report.
type fetchResult struct {
	peer string
	bnum uint64
	err  error
}

// Catchup downloads blocks (Cblocknum, target] from up to MaxQuorum
// peers in parallel and applies them strictly in ascending order.
// Neo-genesis numbers are skipped; checkpoints are derived, not fetched.
// Downloads land in per-block temp files; a block waits on disk until
// its predecessor is applied.
func (c *Chain) Catchup(peers []string, target uint64) error {
	if c.fetcher == nil {
		return errors.New("no fetcher configured")
	}
	n := len(peers)
	if n > c.params.MaxQuorum {
		n = c.params.MaxQuorum
	}
	if n == 0 {
		return ruleError(ErrNoQuorum, "no peers to catch up from")
	}

	blockPath := func(bnum uint64) string {
		return c.path(bcName(bnum))
	}

	// Download bookkeeping. floor is the highest applied block number;
	// claimed blocks are being fetched; downloaded blocks sit on disk
	// waiting for their predecessors. All three are guarded by one
	// mutex so workers never race the serial apply loop.
	var mtx sync.Mutex
	floor := c.state.Cblocknum
	claimed := make(map[uint64]struct{})
	downloaded := make(map[uint64]struct{})
	peerOf := make(map[uint64]string)

	claim := func(peer string) (uint64, bool) {
		mtx.Lock()
		defer mtx.Unlock()
		for bnum := floor + 1; bnum <= target; bnum++ {
			if bnum%256 == 0 {
				continue
			}
			if _, busy := claimed[bnum]; busy {
				continue
			}
			if _, have := downloaded[bnum]; have {
				continue
			}
			claimed[bnum] = struct{}{}
			peerOf[bnum] = peer
			return bnum, true
		}
		return 0, false
	}

	results := make(chan fetchResult, n)
	for i := 0; i < n; i++ {
		peer := peers[i]
		spawn(func() {
			for c.Running() {
				bnum, ok := claim(peer)
				if !ok {
					break
				}
				tmp := blockPath(bnum) + ".tmp"
				err := c.fetcher.FetchBlock(peer, bnum, tmp)
				if err == nil {
					err = os.Rename(tmp, blockPath(bnum))
				}
				mtx.Lock()
				delete(claimed, bnum)
				if err == nil {
					downloaded[bnum] = struct{}{}
				} else {
					delete(peerOf, bnum)
				}
				mtx.Unlock()
				if err != nil {
					os.Remove(tmp)
					results <- fetchResult{peer: peer, bnum: bnum, err: err}
					return // kicked from the quorum
				}
				results <- fetchResult{peer: peer, bnum: bnum}
			}
			results <- fetchResult{peer: peer, err: errDone}
		})
	}

	// Consume strictly in order while workers race ahead.
	applyReady := func() error {
		for c.Running() && c.state.Cblocknum < target {
			bnum := c.state.Cblocknum + 1
			if bnum%256 == 0 {
				bnum++
			}
			mtx.Lock()
			_, ready := downloaded[bnum]
			peer := peerOf[bnum]
			mtx.Unlock()
			if !ready {
				return nil
			}
			if err := c.Update(blockPath(bnum), peer); err != nil {
				return errors.Wrapf(err, "failed to update block %d", bnum)
			}
			mtx.Lock()
			delete(downloaded, bnum)
			delete(peerOf, bnum)
			floor = c.state.Cblocknum
			mtx.Unlock()
		}
		return nil
	}

	live := n
	var updateErr error
	for live > 0 {
		res := <-results
		switch {
		case res.err == errDone:
			live--
		case res.err != nil:
			syncLog.Debugf("Dropping catchup peer %s at block %d: %v",
				res.peer, res.bnum, res.err)
			live--
		}
		if updateErr == nil {
			if updateErr = applyReady(); updateErr != nil {
				c.Stop()
			}
		}
	}
	if updateErr != nil {
		return updateErr
	}
	if err := applyReady(); err != nil {
		return err
	}
	if c.state.Cblocknum < target {
		return ruleError(ErrNoQuorum, fmt.Sprintf(
			"catchup stalled at block %d of %d", c.state.Cblocknum, target))
	}
	return nil
}

// errDone marks a worker's clean exit on the results channel.
var errDone = errors.New("worker done")

// CheckProof validates a peer's trailer-proof array against our trailer
// file: the low trailer must match ours byte for byte, every subsequent
// trailer must validate against its predecessor (with proof of work where
// it carries transactions), and the weight accumulated from our past
// weight at the low trailer must equal the peer's advertisement. The
// returned split block is the first proof trailer that matches our
// trailer file at the same height.
func (c *Chain) CheckProof(proof []wire.BlockTrailer, advWeight Weight) (uint64, error) {
	if len(proof) != chaincfg.TrailerProofCount {
		return 0, ruleError(ErrBadProof, fmt.Sprintf(
			"proof carries %d trailers, want %d",
			len(proof), chaincfg.TrailerProofCount))
	}

	ours, err := ReadTfile(c.path(tfileFile), proof[0].Bnum,
		chaincfg.TrailerProofCount)
	if err != nil {
		return 0, err
	}
	if len(ours) == 0 || ours[0] != proof[0] {
		return 0, ruleError(ErrBadProof, "proof base does not match our chain")
	}

	weight, err := WeighTfile(c.path(tfileFile), proof[0].Bnum, c.params)
	if err != nil {
		return 0, err
	}

	var split uint64
	now := c.now()
	for j := 1; j < len(proof); j++ {
		bt, prev := &proof[j], &proof[j-1]
		if err := ValidateTrailer(bt, prev, now, c.params); err != nil {
			return 0, errors.Wrapf(err, "proof trailer %d", j)
		}
		if bt.Tcount != 0 {
			if err := CheckPoW(bt, c.params); err != nil {
				return 0, errors.Wrapf(err, "proof trailer %d", j)
			}
		}
		weight.Add(bt.Difficulty, bt.Bnum, c.params)
		if split == 0 && j < len(ours) && proof[j] == ours[j] {
			split = bt.Bnum
		}
	}

	if weight.Compare(&advWeight) != 0 {
		return 0, ruleError(ErrBadProof, "proof weight is not as advertised")
	}
	if split == 0 {
		return 0, ruleError(ErrBadProof, "no split block in proof")
	}
	return split, nil
}

// Syncup merges a heavier divergent chain: back up current state to the
// split directory, rebuild from the last checkpoint before the split,
// replay our own blocks below it, then download and apply the peer's
// blocks through their advertised tip. Any failure restores the backed-up
// state.
func (c *Chain) Syncup(split, peerBnum uint64, peer string) error {
	if c.fetcher == nil {
		return errors.New("no fetcher configured")
	}
	syncLog.Infof("Syncup: split at block %d, peer tip %d", split, peerBnum)

	spdir := c.path(spDir)
	if err := os.MkdirAll(spdir, 0700); err != nil {
		return errors.Wrap(err, "failed to create split directory")
	}
	if err := clearDir(spdir); err != nil {
		return err
	}

	c.closeLedger()
	if err := copyFile(c.path(tfileFile), filepath.Join(spdir, tfileFile)); err != nil {
		return err
	}
	if err := copyFile(c.path(ledgerFile), filepath.Join(spdir, ledgerFile)); err != nil {
		return err
	}
	if err := moveBlocks(c.path(bcDir), spdir); err != nil {
		return err
	}

	restore := func(cause error) error {
		syncLog.Warnf("Bad sync, restoring saved state: %v", cause)
		c.closeLedger()
		os.Rename(filepath.Join(spdir, tfileFile), c.path(tfileFile))
		os.Rename(filepath.Join(spdir, ledgerFile), c.path(ledgerFile))
		clearDir(c.path(bcDir))
		moveBlocks(spdir, c.path(bcDir))
		if err := c.ResetChain(); err != nil {
			return err
		}
		if err := c.openLedger(); err != nil {
			return err
		}
		return cause
	}

	// Rebuild from the checkpoint below the split.
	ng := prevNeoGenesis(split)
	if err := os.Remove(c.path(ledgerFile)); err != nil {
		return restore(errors.Wrap(err, "failed to delete ledger"))
	}
	if err := TrimTfile(c.path(tfileFile), ng); err != nil {
		return restore(err)
	}
	ngName := bcName(ng)
	if err := copyFile(filepath.Join(spdir, ngName), c.bcPath(ng)); err != nil {
		return restore(err)
	}
	if err := ledger.Extract(c.bcPath(ng), c.path(ledgerFile)); err != nil {
		return restore(err)
	}
	if err := c.ResetChain(); err != nil {
		return restore(err)
	}
	if err := c.openLedger(); err != nil {
		return restore(err)
	}

	// Replay our own side below the split.
	tmpBlock := c.path("spblock.tmp")
	for bnum := ng + 1; bnum < split; bnum++ {
		if bnum%256 == 0 {
			continue
		}
		if err := copyFile(filepath.Join(spdir, bcName(bnum)), tmpBlock); err != nil {
			return restore(err)
		}
		if err := c.Update(tmpBlock, ""); err != nil {
			return restore(errors.Wrapf(err, "failed to replay our block %d", bnum))
		}
	}

	// Apply the peer's side from the split on.
	bnum := split
	for retries := 0; ; {
		if !c.Running() {
			return restore(errors.New("syncup interrupted"))
		}
		if bnum%256 == 0 {
			bnum++
		}
		dst := c.path(bcName(bnum))
		if err := c.fetcher.FetchBlock(peer, bnum, dst); err != nil {
			if bnum > peerBnum {
				break // peer has nothing further; done
			}
			retries++
			if retries >= c.params.FetchRetryLimit {
				return restore(errors.Wrapf(err,
					"failed downloading block %d from %s", bnum, peer))
			}
			time.Sleep(time.Second)
			continue
		}
		if err := c.Update(dst, peer); err != nil {
			return restore(errors.Wrapf(err, "failed to update peer block %d", bnum))
		}
		bnum++
	}

	// Keep the genesis archive; drop the rest of the backup.
	copyFile(filepath.Join(spdir, bcName(0)), c.bcPath(0))
	clearDir(spdir)

	weight, err := WeighTfile(c.path(tfileFile), c.state.Cblocknum, c.params)
	if err != nil {
		return err
	}
	c.state.Weight = weight
	if err := c.persistState(); err != nil {
		return err
	}
	syncLog.Infof("Syncup complete at block %d", c.state.Cblocknum)
	return nil
}

// Contention decides what to do with a peer's heavier-chain
// advertisement. It returns true when the caller should simply fetch the
// advertised block (it extends our tip); otherwise it resolves the
// divergence itself through catchup or syncup and returns false.
func (c *Chain) Contention(peer string, peerBnum uint64, peerWeight Weight,
	peerPhash wire.Hash, proof []wire.BlockTrailer) (bool, error) {

	if peerWeight.Compare(&c.state.Weight) <= 0 {
		log.Debugf("Ignoring low weight from %s", peer)
		return false, nil
	}
	// A checkpoint number tip is never honestly advertised.
	if byte(peerBnum) == 0 {
		c.pinkPeer(peer)
		return false, nil
	}
	if peerPhash.IsEqual(&c.state.Cblockhash) {
		return true, nil
	}

	// A short gap on our own chain resolves with a plain catchup when
	// the proof shows our tip hash at the right depth.
	gap := peerBnum - c.state.Cblocknum
	if gap > 1 && gap <= uint64(chaincfg.TrailerProofCount) &&
		len(proof) == chaincfg.TrailerProofCount {
		anchor := proof[uint64(chaincfg.TrailerProofCount)-gap]
		if anchor.Phash.IsEqual(&c.state.Cblockhash) {
			err := c.Catchup([]string{peer}, peerBnum)
			if err == nil {
				return false, nil
			}
			if Classify(err) == ClassBadDrop {
				return false, nil // punished; nothing else to do
			}
		}
	}

	// Catchup failed or never applied; check the proof and weight.
	split, err := c.CheckProof(proof, peerWeight)
	if err != nil {
		log.Debugf("Ignoring bad proof from %s: %v", peer, err)
		return false, nil
	}
	return false, c.Syncup(split, peerBnum, peer)
}

// clearDir removes every regular file directly inside dir.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return errors.Wrapf(err, "failed to remove %s", e.Name())
		}
	}
	return nil
}

// moveBlocks moves every archived block file from src into dst.
func moveBlocks(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", src)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) < 5 || name[0] != 'b' {
			continue
		}
		if err := os.Rename(filepath.Join(src, name),
			filepath.Join(dst, name)); err != nil {
			return errors.Wrapf(err, "failed to move %s", name)
		}
	}
	return nil
}

// copyFile copies src to dst, replacing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return errors.Wrapf(out.Close(), "failed to close %s", dst)
}
