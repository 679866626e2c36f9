// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain implements the block-and-ledger engine: the trailer gate,
// the block validator, block update orchestration and the chain sync
// engine. All chain state lives in flat files under one data directory;
// every mutation is write-temp-then-rename.
package chain

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/ledger"
	"github.com/MochiMore/mochimo/pinklist"
)

// Well-known file names inside the data directory.
const (
	stateFile   = "global.dat"
	ledgerFile  = "ledger.dat"
	ltranFile   = "ltran.dat"
	ltranTemp   = "ltran.tmp"
	tfileFile   = "tfile.dat"
	tfileTemp   = "tfile.tmp"
	rblockFile  = "rblock.dat"
	vblockFile  = "vblock.dat"
	ngblockFile = "ngblock.dat"
	txcleanFile = "txclean.dat"

	// bcDir archives validated blocks; spDir backs up chain state while
	// a divergent chain is being merged.
	bcDir = "bc"
	spDir = "split"
)

// Config holds the collaborators and location of a chain engine.
type Config struct {
	// Params are the consensus parameters to enforce.
	Params *chaincfg.Params

	// DataDir is the directory all chain files live in.
	DataDir string

	// Fetcher downloads trailer files and blocks from peers. It may be
	// nil for an engine that only validates local files.
	Fetcher Fetcher

	// PinkList records provably malicious peers. It may be nil.
	PinkList *pinklist.List

	// TimeSource returns the wall clock; it defaults to the system
	// clock and exists so tests can pin time.
	TimeSource func() uint32

	// Sanctuary and Lastday arm the one-shot ledger renewal: when
	// Sanctuary is non-zero and the chain reaches Lastday, every balance
	// is reduced by Sanctuary and dust is swept.
	Sanctuary uint64
	Lastday   uint64
}

// Chain owns the chain state, the open ledger and the file set under the
// data directory. Its methods are not safe for concurrent use; the engine
// is a single-threaded control loop and delegates parallel work (block
// downloads) to goroutines that only ever touch their own temp files.
type Chain struct {
	params  *chaincfg.Params
	dataDir string
	fetcher Fetcher
	pink    *pinklist.List
	now     func() uint32

	sanctuary uint64
	lastday   uint64

	state   State
	store   *ledger.Store
	running int32
}

// New creates a chain engine over the given data directory, loading the
// persisted chain state and opening the ledger when both exist.
func New(cfg *Config) (*Chain, error) {
	if cfg.Params == nil {
		return nil, errors.New("chain: no consensus params")
	}
	c := &Chain{
		params:    cfg.Params,
		dataDir:   cfg.DataDir,
		fetcher:   cfg.Fetcher,
		pink:      cfg.PinkList,
		now:       cfg.TimeSource,
		sanctuary: cfg.Sanctuary,
		lastday:   cfg.Lastday,
		running:   1,
	}
	if c.now == nil {
		c.now = func() uint32 { return uint32(time.Now().Unix()) }
	}
	if err := os.MkdirAll(c.path(bcDir), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create block archive directory")
	}

	if _, err := os.Stat(c.path(stateFile)); err == nil {
		s, err := ReadState(c.path(stateFile))
		if err != nil {
			return nil, err
		}
		c.state = *s
		if _, err := os.Stat(c.path(tfileFile)); err == nil {
			weight, err := WeighTfile(c.path(tfileFile), c.state.Cblocknum, c.params)
			if err != nil {
				return nil, err
			}
			c.state.Weight = weight
		}
	}
	if _, err := os.Stat(c.path(ledgerFile)); err == nil {
		if err := c.openLedger(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// path joins a file name onto the data directory.
func (c *Chain) path(name string) string {
	return filepath.Join(c.dataDir, name)
}

// bcName returns the archive file name of a block.
func bcName(bnum uint64) string {
	return fmt.Sprintf("b%016x.dat", bnum)
}

// bcPath returns the archive path of a block.
func (c *Chain) bcPath(bnum uint64) string {
	return filepath.Join(c.dataDir, bcDir, bcName(bnum))
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	return c.state
}

// Ledger returns the open ledger store, or nil when none is open.
func (c *Chain) Ledger() *ledger.Store {
	return c.store
}

// Running reports whether the engine should keep working. Long
// operations check it between I/O steps.
func (c *Chain) Running() bool {
	return atomic.LoadInt32(&c.running) != 0
}

// Stop asks the engine and its workers to wind down at the next check.
func (c *Chain) Stop() {
	atomic.StoreInt32(&c.running, 0)
}

// Close releases the open ledger.
func (c *Chain) Close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func (c *Chain) openLedger() error {
	store, err := ledger.Open(c.path(ledgerFile))
	if err != nil {
		return err
	}
	c.store = store
	return nil
}

func (c *Chain) closeLedger() {
	if c.store != nil {
		c.store.Close()
		c.store = nil
	}
}

// persistState writes the chain state record out.
func (c *Chain) persistState() error {
	return WriteState(c.path(stateFile), &c.state)
}

// pinkPeer records a provably malicious peer, when both a peer and a
// pink list are present.
func (c *Chain) pinkPeer(peer string) {
	if c.pink == nil || peer == "" {
		return
	}
	if err := c.pink.EpochPink(peer); err != nil {
		log.Warnf("Failed to pink-list %s: %v", peer, err)
	}
}
