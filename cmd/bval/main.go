// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// bval validates one candidate block file against the chain state and
// ledger in its data directory, emitting the ledger delta file on
// success. It exists as a separate process so a supervisor can run
// validation with a bounded lifetime and read the verdict from the exit
// code:
//
//	0  the block is valid; ltran.dat was written and, unless -n was
//	   given, the input renamed
//	1  a local I/O or resource error; the peer is not at fault
//	2  the block is invalid
//	3  the block is provably malicious; pink-list the supplying peer
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MochiMore/mochimo/chain"
	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.BVAL)

// Exit codes reported to the supervising process.
const (
	exitValid     = 0
	exitBail      = 1
	exitDrop      = 2
	exitBadDrop   = 3
	exitUsageFail = 1
)

func realMain() int {
	cfg, err := loadConfig()
	if err != nil {
		return exitUsageFail
	}
	logger.InitLogRotator(filepath.Join(cfg.DataDir, defaultLogFilename))
	defer logger.LogRotator.Close()
	logger.SetLogLevels(cfg.DebugLevel)

	c, err := chain.New(&chain.Config{
		Params:  &chaincfg.MainnetParams,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		log.Errorf("Failed to open chain state: %v", err)
		return exitBail
	}
	defer c.Close()

	err = c.ValidateBlock(cfg.Args.Block, cfg.NoRename)
	switch chain.Classify(err) {
	case chain.ClassOK:
		fmt.Println("Validated")
		return exitValid
	case chain.ClassDrop:
		log.Infof("Block dropped: %v", err)
		return exitDrop
	case chain.ClassBadDrop:
		log.Infof("Malicious block: %v", err)
		return exitBadDrop
	default:
		log.Errorf("Validation failed locally: %v", err)
		return exitBail
	}
}

func main() {
	os.Exit(realMain())
}
