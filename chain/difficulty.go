// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/wire"
)

// NextDifficulty returns the difficulty the block after bt must be solved
// at: one step up when bt solved faster than the low bound, one step down
// when slower than the high bound, unchanged inside the window.
func NextDifficulty(bt *wire.BlockTrailer, params *chaincfg.Params) uint32 {
	difficulty := bt.Difficulty
	seconds := bt.Stime - bt.Time0
	if int32(seconds) < 0 {
		return difficulty
	}
	switch {
	case seconds > params.SolveHigh:
		if difficulty > 1 {
			difficulty--
		}
	case seconds < params.SolveLow:
		if difficulty < 255 {
			difficulty++
		}
	}
	return difficulty
}
