// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/MochiMore/mochimo/chaincfg"
)

// Weight is the cumulative fork-choice metric: a 256-bit little-endian
// accumulator. Before the weight trigger every block contributes one
// unit; after it each block contributes 2^difficulty, so difficulty is
// what ultimately decides between competing chains.
type Weight [32]byte

// Add adds 2^difficulty (or one unit before the trigger) for a block at
// bnum.
func (w *Weight) Add(difficulty uint32, bnum uint64, params *chaincfg.Params) {
	var add Weight
	if bnum < params.WeightTrigger {
		add[0] = 1
	} else {
		d := difficulty & 0xff
		add[d/8] = 1 << (d % 8)
	}
	var carry uint16
	for i := 0; i < len(w); i++ {
		sum := uint16(w[i]) + uint16(add[i]) + carry
		w[i] = byte(sum)
		carry = sum >> 8
	}
}

// Compare returns -1, 0 or 1 as w is less than, equal to or greater than
// other, treating both as little-endian 256-bit numbers.
func (w *Weight) Compare(other *Weight) int {
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] < other[i] {
			return -1
		}
		if w[i] > other[i] {
			return 1
		}
	}
	return 0
}

// IsZero returns whether the weight is zero.
func (w *Weight) IsZero() bool {
	for _, b := range w {
		if b != 0 {
			return false
		}
	}
	return true
}
