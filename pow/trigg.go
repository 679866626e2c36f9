// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/MochiMore/mochimo/wire"
)

// Trigg is the legacy proof-of-work predicate: a single hash chase over
// the merkle root, the solver's nonce and the block number, checked
// against the low byte of the trailer difficulty. It gates every block up
// to and including the v2.4 trigger.
func Trigg(bt *wire.BlockTrailer) bool {
	var bnum [8]byte
	binary.LittleEndian.PutUint64(bnum[:], bt.Bnum)

	h := sha256.New()
	h.Write(bt.Mroot[:])
	h.Write(bt.Nonce[:])
	h.Write(bnum[:])
	return checkDifficulty(h.Sum(nil), bt.Difficulty&0xff)
}
