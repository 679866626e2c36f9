// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pow implements the two generations of proof-of-work predicates
// the trailer gate dispatches to: the legacy hash chase used up to the
// v2.4 fork and the memory-hard lattice hash used after it.
package pow

// checkDifficulty returns whether h carries at least difficulty leading
// zero bits.
func checkDifficulty(h []byte, difficulty uint32) bool {
	if difficulty > uint32(len(h))*8 {
		return false
	}
	full := int(difficulty / 8)
	for i := 0; i < full; i++ {
		if h[i] != 0 {
			return false
		}
	}
	rem := difficulty % 8
	if rem == 0 {
		return true
	}
	return h[full]>>(8-rem) == 0
}
