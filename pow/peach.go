// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/MochiMore/mochimo/wire"
)

// Lattice dimensions of the memory-hard hash. A solver materializes the
// whole lattice; a validator regenerates only the tiles the chase visits,
// so verification stays cheap while solving stays memory-bound.
const (
	// tileLength is the byte length of one lattice tile.
	tileLength = 1024

	// latticeTiles is the number of tiles in the lattice.
	latticeTiles = 1048576

	// chaseJumps is the number of tile jumps in one evaluation.
	chaseJumps = 8
)

// generateTile deterministically expands one lattice tile from the
// previous block hash and the tile index.
func generateTile(phash *wire.Hash, index uint32, tile []byte) {
	var seed [wire.HashSize + 4]byte
	copy(seed[:], phash[:])
	binary.LittleEndian.PutUint32(seed[wire.HashSize:], index)

	// An XOF would do; a counter-mode blake2b keeps the dependency
	// surface identical to the mixer below.
	var counter [4]byte
	for off := 0; off < tileLength; off += blake2b.Size256 {
		binary.LittleEndian.PutUint32(counter[:], uint32(off))
		sum := blake2b.Sum256(append(seed[:], counter[:]...))
		copy(tile[off:], sum[:])
	}
}

// nightHash mixes state with a tile through one of three digests, selected
// by the state itself. The algorithm agility is what frustrates fixed-
// function hardware.
func nightHash(state, tile []byte) [wire.HashSize]byte {
	var out [wire.HashSize]byte
	switch state[0] % 3 {
	case 0:
		h := sha256.New()
		h.Write(state)
		h.Write(tile)
		h.Sum(out[:0])
	case 1:
		sum := blake2b.Sum256(append(append([]byte{}, state...), tile...))
		out = sum
	default:
		h := sha3.New256()
		h.Write(state)
		h.Write(tile)
		h.Sum(out[:0])
	}
	return out
}

// Peach is the memory-hard proof-of-work predicate gating every block past
// the v2.4 trigger. The chase starts from a digest of the trailer's solve
// commitment and jumps through the lattice, mixing one tile per jump; the
// final state must meet the trailer difficulty.
func Peach(bt *wire.BlockTrailer) bool {
	var buf bytes.Buffer
	if err := bt.SerializeHashPrefix(&buf); err != nil {
		return false
	}
	seed := sha256.Sum256(buf.Bytes())

	state := seed[:]
	tile := make([]byte, tileLength)
	for i := 0; i < chaseJumps; i++ {
		index := binary.LittleEndian.Uint32(state[:4]) % latticeTiles
		generateTile(&bt.Phash, index, tile)
		mixed := nightHash(state, tile)
		state = mixed[:]
	}
	return checkDifficulty(state, bt.Difficulty)
}
