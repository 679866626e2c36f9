// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/MochiMore/mochimo/chaincfg"
)

// BlockTrailerSize is the serialized size of a block trailer.
const BlockTrailerSize = chaincfg.TrailerLen

// BlockTrailerMerklePrefixSize is the number of leading trailer bytes
// folded into the merkle context on post-fork blocks: phash, bnum, mfee,
// tcount, time0 and difficulty.
const BlockTrailerMerklePrefixSize = HashSize + 8 + 8 + 4 + 4 + 4

// BlockTrailerHashPrefixSize is the number of leading trailer bytes folded
// into the block hash: everything except the block hash itself.
const BlockTrailerHashPrefixSize = BlockTrailerSize - HashSize

// BlockTrailer is the fixed-size trailer at the end of every block file
// and the unit record of the trailer file.
type BlockTrailer struct {
	// Phash is the hash of the previous block.
	Phash Hash

	// Bnum is the block number.
	Bnum uint64

	// Mfee is the minimum transaction fee the block was mined with.
	Mfee uint64

	// Tcount is the number of transactions in the block. A pseudoblock
	// has none.
	Tcount uint32

	// Time0 is the solve time of the previous block.
	Time0 uint32

	// Difficulty is the difficulty the block was solved at.
	Difficulty uint32

	// Mroot is the merkle root over the transaction array.
	Mroot Hash

	// Nonce is the solver's nonce. The trailer gate treats it as opaque
	// input to the proof-of-work predicate.
	Nonce [HashSize]byte

	// Stime is the solve time of this block.
	Stime uint32

	// Bhash is the block hash.
	Bhash Hash
}

// Deserialize decodes a block trailer from r into the receiver.
func (bt *BlockTrailer) Deserialize(r io.Reader) error {
	return readElements(r,
		&bt.Phash, &bt.Bnum, &bt.Mfee, &bt.Tcount,
		&bt.Time0, &bt.Difficulty, &bt.Mroot, bt.Nonce[:],
		&bt.Stime, &bt.Bhash)
}

// Serialize encodes the block trailer to w in its on-disk form.
func (bt *BlockTrailer) Serialize(w io.Writer) error {
	return writeElements(w,
		&bt.Phash, bt.Bnum, bt.Mfee, bt.Tcount,
		bt.Time0, bt.Difficulty, &bt.Mroot, bt.Nonce[:],
		bt.Stime, &bt.Bhash)
}

// SerializeMerklePrefix encodes the leading trailer fields that the merkle
// context covers on post-fork blocks.
func (bt *BlockTrailer) SerializeMerklePrefix(w io.Writer) error {
	return writeElements(w, &bt.Phash, bt.Bnum, bt.Mfee, bt.Tcount,
		bt.Time0, bt.Difficulty)
}

// SerializeHashPrefix encodes every trailer field except the block hash.
// The block hash commits to exactly these bytes (after the header and the
// transaction array).
func (bt *BlockTrailer) SerializeHashPrefix(w io.Writer) error {
	return writeElements(w,
		&bt.Phash, bt.Bnum, bt.Mfee, bt.Tcount,
		bt.Time0, bt.Difficulty, &bt.Mroot, bt.Nonce[:],
		bt.Stime)
}

// IsPseudo returns whether the trailer belongs to a pseudoblock: a
// transactionless bridge block emitted when no block was solved within the
// bridge window.
func (bt *BlockTrailer) IsPseudo() bool {
	return bt.Tcount == 0
}
