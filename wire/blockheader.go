// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/MochiMore/mochimo/chaincfg"
)

// BlockHeaderSize is the serialized size of a block header.
const BlockHeaderSize = chaincfg.HeaderLen

// BlockHeader holds the fixed-size header at the front of every block
// file: its own length, the mining address and the mining reward.
type BlockHeader struct {
	// Hdrlen is the header length field. It must equal BlockHeaderSize
	// for a regular block; a neo-genesis block carries a different
	// header.
	Hdrlen uint32

	// Maddr is the mining address the block reward is credited to. It
	// must not carry a tag.
	Maddr Address

	// Mreward is the mining reward claimed by the block, checked against
	// the deterministic reward schedule.
	Mreward uint64
}

// Deserialize decodes a block header from r into the receiver.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	return readElements(r, &h.Hdrlen, &h.Maddr, &h.Mreward)
}

// Serialize encodes the block header to w in its on-disk form.
func (h *BlockHeader) Serialize(w io.Writer) error {
	return writeElements(w, h.Hdrlen, &h.Maddr, h.Mreward)
}

// BlockLength returns the exact byte length of a regular block file
// holding tcount transactions.
func BlockLength(tcount uint32) int64 {
	return int64(BlockHeaderSize) + int64(tcount)*int64(TxSize) + int64(BlockTrailerSize)
}
