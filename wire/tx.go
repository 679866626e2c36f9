// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"crypto/sha256"
	"io"

	"github.com/MochiMore/mochimo/chaincfg"
)

// TxSize is the serialized size of one transaction record.
const TxSize = chaincfg.TxLen

// SigSize is the serialized size of a one-time signature.
const SigSize = chaincfg.SigLen

// sigHashSize is the length of the record prefix hashed to form the
// signature message: the three addresses and the three amounts.
const sigHashSize = chaincfg.SigHashLen

// Offsets of the destination overlay's flag region within a serialized
// transaction. The multi-destination overlay replaces the destination
// address with destination entries followed by a flag region; the flag
// region starts after the last destination entry.
const (
	dstOffset      = chaincfg.AddrLen
	dstZerosOffset = dstOffset + chaincfg.MaxDstCount*MultiDstEntrySize
	dstZerosEnd    = dstZerosOffset + chaincfg.DstZerosLen
)

// Multi-destination marker bytes. A transaction is multi-destination when
// the first two tag bytes of its destination address hold exactly this
// pattern.
const (
	multiDstMarker0 = 0x01
	multiDstMarker1 = 0x00
)

// Tx is one transaction record as stored in a block's transaction array
// and in the pending-transaction queues.
type Tx struct {
	SrcAddr     Address
	DstAddr     Address
	ChgAddr     Address
	SendTotal   uint64
	ChangeTotal uint64
	TxFee       uint64
	Sig         [SigSize]byte
	ID          Hash
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction.
func (tx *Tx) SerializeSize() int {
	return TxSize
}

// Deserialize decodes a transaction record from r into the receiver.
func (tx *Tx) Deserialize(r io.Reader) error {
	return readElements(r,
		&tx.SrcAddr, &tx.DstAddr, &tx.ChgAddr,
		&tx.SendTotal, &tx.ChangeTotal, &tx.TxFee,
		tx.Sig[:], &tx.ID)
}

// Serialize encodes the transaction record to w in its on-disk form.
func (tx *Tx) Serialize(w io.Writer) error {
	return writeElements(w,
		&tx.SrcAddr, &tx.DstAddr, &tx.ChgAddr,
		tx.SendTotal, tx.ChangeTotal, tx.TxFee,
		tx.Sig[:], &tx.ID)
}

// IsMulti returns whether the record is a multi-destination transaction.
// The destination address region of such a record holds the destination
// overlay rather than an address.
func (tx *Tx) IsMulti() bool {
	return tx.DstAddr[chaincfg.TagOffset] == multiDstMarker0 &&
		tx.DstAddr[chaincfg.TagOffset+1] == multiDstMarker1
}

// ComputeID returns the transaction id: the digest of the source address.
func (tx *Tx) ComputeID() Hash {
	return Hash(sha256.Sum256(tx.SrcAddr[:]))
}

// SigMessage returns the message a spend signature commits to: the digest
// of the serialized addresses and amounts. When clearMultiFlags is set the
// destination overlay's flag region is zeroed in a working copy first, so
// a multi-destination transaction is always signed with the flags clear.
func (tx *Tx) SigMessage(clearMultiFlags bool) [HashSize]byte {
	var buf [sigHashSize]byte
	copy(buf[:], tx.SrcAddr[:])
	copy(buf[dstOffset:], tx.DstAddr[:])
	copy(buf[2*chaincfg.AddrLen:], tx.ChgAddr[:])
	off := 3 * chaincfg.AddrLen
	littleEndian.PutUint64(buf[off:], tx.SendTotal)
	littleEndian.PutUint64(buf[off+8:], tx.ChangeTotal)
	littleEndian.PutUint64(buf[off+16:], tx.TxFee)
	if clearMultiFlags {
		for i := dstZerosOffset; i < dstZerosEnd; i++ {
			buf[i] = 0
		}
	}
	return sha256.Sum256(buf[:])
}
