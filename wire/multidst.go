// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/MochiMore/mochimo/chaincfg"
)

// MultiDstEntrySize is the serialized size of one destination entry: a tag
// and an amount.
const MultiDstEntrySize = TagSize + 8

// MultiDstEntry is one destination of a multi-destination transaction.
// Destinations are addressed by tag only; the full address is resolved
// against the ledger (or against other transactions in the same block)
// when the block is validated.
type MultiDstEntry struct {
	Tag    [TagSize]byte
	Amount uint64
}

// IsZero returns whether the entry's tag is all zero, which marks the end
// of the destination list.
func (e *MultiDstEntry) IsZero() bool {
	for _, b := range e.Tag {
		if b != 0 {
			return false
		}
	}
	return true
}

// MultiDst is the destination overlay of a multi-destination transaction.
// It occupies exactly the destination address region of a transaction
// record: MaxDstCount entries followed by the flag region. The first
// MaxDstCount flag bytes mark destinations whose tag was unresolved when
// the transaction was cleaned; two bytes further in carry the
// multi-destination marker itself.
type MultiDst struct {
	Dst   [chaincfg.MaxDstCount]MultiDstEntry
	Zeros [chaincfg.DstZerosLen]byte
}

// DecodeMultiDst decodes the destination overlay from a destination
// address region.
func DecodeMultiDst(dst *Address) *MultiDst {
	m := new(MultiDst)
	for i := 0; i < chaincfg.MaxDstCount; i++ {
		off := i * MultiDstEntrySize
		copy(m.Dst[i].Tag[:], dst[off:off+TagSize])
		m.Dst[i].Amount = littleEndian.Uint64(dst[off+TagSize : off+MultiDstEntrySize])
	}
	copy(m.Zeros[:], dst[chaincfg.MaxDstCount*MultiDstEntrySize:])
	return m
}

// Encode writes the overlay back into a destination address region.
func (m *MultiDst) Encode(dst *Address) {
	for i := 0; i < chaincfg.MaxDstCount; i++ {
		off := i * MultiDstEntrySize
		copy(dst[off:], m.Dst[i].Tag[:])
		littleEndian.PutUint64(dst[off+TagSize:off+MultiDstEntrySize], m.Dst[i].Amount)
	}
	copy(dst[chaincfg.MaxDstCount*MultiDstEntrySize:], m.Zeros[:])
}
